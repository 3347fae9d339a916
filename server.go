package oauth

import (
	"fmt"
	"time"

	"github.com/giantswarm/oauth2-core/instrumentation"
	"github.com/giantswarm/oauth2-core/providers"
	"github.com/giantswarm/oauth2-core/security"
	"github.com/giantswarm/oauth2-core/server"
	"github.com/giantswarm/oauth2-core/storage"
)

// Server wires the decision core to its collaborators. It embeds the
// core *server.Server, so Token, Authorize and AuthenticateClient are
// available directly.
type Server struct {
	*server.Server

	Auditor *security.Auditor
	Config  *Config

	authenticator providers.Authenticator
	limiter       *security.RateLimiter
	metrics       *instrumentation.Metrics
}

// NewServer creates a Server. authenticator is optional; without it the
// password grant is not available.
func NewServer(
	store storage.Store,
	issuer server.TokenIssuer,
	authenticator providers.Authenticator,
	config *Config,
) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if config == nil {
		config = &Config{}
	}
	config.applyDefaults()
	logger := config.Logger

	auditor := security.NewAuditor(logger, config.EnableAuditLogging)

	var metrics *instrumentation.Metrics
	if config.Instrumentation != nil {
		metrics = config.Instrumentation.Metrics()
		auditor.SetMetrics(metrics)
	}

	s := &Server{
		Auditor: auditor,
		Config:  config,
		metrics: metrics,
	}

	if authenticator != nil && config.PasswordRateLimit.Rate > 0 {
		s.limiter = security.NewRateLimiterWithConfig(
			config.PasswordRateLimit.Rate,
			config.PasswordRateLimit.Burst,
			config.PasswordRateLimit.MaxEntries,
			logger,
		)
		authenticator = providers.NewRateLimited(authenticator, s.limiter, auditor)
		logger.Info("Password grant rate limiting enabled",
			"rate", config.PasswordRateLimit.Rate,
			"burst", config.PasswordRateLimit.Burst)
	}

	s.authenticator = authenticator

	serverConfig := config.Server
	core, err := server.New(server.Dependencies{
		Store:           store,
		Issuer:          issuer,
		Authenticator:   authenticator,
		Config:          &serverConfig,
		Now:             time.Now,
		Logger:          logger,
		Auditor:         auditor,
		Instrumentation: config.Instrumentation,
	})
	if err != nil {
		s.Shutdown()
		return nil, err
	}
	s.Server = core

	logger.Info("OAuth server configured",
		"grant_types", core.GrantTypes.Types(),
		"response_types", core.ResponseTypes.Types(),
		"redirect_uri_matching", core.Config.RedirectURIMatching)

	return s, nil
}

// Authenticator returns the resource owner authenticator used by the
// password grant, rate limited when PasswordRateLimit is enabled. Use it for
// end-user login at the authorization endpoint so that both endpoints share
// one attempt budget. It is nil when NewServer got no authenticator.
func (s *Server) Authenticator() providers.Authenticator {
	return s.authenticator
}

// Shutdown stops background goroutines owned by the server
func (s *Server) Shutdown() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
