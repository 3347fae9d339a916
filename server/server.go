package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth2-core/instrumentation"
	"github.com/giantswarm/oauth2-core/internal/util"
	"github.com/giantswarm/oauth2-core/providers"
	"github.com/giantswarm/oauth2-core/security"
	"github.com/giantswarm/oauth2-core/storage"
)

// Grant and response type identifiers
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypePassword          = "password"
	GrantTypeRefreshToken      = "refresh_token"

	ResponseTypeCode = "code"
)

// TokenIssuer mints tokens once a grant has been validated.
// The returned token may carry a "scope" extra (see oauth2.Token.WithExtra).
type TokenIssuer interface {
	IssueToken(ctx context.Context, clientID, username string, scope []string) (*oauth2.Token, error)
}

// Dependencies are the collaborators injected into every handler factory.
// Handlers hold no state of their own.
type Dependencies struct {
	Store         storage.Store
	Issuer        TokenIssuer
	Authenticator providers.Authenticator // optional, required by the password grant
	Config        *Config

	// Now is the clock (default: time.Now)
	Now func() time.Time

	Logger          *slog.Logger
	Auditor         *security.Auditor                // optional
	Instrumentation *instrumentation.Instrumentation // optional
}

// requireCore checks the dependencies every handler needs
func (d *Dependencies) requireCore() error {
	if d.Store == nil {
		return fmt.Errorf("store is required")
	}
	if d.Issuer == nil {
		return fmt.Errorf("token issuer is required")
	}
	if d.Config == nil {
		return fmt.Errorf("config is required")
	}
	return nil
}

func (d *Dependencies) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *Dependencies) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func (d *Dependencies) metrics() *instrumentation.Metrics {
	if d.Instrumentation == nil {
		return nil
	}
	return d.Instrumentation.Metrics()
}

func (d *Dependencies) expired(expiresAt time.Time) bool {
	return security.IsExpired(expiresAt, d.now(), d.Config.GracePeriod())
}

// internalError logs err and returns it as a server_error. Protocol errors
// pass through untouched.
func (d *Dependencies) internalError(ctx context.Context, msg string, err error) *Error {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	d.logger().ErrorContext(ctx, msg, "error", err)
	return ErrServerError(fmt.Errorf("%s: %w", msg, err))
}

// TokenRequest is a token endpoint request. ClientID is the client the
// boundary already authenticated.
type TokenRequest struct {
	GrantType string
	ClientID  string

	// authorization_code
	Code        string
	RedirectURI string

	// password
	Username string
	Password string

	// refresh_token
	RefreshToken string

	// Scope is the raw space-delimited scope parameter; empty means absent
	Scope string
}

// AuthorizeRequest is an authorization endpoint request. Username is the
// end user resolved from the authenticated session.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	State        string
	Scope        string
	Username     string
}

// AuthorizeResponse tells the boundary where to redirect the user agent
type AuthorizeResponse struct {
	// RedirectURL is the resolved redirect URI with code and state appended
	RedirectURL string

	Code      string
	State     string
	ExpiresAt time.Time
}

// BuiltinGrantTypes are the grant handler factories shipped with the package
var BuiltinGrantTypes = map[string]GrantHandlerFactory{
	GrantTypeAuthorizationCode: NewAuthorizationCodeGrant,
	GrantTypePassword:          NewPasswordGrant,
	GrantTypeRefreshToken:      NewRefreshTokenGrant,
}

// BuiltinResponseTypes are the response type handler factories shipped with the package
var BuiltinResponseTypes = map[string]ResponseTypeHandlerFactory{
	ResponseTypeCode: NewCodeResponseType,
}

// Server dispatches token and authorization requests to the registered handlers.
type Server struct {
	GrantTypes    *GrantTypeRegistry
	ResponseTypes *ResponseTypeRegistry
	Logger        *slog.Logger
	Config        *Config

	deps    *Dependencies
	tracer  trace.Tracer
	metrics *instrumentation.Metrics
}

// New creates a server and registers the configured grant and response types.
func New(deps Dependencies) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Issuer == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config == nil {
		deps.Config = &Config{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Config = applyDefaults(deps.Config, deps.Logger)

	d := &deps
	srv := &Server{
		GrantTypes:    NewGrantTypeRegistry(d),
		ResponseTypes: NewResponseTypeRegistry(d),
		Logger:        deps.Logger,
		Config:        deps.Config,
		deps:          d,
		tracer:        tracenoop.NewTracerProvider().Tracer(""),
		metrics:       d.metrics(),
	}
	if deps.Instrumentation != nil {
		srv.tracer = deps.Instrumentation.Tracer("server")
	}

	for _, gt := range deps.Config.GrantTypes {
		factory, ok := BuiltinGrantTypes[gt]
		if !ok {
			return nil, fmt.Errorf("unknown grant type %q", gt)
		}
		if err := srv.GrantTypes.Register(gt, factory); err != nil {
			return nil, fmt.Errorf("failed to register grant type: %w", err)
		}
	}
	for _, rt := range deps.Config.ResponseTypes {
		factory, ok := BuiltinResponseTypes[rt]
		if !ok {
			return nil, fmt.Errorf("unknown response type %q", rt)
		}
		if err := srv.ResponseTypes.Register(rt, factory); err != nil {
			return nil, fmt.Errorf("failed to register response type: %w", err)
		}
	}

	return srv, nil
}

// Token resolves the grant handler for req.GrantType and runs it.
// Every returned error is an *Error.
func (s *Server) Token(ctx context.Context, req *TokenRequest) (*oauth2.Token, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.token")
	defer span.End()

	token, grantType, err := s.token(ctx, req)

	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, "", req.Scope)
	if grantType != "" {
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrGrantType, grantType))
	}
	if err != nil {
		oauthErr := AsError(err)
		instrumentation.AddOAuthErrorAttributes(span, string(oauthErr.Kind), oauthErr.Description)
		s.metrics.RecordTokenRequest(ctx, grantType, string(oauthErr.Kind))
		s.metrics.RecordProtocolError(ctx, string(oauthErr.Kind))
		return nil, oauthErr
	}

	instrumentation.SetSpanSuccess(span)
	s.metrics.RecordTokenRequest(ctx, grantType, "success")
	return token, nil
}

func (s *Server) token(ctx context.Context, req *TokenRequest) (*oauth2.Token, string, error) {
	handler, err := s.GrantTypes.Resolve(req.GrantType)
	if err != nil {
		return nil, req.GrantType, err
	}
	grantType := handler.GrantType()

	if req.ClientID != "" {
		client, err := s.deps.Store.GetClient(ctx, req.ClientID)
		switch {
		case errors.Is(err, storage.ErrClientNotFound):
			return nil, grantType, ErrInvalidClient(DescClientAuthFailed)
		case err != nil:
			return nil, grantType, s.deps.internalError(ctx, "failed to load client", err)
		case !client.AllowsGrantType(grantType):
			s.Logger.Warn("Client used a grant type it is not registered for",
				"client_id", req.ClientID, "grant_type", grantType)
			return nil, grantType, ErrUnauthorizedClient(DescGrantTypeNotPermitted)
		}
	}

	token, err := handler.Handle(ctx, req)
	return token, grantType, err
}

// Authorize resolves the response type handler for req.ResponseType and runs it.
// Every returned error is an *Error.
func (s *Server) Authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "oauth.authorize")
	defer span.End()

	responseType := req.ResponseType
	resp, err := func() (*AuthorizeResponse, error) {
		handler, err := s.ResponseTypes.Resolve(req.ResponseType)
		if err != nil {
			return nil, err
		}
		responseType = handler.ResponseType()
		return handler.Handle(ctx, req)
	}()

	instrumentation.AddOAuthFlowAttributes(span, req.ClientID, req.Username, req.Scope)
	if err != nil {
		oauthErr := AsError(err)
		instrumentation.AddOAuthErrorAttributes(span, string(oauthErr.Kind), oauthErr.Description)
		s.metrics.RecordAuthorizationRequest(ctx, responseType, string(oauthErr.Kind))
		s.metrics.RecordProtocolError(ctx, string(oauthErr.Kind))
		return nil, oauthErr
	}

	instrumentation.SetSpanSuccess(span)
	s.metrics.RecordAuthorizationRequest(ctx, responseType, "success")
	return resp, nil
}

// logToken logs an issued token without its value
func logToken(ctx context.Context, logger *slog.Logger, grantType, clientID, username string, token *oauth2.Token) {
	logger.InfoContext(ctx, "Issued token",
		"grant_type", grantType,
		"client_id", clientID,
		"username", username,
		"access_token_prefix", util.SafeTruncate(token.AccessToken, 8))
}
