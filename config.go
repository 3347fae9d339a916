package oauth

import (
	"log/slog"

	"github.com/giantswarm/oauth2-core/instrumentation"
	"github.com/giantswarm/oauth2-core/server"
)

// Config holds the configuration of the HTTP boundary and the decision
// core behind it.
type Config struct {
	// Server configures the grant and response type handlers
	Server server.Config

	// PasswordRateLimit throttles resource owner password attempts per username,
	// at the token endpoint and at authorization endpoint logins
	PasswordRateLimit RateLimitConfig

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// when recording the caller's IP address in audit events.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool // default: false

	// TrustedProxyCount is the number of proxies in front of this server
	TrustedProxyCount int // default: 1

	// EnableAuditLogging enables security audit logging.
	// User identifiers are hashed before they are logged.
	EnableAuditLogging bool

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// Instrumentation enables tracing and metrics (optional)
	Instrumentation *instrumentation.Instrumentation
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is attempts per second allowed per username. Zero disables limiting.
	Rate float64

	// Burst is the maximum burst size allowed per username.
	Burst int // default: 5

	// MaxEntries bounds the number of tracked usernames
	MaxEntries int // default: 10000
}

// applyDefaults fills in defaults for fields the caller left empty
func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.TrustedProxyCount <= 0 {
		c.TrustedProxyCount = 1
	}
	if c.PasswordRateLimit.Rate > 0 {
		if c.PasswordRateLimit.Burst <= 0 {
			c.PasswordRateLimit.Burst = 5
		}
		if c.PasswordRateLimit.MaxEntries <= 0 {
			c.PasswordRateLimit.MaxEntries = 10000
		}
	}
}
