package server

import (
	"log/slog"
	"time"
)

// Config holds the grant core configuration
type Config struct {
	// GrantTypes lists the grant types to register, in order. The first one
	// handles token requests without a grant_type.
	// Default: authorization_code, password, refresh_token
	GrantTypes []string

	// ResponseTypes lists the response types to register, in order.
	// Default: code
	ResponseTypes []string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AuthorizationCodeBytes is the number of random bytes in a code.
	// Codes are hex encoded, so the code is twice as long.
	AuthorizationCodeBytes int // default: 64

	// RefreshTokenRotationWindow is the remaining lifetime given to a
	// refresh token each time it is used
	RefreshTokenRotationWindow int64 // seconds, default: 300 (5 minutes)

	// ClockSkewGracePeriod extends every expiry check.
	// Default: 0, an entity is valid up to and including its expiry instant.
	ClockSkewGracePeriod int64 // seconds, default: 0

	// RedirectURIMatching selects how a supplied redirect URI is compared
	// with the registered one: "prefix" or "exact".
	// Default: "prefix"
	RedirectURIMatching RedirectMatchMode

	// DisableRedirectURIBinding stops the authorization_code grant from
	// requiring the redemption redirect URI to equal the one the code was
	// issued for.
	// WARNING: only disable for clients that cannot resend the URI.
	// Default: false
	DisableRedirectURIBinding bool // default: false
}

// applyDefaults fills in unset values and logs warnings for weakened settings
func applyDefaults(config *Config, logger *slog.Logger) *Config {
	if len(config.GrantTypes) == 0 {
		config.GrantTypes = []string{GrantTypeAuthorizationCode, GrantTypePassword, GrantTypeRefreshToken}
	}
	if len(config.ResponseTypes) == 0 {
		config.ResponseTypes = []string{ResponseTypeCode}
	}
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600 // 10 minutes
	}
	if config.AuthorizationCodeBytes == 0 {
		config.AuthorizationCodeBytes = 64
	}
	if config.RefreshTokenRotationWindow == 0 {
		config.RefreshTokenRotationWindow = 300 // 5 minutes
	}

	switch config.RedirectURIMatching {
	case "":
		config.RedirectURIMatching = RedirectMatchPrefix
	case RedirectMatchPrefix, RedirectMatchExact:
	default:
		logger.Warn("Unknown redirect URI matching mode, using prefix",
			"mode", config.RedirectURIMatching)
		config.RedirectURIMatching = RedirectMatchPrefix
	}

	if config.AuthorizationCodeBytes < 32 {
		logger.Warn("Authorization codes shorter than 32 random bytes are guessable",
			"bytes", config.AuthorizationCodeBytes)
	}
	if config.DisableRedirectURIBinding {
		logger.Warn("Redirect URI binding is disabled; a stolen code can be redeemed with any registered redirect URI")
	}

	return config
}

// CodeTTL returns AuthorizationCodeTTL as a duration
func (c *Config) CodeTTL() time.Duration {
	return time.Duration(c.AuthorizationCodeTTL) * time.Second
}

// RotationWindow returns RefreshTokenRotationWindow as a duration
func (c *Config) RotationWindow() time.Duration {
	return time.Duration(c.RefreshTokenRotationWindow) * time.Second
}

// GracePeriod returns ClockSkewGracePeriod as a duration
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.ClockSkewGracePeriod) * time.Second
}
