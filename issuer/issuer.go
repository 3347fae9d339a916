package issuer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth2-core/internal/util"
	"github.com/giantswarm/oauth2-core/storage"
)

// TokenStore is the storage an issuer writes to
type TokenStore interface {
	storage.AccessTokenStore
	storage.RefreshTokenStore
}

// Config holds the settings shared by the issuers
type Config struct {
	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is the initial lifetime of refresh tokens
	RefreshTokenTTL int64 // seconds, default: 1209600 (14 days)

	// Now is the clock (default: time.Now)
	Now func() time.Time

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

func applyDefaults(cfg Config) Config {
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = 3600 // 1 hour
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 1209600 // 14 days
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

func (c Config) accessTTL() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

func (c Config) refreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTL) * time.Second
}

// saveRefreshToken generates and persists a refresh token
func saveRefreshToken(ctx context.Context, store storage.RefreshTokenStore, cfg Config, clientID, username string, scope []string, now time.Time) (string, error) {
	value := oauth2.GenerateVerifier()
	err := store.SaveRefreshToken(ctx, &storage.RefreshToken{
		RefreshToken: value,
		ClientID:     clientID,
		Username:     username,
		Scope:        scope,
		ExpiresAt:    now.Add(cfg.refreshTTL()),
		CreatedAt:    now,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save refresh token: %w", err)
	}
	return value, nil
}

// newToken assembles the response token with the scope extra
func newToken(accessToken, refreshToken string, ttl time.Duration, now time.Time, scope []string) *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		Expiry:       now.Add(ttl),
		ExpiresIn:    int64(ttl.Seconds()),
	}
	if len(scope) == 0 {
		return token
	}
	return token.WithExtra(map[string]any{"scope": util.JoinScope(scope)})
}
