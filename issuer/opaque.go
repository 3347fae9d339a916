package issuer

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth2-core/internal/util"
	"github.com/giantswarm/oauth2-core/server"
	"github.com/giantswarm/oauth2-core/storage"
)

// Opaque issues random bearer tokens that are only meaningful to the store
// they are saved in.
type Opaque struct {
	store TokenStore
	cfg   Config
}

var _ server.TokenIssuer = (*Opaque)(nil)

// NewOpaque creates an opaque token issuer writing to store
func NewOpaque(store TokenStore, cfg Config) *Opaque {
	return &Opaque{store: store, cfg: applyDefaults(cfg)}
}

// IssueToken mints and persists an access token and a refresh token
func (o *Opaque) IssueToken(ctx context.Context, clientID, username string, scope []string) (*oauth2.Token, error) {
	now := o.cfg.Now()

	accessToken := oauth2.GenerateVerifier()
	err := o.store.SaveAccessToken(ctx, &storage.AccessToken{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ClientID:    clientID,
		Username:    username,
		Scope:       scope,
		ExpiresAt:   now.Add(o.cfg.accessTTL()),
		CreatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}

	refreshToken, err := saveRefreshToken(ctx, o.store, o.cfg, clientID, username, scope, now)
	if err != nil {
		return nil, err
	}

	o.cfg.Logger.Debug("Minted opaque token",
		"client_id", clientID,
		"access_token_prefix", util.SafeTruncate(accessToken, 8))

	return newToken(accessToken, refreshToken, o.cfg.accessTTL(), now, scope), nil
}
