package issuer

import (
	"context"
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth2-core/internal/util"
	"github.com/giantswarm/oauth2-core/server"
	"github.com/giantswarm/oauth2-core/storage"
)

// Claims are the claims of a JWT access token. The audience is the client
// the token was issued to.
type Claims struct {
	jwt.RegisteredClaims

	// Scope contains space-separated scopes
	Scope string `json:"scope,omitempty"`

	// ClientID is the client that requested the token
	ClientID string `json:"client_id,omitempty"`
}

// Scopes returns the granted scopes
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// JWTConfig configures the JWT issuer
type JWTConfig struct {
	Config

	// Issuer is the iss claim
	Issuer string

	// SigningKey signs access tokens with RS256
	SigningKey *rsa.PrivateKey

	// KeyID is put in the kid header (default: derived with KeyID)
	KeyID string
}

// JWT issues RS256 JWT access tokens with opaque refresh tokens
type JWT struct {
	store  storage.RefreshTokenStore
	cfg    Config
	issuer string
	key    *rsa.PrivateKey
	kid    string
}

var _ server.TokenIssuer = (*JWT)(nil)

// NewJWT creates a JWT issuer. Refresh tokens are saved to store.
func NewJWT(store storage.RefreshTokenStore, cfg JWTConfig) (*JWT, error) {
	if store == nil {
		return nil, fmt.Errorf("refresh token store is required")
	}
	if cfg.SigningKey == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	kid := cfg.KeyID
	if kid == "" {
		var err error
		if kid, err = KeyID(&cfg.SigningKey.PublicKey); err != nil {
			return nil, err
		}
	}
	return &JWT{
		store:  store,
		cfg:    applyDefaults(cfg.Config),
		issuer: cfg.Issuer,
		key:    cfg.SigningKey,
		kid:    kid,
	}, nil
}

// IssueToken signs an access token and persists a refresh token
func (j *JWT) IssueToken(ctx context.Context, clientID, username string, scope []string) (*oauth2.Token, error) {
	now := j.cfg.Now()
	ttl := j.cfg.accessTTL()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    j.issuer,
			Subject:   username,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope:    util.JoinScope(scope),
		ClientID: clientID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = j.kid
	signed, err := token.SignedString(j.key)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}

	refreshToken, err := saveRefreshToken(ctx, j.store, j.cfg, clientID, username, scope, now)
	if err != nil {
		return nil, err
	}

	j.cfg.Logger.Debug("Minted JWT access token",
		"jti", claims.ID,
		"client_id", clientID,
		"expires_in", ttl.String())

	return newToken(signed, refreshToken, ttl, now, scope), nil
}
