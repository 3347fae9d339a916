package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by every Store implementation. Callers match them
// with errors.Is; implementations may wrap them with additional context.
var (
	ErrClientNotFound            = errors.New("client not found")
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")
	ErrRefreshTokenNotFound      = errors.New("refresh token not found")
	ErrAccessTokenNotFound       = errors.New("access token not found")
	ErrScopeNotFound             = errors.New("scope not found")
	ErrAuthorizationNotFound     = errors.New("authorization not found")
)

// ClientStore manages registered OAuth clients.
// The grant handlers only ever read clients.
type ClientStore interface {
	// SaveClient creates or replaces a client
	SaveClient(ctx context.Context, client *Client) error

	// GetClient returns ErrClientNotFound for unknown ids
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ListClients lists all registered clients
	ListClients(ctx context.Context) ([]*Client, error)

	// DeleteClient removes a client
	DeleteClient(ctx context.Context, clientID string) error
}

// AuthorizationCodeStore manages issued authorization codes.
type AuthorizationCodeStore interface {
	// SaveAuthorizationCode persists a newly issued code
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode returns ErrAuthorizationCodeNotFound for unknown
	// or already redeemed codes. Expired codes are still returned; the caller
	// decides about expiry.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes a code. It MUST be atomic: when several
	// callers delete the same code concurrently exactly one of them succeeds
	// and the others get ErrAuthorizationCodeNotFound.
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// RefreshTokenStore manages refresh tokens.
type RefreshTokenStore interface {
	// SaveRefreshToken persists a refresh token
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken returns ErrRefreshTokenNotFound for unknown tokens
	GetRefreshToken(ctx context.Context, refreshToken string) (*RefreshToken, error)

	// UpdateRefreshTokenExpiry sets a new expiry on an existing token.
	// Returns ErrRefreshTokenNotFound if the token no longer exists; it never
	// recreates a deleted token.
	UpdateRefreshTokenExpiry(ctx context.Context, refreshToken string, expiresAt time.Time) error

	// DeleteRefreshToken removes a refresh token
	DeleteRefreshToken(ctx context.Context, refreshToken string) error
}

// AccessTokenStore manages access tokens minted by the bundled token issuers.
type AccessTokenStore interface {
	SaveAccessToken(ctx context.Context, token *AccessToken) error
	GetAccessToken(ctx context.Context, accessToken string) (*AccessToken, error)
	DeleteAccessToken(ctx context.Context, accessToken string) error
}

// ScopeStore manages the set of scopes the server supports.
type ScopeStore interface {
	SaveScope(ctx context.Context, scope *Scope) error
	ListScopes(ctx context.Context) ([]*Scope, error)
	DeleteScope(ctx context.Context, scope string) error
}

// AuthorizationStore manages the approvals a resource owner granted to a client.
type AuthorizationStore interface {
	// SaveAuthorization creates or replaces the record for (ClientID, Username)
	SaveAuthorization(ctx context.Context, authz *Authorization) error

	// GetAuthorization returns ErrAuthorizationNotFound when the resource
	// owner never authorized the client
	GetAuthorization(ctx context.Context, clientID, username string) (*Authorization, error)

	// DeleteAuthorization removes the record for (clientID, username)
	DeleteAuthorization(ctx context.Context, clientID, username string) error
}

// Store is the union of all entity stores. Every backend in this module
// implements it.
type Store interface {
	ClientStore
	AuthorizationCodeStore
	RefreshTokenStore
	AccessTokenStore
	ScopeStore
	AuthorizationStore
}

// Client represents a registered OAuth client
type Client struct {
	ClientID         string
	ClientSecretHash string // bcrypt hash
	// RedirectURI is optional; when empty the request must supply one
	RedirectURI string
	// GrantTypes restricts the grants the client may use. Empty means any.
	GrantTypes []string
	ClientName string
	CreatedAt  time.Time
}

// AuthorizationCode is a short lived, single use code issued by the
// authorization endpoint.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	Username    string
	RedirectURI string
	Scope       []string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// RefreshToken records what a refresh token was issued for.
type RefreshToken struct {
	RefreshToken string
	ClientID     string
	Username     string
	Scope        []string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// AccessToken records an access token minted by a token issuer.
type AccessToken struct {
	AccessToken string
	TokenType   string
	ClientID    string
	Username    string
	Scope       []string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Scope is a single supported scope token.
type Scope struct {
	Scope       string
	Description string
}

// Authorization is the set of scopes and grant types a resource owner
// approved for a client.
type Authorization struct {
	ClientID   string
	Username   string
	Scope      []string
	GrantTypes []string
}

// HasGrantType reports whether the authorization lists grantType.
func (a *Authorization) HasGrantType(grantType string) bool {
	for _, gt := range a.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// AllowsGrantType reports whether the client may use grantType.
// A client without an explicit list is unrestricted.
func (c *Client) AllowsGrantType(grantType string) bool {
	if len(c.GrantTypes) == 0 {
		return true
	}
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// ScopeNames flattens scope records into their identifiers.
func ScopeNames(scopes []*Scope) []string {
	names := make([]string, 0, len(scopes))
	for _, s := range scopes {
		names = append(names, s.Scope)
	}
	return names
}
