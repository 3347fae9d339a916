package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/oauth2-core/internal/util"
	"github.com/giantswarm/oauth2-core/storage"
)

type authorizationCodeJSON struct {
	Code        string    `json:"code"`
	ClientID    string    `json:"client_id"`
	Username    string    `json:"username"`
	RedirectURI string    `json:"redirect_uri,omitempty"`
	Scope       []string  `json:"scope"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// tokenJSON is shared by refresh and access tokens
type tokenJSON struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type,omitempty"`
	ClientID  string    `json:"client_id"`
	Username  string    `json:"username,omitempty"`
	Scope     []string  `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (j *tokenJSON) toRefreshToken() *storage.RefreshToken {
	return &storage.RefreshToken{
		RefreshToken: j.Token,
		ClientID:     j.ClientID,
		Username:     j.Username,
		Scope:        j.Scope,
		ExpiresAt:    j.ExpiresAt,
		CreatedAt:    j.CreatedAt,
	}
}

// ============================================================
// AuthorizationCodeStore Implementation
// ============================================================

// SaveAuthorizationCode saves an issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, done := s.observer.Start(ctx, "save_authorization_code")
	defer func() { done(err) }()

	if code == nil || code.Code == "" {
		return fmt.Errorf("authorization code cannot be empty")
	}
	if err := validateLength(code.Code, MaxTokenLength); err != nil {
		return err
	}

	j := &authorizationCodeJSON{
		Code:        code.Code,
		ClientID:    code.ClientID,
		Username:    code.Username,
		RedirectURI: code.RedirectURI,
		Scope:       code.Scope,
		ExpiresAt:   code.ExpiresAt,
		CreatedAt:   code.CreatedAt,
	}
	if err := s.setJSON(ctx, s.codeKey(code.Code), j, s.expiringTTL(code.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode retrieves an authorization code, expired or not
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	ctx, done := s.observer.Start(ctx, "get_authorization_code")
	defer func() { done(err) }()

	if err := validateLength(code, MaxTokenLength); err != nil {
		return nil, storage.ErrAuthorizationCodeNotFound
	}

	j, err := getJSON[authorizationCodeJSON](ctx, s, s.codeKey(code), storage.ErrAuthorizationCodeNotFound)
	if err != nil {
		return nil, err
	}
	return &storage.AuthorizationCode{
		Code:        j.Code,
		ClientID:    j.ClientID,
		Username:    j.Username,
		RedirectURI: j.RedirectURI,
		Scope:       j.Scope,
		ExpiresAt:   j.ExpiresAt,
		CreatedAt:   j.CreatedAt,
	}, nil
}

// DeleteAuthorizationCode removes a code. Only one concurrent caller succeeds.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) (err error) {
	ctx, done := s.observer.Start(ctx, "delete_authorization_code")
	defer func() { done(err) }()

	return s.deleteKey(ctx, s.codeKey(code), storage.ErrAuthorizationCodeNotFound)
}

// ============================================================
// RefreshTokenStore Implementation
// ============================================================

// SaveRefreshToken saves a refresh token
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	ctx, done := s.observer.Start(ctx, "save_refresh_token")
	defer func() { done(err) }()

	if token == nil || token.RefreshToken == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}
	if err := validateLength(token.RefreshToken, MaxTokenLength); err != nil {
		return err
	}

	j := &tokenJSON{
		Token:     token.RefreshToken,
		ClientID:  token.ClientID,
		Username:  token.Username,
		Scope:     token.Scope,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: token.CreatedAt,
	}
	if err := s.setJSON(ctx, s.refreshTokenKey(token.RefreshToken), j, s.expiringTTL(token.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token, expired or not
func (s *Store) GetRefreshToken(ctx context.Context, refreshToken string) (_ *storage.RefreshToken, err error) {
	ctx, done := s.observer.Start(ctx, "get_refresh_token")
	defer func() { done(err) }()

	if err := validateLength(refreshToken, MaxTokenLength); err != nil {
		return nil, storage.ErrRefreshTokenNotFound
	}

	j, err := getJSON[tokenJSON](ctx, s, s.refreshTokenKey(refreshToken), storage.ErrRefreshTokenNotFound)
	if err != nil {
		return nil, err
	}
	return j.toRefreshToken(), nil
}

// UpdateRefreshTokenExpiry rewrites the token record with a new expiry.
// The write goes through a Lua script so a token deleted in the meantime is
// not recreated.
func (s *Store) UpdateRefreshTokenExpiry(ctx context.Context, refreshToken string, expiresAt time.Time) (err error) {
	ctx, done := s.observer.Start(ctx, "update_refresh_token_expiry")
	defer func() { done(err) }()

	key := s.refreshTokenKey(refreshToken)
	j, err := getJSON[tokenJSON](ctx, s, key, storage.ErrRefreshTokenNotFound)
	if err != nil {
		return err
	}
	j.ExpiresAt = expiresAt

	return s.replaceIfExists(ctx, key, j, s.expiringTTL(expiresAt), storage.ErrRefreshTokenNotFound)
}

// DeleteRefreshToken removes a refresh token
func (s *Store) DeleteRefreshToken(ctx context.Context, refreshToken string) (err error) {
	ctx, done := s.observer.Start(ctx, "delete_refresh_token")
	defer func() { done(err) }()

	return s.deleteKey(ctx, s.refreshTokenKey(refreshToken), storage.ErrRefreshTokenNotFound)
}

// ============================================================
// AccessTokenStore Implementation
// ============================================================

// SaveAccessToken saves an access token
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	ctx, done := s.observer.Start(ctx, "save_access_token")
	defer func() { done(err) }()

	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}
	if err := validateLength(token.AccessToken, MaxTokenLength); err != nil {
		return err
	}

	j := &tokenJSON{
		Token:     token.AccessToken,
		TokenType: token.TokenType,
		ClientID:  token.ClientID,
		Username:  token.Username,
		Scope:     token.Scope,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: token.CreatedAt,
	}
	if err := s.setJSON(ctx, s.accessTokenKey(token.AccessToken), j, s.expiringTTL(token.ExpiresAt)); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

// GetAccessToken retrieves an access token
func (s *Store) GetAccessToken(ctx context.Context, accessToken string) (_ *storage.AccessToken, err error) {
	ctx, done := s.observer.Start(ctx, "get_access_token")
	defer func() { done(err) }()

	j, err := getJSON[tokenJSON](ctx, s, s.accessTokenKey(accessToken), storage.ErrAccessTokenNotFound)
	if err != nil {
		return nil, err
	}
	return &storage.AccessToken{
		AccessToken: j.Token,
		TokenType:   j.TokenType,
		ClientID:    j.ClientID,
		Username:    j.Username,
		Scope:       j.Scope,
		ExpiresAt:   j.ExpiresAt,
		CreatedAt:   j.CreatedAt,
	}, nil
}

// DeleteAccessToken removes an access token
func (s *Store) DeleteAccessToken(ctx context.Context, accessToken string) (err error) {
	ctx, done := s.observer.Start(ctx, "delete_access_token")
	defer func() { done(err) }()

	return s.deleteKey(ctx, s.accessTokenKey(accessToken), storage.ErrAccessTokenNotFound)
}
