package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/oauth2-core/storage"
)

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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO authorization_codes (code, client_id, username, redirect_uri, scope, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		code.Code,
		code.ClientID,
		code.Username,
		code.RedirectURI,
		joinList(code.Scope),
		toUnix(code.ExpiresAt),
		toUnix(code.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	return nil
}

// GetAuthorizationCode retrieves an authorization code, expired or not
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	ctx, done := s.observer.Start(ctx, "get_authorization_code")
	defer func() { done(err) }()

	var (
		c                    = storage.AuthorizationCode{Code: code}
		scope                string
		expiresAt, createdAt int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT client_id, username, redirect_uri, scope, expires_at, created_at
		 FROM authorization_codes WHERE code = ?`, code,
	).Scan(&c.ClientID, &c.Username, &c.RedirectURI, &scope, &expiresAt, &createdAt)
	if err != nil {
		return nil, notFound(err, storage.ErrAuthorizationCodeNotFound)
	}

	c.Scope = splitList(scope)
	c.ExpiresAt = fromUnix(expiresAt)
	c.CreatedAt = fromUnix(createdAt)
	return &c, nil
}

// DeleteAuthorizationCode removes a code. Only one concurrent caller affects a row.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) (err error) {
	ctx, done := s.observer.Start(ctx, "delete_authorization_code")
	defer func() { done(err) }()

	return s.execAffecting(ctx, storage.ErrAuthorizationCodeNotFound,
		`DELETE FROM authorization_codes WHERE code = ?`, code)
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

	_, err = s.db.ExecContext(ctx,
		`REPLACE INTO refresh_tokens (refresh_token, client_id, username, scope, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		token.RefreshToken,
		token.ClientID,
		token.Username,
		joinList(token.Scope),
		toUnix(token.ExpiresAt),
		toUnix(token.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token, expired or not
func (s *Store) GetRefreshToken(ctx context.Context, refreshToken string) (_ *storage.RefreshToken, err error) {
	ctx, done := s.observer.Start(ctx, "get_refresh_token")
	defer func() { done(err) }()

	var (
		rt                   = storage.RefreshToken{RefreshToken: refreshToken}
		scope                string
		expiresAt, createdAt int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT client_id, username, scope, expires_at, created_at
		 FROM refresh_tokens WHERE refresh_token = ?`, refreshToken,
	).Scan(&rt.ClientID, &rt.Username, &scope, &expiresAt, &createdAt)
	if err != nil {
		return nil, notFound(err, storage.ErrRefreshTokenNotFound)
	}

	rt.Scope = splitList(scope)
	rt.ExpiresAt = fromUnix(expiresAt)
	rt.CreatedAt = fromUnix(createdAt)
	return &rt, nil
}

// UpdateRefreshTokenExpiry sets a new expiry on an existing refresh token
func (s *Store) UpdateRefreshTokenExpiry(ctx context.Context, refreshToken string, expiresAt time.Time) (err error) {
	ctx, done := s.observer.Start(ctx, "update_refresh_token_expiry")
	defer func() { done(err) }()

	return s.execAffecting(ctx, storage.ErrRefreshTokenNotFound,
		`UPDATE refresh_tokens SET expires_at = ? WHERE refresh_token = ?`, toUnix(expiresAt), refreshToken)
}

// DeleteRefreshToken removes a refresh token
func (s *Store) DeleteRefreshToken(ctx context.Context, refreshToken string) (err error) {
	ctx, done := s.observer.Start(ctx, "delete_refresh_token")
	defer func() { done(err) }()

	return s.execAffecting(ctx, storage.ErrRefreshTokenNotFound,
		`DELETE FROM refresh_tokens WHERE refresh_token = ?`, refreshToken)
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

	_, err = s.db.ExecContext(ctx,
		`REPLACE INTO access_tokens (access_token, token_type, client_id, username, scope, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token.AccessToken,
		token.TokenType,
		token.ClientID,
		token.Username,
		joinList(token.Scope),
		toUnix(token.ExpiresAt),
		toUnix(token.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

// GetAccessToken retrieves an access token
func (s *Store) GetAccessToken(ctx context.Context, accessToken string) (_ *storage.AccessToken, err error) {
	ctx, done := s.observer.Start(ctx, "get_access_token")
	defer func() { done(err) }()

	var (
		at                   = storage.AccessToken{AccessToken: accessToken}
		scope                string
		expiresAt, createdAt int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT token_type, client_id, username, scope, expires_at, created_at
		 FROM access_tokens WHERE access_token = ?`, accessToken,
	).Scan(&at.TokenType, &at.ClientID, &at.Username, &scope, &expiresAt, &createdAt)
	if err != nil {
		return nil, notFound(err, storage.ErrAccessTokenNotFound)
	}

	at.Scope = splitList(scope)
	at.ExpiresAt = fromUnix(expiresAt)
	at.CreatedAt = fromUnix(createdAt)
	return &at, nil
}

// DeleteAccessToken removes an access token
func (s *Store) DeleteAccessToken(ctx context.Context, accessToken string) (err error) {
	ctx, done := s.observer.Start(ctx, "delete_access_token")
	defer func() { done(err) }()

	return s.execAffecting(ctx, storage.ErrAccessTokenNotFound,
		`DELETE FROM access_tokens WHERE access_token = ?`, accessToken)
}
