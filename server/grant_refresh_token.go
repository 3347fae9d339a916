package server

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth2-core/storage"
)

// RefreshTokenGrant exchanges a refresh token for a new access token
// (RFC 6749 Section 6).
//
// The presented refresh token is not deleted. Its expiry is moved to now
// plus the rotation window, so it stays usable only briefly while the
// issuer hands out its successor.
type RefreshTokenGrant struct {
	deps *Dependencies
}

// NewRefreshTokenGrant is the GrantHandlerFactory for refresh_token
func NewRefreshTokenGrant(deps *Dependencies) (GrantHandler, error) {
	if err := deps.requireCore(); err != nil {
		return nil, err
	}
	return &RefreshTokenGrant{deps: deps}, nil
}

// GrantType returns "refresh_token"
func (g *RefreshTokenGrant) GrantType() string {
	return GrantTypeRefreshToken
}

// Handle validates the refresh token and the requested scope, shortens the
// refresh token's lifetime and issues a token.
func (g *RefreshTokenGrant) Handle(ctx context.Context, req *TokenRequest) (*oauth2.Token, error) {
	d := g.deps
	clientID := req.ClientID
	if clientID == "" {
		return nil, ErrInvalidClient(DescClientAuthFailed)
	}

	if oauthErr := requireParam(req.RefreshToken); oauthErr != nil {
		return nil, oauthErr
	}

	rt, err := d.Store.GetRefreshToken(ctx, req.RefreshToken)
	if errors.Is(err, storage.ErrRefreshTokenNotFound) {
		return nil, ErrInvalidGrant(DescRefreshTokenInvalid)
	}
	if err != nil {
		return nil, d.internalError(ctx, "failed to load refresh token", err)
	}
	if rt.ClientID != clientID {
		d.Auditor.LogAuthFailure(ctx, rt.Username, clientID, "refresh_token_client_mismatch")
		return nil, ErrInvalidGrant(DescRefreshTokenInvalid)
	}
	if d.expired(rt.ExpiresAt) {
		return nil, ErrInvalidGrant(DescRefreshTokenExpired)
	}

	requested, oauthErr := parseScopeParam(req.Scope)
	if oauthErr != nil {
		return nil, oauthErr
	}

	scope := requested
	switch {
	case requested == nil:
		scope = rt.Scope
	case len(rt.Scope) > 0 && !ScopeSubset(requested, rt.Scope):
		d.Auditor.LogScopeEscalationAttempt(ctx, rt.Username, clientID, requested)
		return nil, ErrInvalidScope(DescScopeExceeded)
	}

	if len(scope) > 0 {
		if _, oauthErr := d.checkScope(ctx, clientID, rt.Username, scope, DescScopeExceeded); oauthErr != nil {
			return nil, oauthErr
		}
	}

	expiresAt := d.now().Add(d.Config.RotationWindow())
	err = d.Store.UpdateRefreshTokenExpiry(ctx, req.RefreshToken, expiresAt)
	if errors.Is(err, storage.ErrRefreshTokenNotFound) {
		return nil, ErrInvalidGrant(DescRefreshTokenInvalid)
	}
	if err != nil {
		return nil, d.internalError(ctx, "failed to update refresh token", err)
	}
	d.Auditor.LogTokenRefreshed(ctx, rt.Username, clientID, expiresAt)
	d.metrics().RecordTokenRefresh(ctx, clientID)

	token, err := d.Issuer.IssueToken(ctx, clientID, rt.Username, scope)
	if err != nil {
		return nil, d.internalError(ctx, "failed to issue token", err)
	}

	d.Auditor.LogTokenIssued(ctx, rt.Username, clientID, GrantTypeRefreshToken, scope)
	logToken(ctx, d.logger(), GrantTypeRefreshToken, clientID, rt.Username, token)
	return token, nil
}
