package server

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth2-core/providers"
)

// PasswordGrant exchanges resource owner credentials for a token
// (RFC 6749 Section 4.3.2).
type PasswordGrant struct {
	deps *Dependencies
}

// NewPasswordGrant is the GrantHandlerFactory for password. It fails
// without an Authenticator, which makes the grant unsupported.
func NewPasswordGrant(deps *Dependencies) (GrantHandler, error) {
	if err := deps.requireCore(); err != nil {
		return nil, err
	}
	if deps.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	return &PasswordGrant{deps: deps}, nil
}

// GrantType returns "password"
func (g *PasswordGrant) GrantType() string {
	return GrantTypePassword
}

// Handle authenticates the resource owner, checks the requested scope and
// issues a token.
func (g *PasswordGrant) Handle(ctx context.Context, req *TokenRequest) (*oauth2.Token, error) {
	d := g.deps
	clientID := req.ClientID
	if clientID == "" {
		return nil, ErrInvalidClient(DescClientAuthFailed)
	}

	for _, v := range []string{req.Username, req.Password} {
		if v == "" {
			return nil, ErrInvalidRequest(DescMissingParameter)
		}
		if !ValidCredential(v) {
			return nil, ErrInvalidRequest(DescInvalidParameter)
		}
	}

	user, err := d.Authenticator.Authenticate(ctx, req.Username, req.Password)
	if errors.Is(err, providers.ErrInvalidCredentials) {
		// throttled attempts are already audited by the rate limiter
		if !errors.Is(err, providers.ErrTooManyAttempts) {
			d.Auditor.LogAuthFailure(ctx, req.Username, clientID, "invalid_resource_owner_credentials")
		}
		return nil, ErrInvalidGrant(DescInvalidCredentials)
	}
	if err != nil {
		return nil, d.internalError(ctx, "authenticator failed", err)
	}
	username := req.Username
	if user != nil && user.Username != "" {
		username = user.Username
	}

	scope, oauthErr := parseScopeParam(req.Scope)
	if oauthErr != nil {
		return nil, oauthErr
	}
	if scope != nil {
		if _, oauthErr := d.checkScope(ctx, clientID, username, scope, DescScopeExceeded); oauthErr != nil {
			return nil, oauthErr
		}
	}

	token, err := d.Issuer.IssueToken(ctx, clientID, username, scope)
	if err != nil {
		return nil, d.internalError(ctx, "failed to issue token", err)
	}

	d.Auditor.LogTokenIssued(ctx, username, clientID, GrantTypePassword, scope)
	logToken(ctx, d.logger(), GrantTypePassword, clientID, username, token)
	return token, nil
}
