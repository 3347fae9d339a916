package server

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth2-core/internal/util"
	"github.com/giantswarm/oauth2-core/storage"
)

// AuthorizationCodeGrant redeems authorization codes issued by the code
// response type (RFC 6749 Section 4.1.3).
type AuthorizationCodeGrant struct {
	deps *Dependencies
}

// NewAuthorizationCodeGrant is the GrantHandlerFactory for authorization_code
func NewAuthorizationCodeGrant(deps *Dependencies) (GrantHandler, error) {
	if err := deps.requireCore(); err != nil {
		return nil, err
	}
	return &AuthorizationCodeGrant{deps: deps}, nil
}

// GrantType returns "authorization_code"
func (g *AuthorizationCodeGrant) GrantType() string {
	return GrantTypeAuthorizationCode
}

// Handle validates the redirect URI and the code, consumes the code and
// issues a token for the code's subject and scope.
func (g *AuthorizationCodeGrant) Handle(ctx context.Context, req *TokenRequest) (*oauth2.Token, error) {
	d := g.deps
	clientID := req.ClientID
	if clientID == "" {
		return nil, ErrInvalidClient(DescClientAuthFailed)
	}

	client, err := d.Store.GetClient(ctx, clientID)
	if errors.Is(err, storage.ErrClientNotFound) {
		return nil, ErrInvalidClient(DescClientAuthFailed)
	}
	if err != nil {
		return nil, d.internalError(ctx, "failed to load client", err)
	}

	redirectURI, err := resolveRedirectURI(client, req.RedirectURI, d.Config.RedirectURIMatching)
	switch {
	case errors.Is(err, errRedirectURIInvalid):
		return nil, ErrInvalidRequest(DescInvalidParameter)
	case errors.Is(err, ErrRedirectURIMissing):
		return nil, ErrInvalidRequest(DescMissingParameter)
	case errors.Is(err, ErrRedirectURIMismatch):
		d.Auditor.LogInvalidRedirect(ctx, clientID, "redirect_uri_mismatch")
		return nil, ErrInvalidGrant(DescRedirectURIMismatch)
	}

	if oauthErr := requireParam(req.Code); oauthErr != nil {
		return nil, oauthErr
	}

	code, err := d.Store.GetAuthorizationCode(ctx, req.Code)
	if errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		d.logger().WarnContext(ctx, "Unknown authorization code",
			"client_id", clientID, "code_prefix", util.SafeTruncate(req.Code, 8))
		return nil, ErrInvalidGrant(DescInvalidGrant)
	}
	if err != nil {
		return nil, d.internalError(ctx, "failed to load authorization code", err)
	}
	if code.ClientID != clientID {
		d.Auditor.LogAuthFailure(ctx, code.Username, clientID, "authorization_code_client_mismatch")
		return nil, ErrInvalidGrant(DescInvalidGrant)
	}
	if d.expired(code.ExpiresAt) {
		return nil, ErrInvalidGrant(DescExpiredGrant)
	}
	if !d.Config.DisableRedirectURIBinding && code.RedirectURI != "" && code.RedirectURI != redirectURI {
		d.Auditor.LogInvalidRedirect(ctx, clientID, "redirect_uri_not_bound_to_code")
		return nil, ErrInvalidGrant(DescRedirectURIMismatch)
	}

	// only one concurrent redemption deletes the code
	err = d.Store.DeleteAuthorizationCode(ctx, req.Code)
	if errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		d.Auditor.LogAuthorizationCodeReuse(ctx, code.Username, clientID)
		return nil, ErrInvalidGrant(DescInvalidGrant)
	}
	if err != nil {
		return nil, d.internalError(ctx, "failed to delete authorization code", err)
	}
	d.Auditor.LogAuthorizationCodeRedeemed(ctx, code.Username, clientID)
	d.metrics().RecordCodeRedeemed(ctx, clientID)

	token, err := d.Issuer.IssueToken(ctx, clientID, code.Username, code.Scope)
	if err != nil {
		return nil, d.internalError(ctx, "failed to issue token", err)
	}

	d.Auditor.LogTokenIssued(ctx, code.Username, clientID, GrantTypeAuthorizationCode, code.Scope)
	logToken(ctx, d.logger(), GrantTypeAuthorizationCode, clientID, code.Username, token)
	return token, nil
}
