package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"

	"github.com/giantswarm/oauth2-core/storage"
)

// CodeResponseType issues authorization codes at the authorization
// endpoint (RFC 6749 Section 4.1.1).
type CodeResponseType struct {
	deps *Dependencies
}

// NewCodeResponseType is the ResponseTypeHandlerFactory for code
func NewCodeResponseType(deps *Dependencies) (ResponseTypeHandler, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return &CodeResponseType{deps: deps}, nil
}

// ResponseType returns "code"
func (h *CodeResponseType) ResponseType() string {
	return ResponseTypeCode
}

// Handle validates the request, persists a new code and returns the
// redirect carrying it. Errors raised after the redirect URI is resolved
// carry it, so they can be delivered by redirect.
func (h *CodeResponseType) Handle(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResponse, error) {
	d := h.deps

	if req.Username == "" {
		return nil, ErrServerError(errors.New("authenticated subject is missing"))
	}

	if oauthErr := requireParam(req.ClientID); oauthErr != nil {
		return nil, oauthErr
	}
	client, err := d.Store.GetClient(ctx, req.ClientID)
	if errors.Is(err, storage.ErrClientNotFound) {
		return nil, ErrUnauthorizedClient(DescUnauthorizedClient)
	}
	if err != nil {
		return nil, d.internalError(ctx, "failed to load client", err)
	}

	redirectURI, err := resolveRedirectURI(client, req.RedirectURI, d.Config.RedirectURIMatching)
	switch {
	case errors.Is(err, ErrRedirectURIMissing):
		return nil, ErrInvalidRequest(DescMissingParameter)
	case err != nil:
		d.Auditor.LogInvalidRedirect(ctx, req.ClientID, err.Error())
		return nil, ErrInvalidRequest(DescInvalidParameter)
	}

	if oauthErr := requireParam(req.State); oauthErr != nil {
		return nil, oauthErr.WithRedirect(redirectURI, "")
	}
	state := req.State

	scope, oauthErr := parseScopeParam(req.Scope)
	if oauthErr != nil {
		return nil, oauthErr.WithRedirect(redirectURI, state)
	}
	if scope != nil {
		authz, oauthErr := d.checkScope(ctx, req.ClientID, req.Username, scope, DescScopeInvalid)
		if oauthErr != nil {
			return nil, oauthErr.WithRedirect(redirectURI, state)
		}
		if !authz.HasGrantType(GrantTypeAuthorizationCode) {
			return nil, ErrInvalidGrant(DescGrantNotAuthorized).WithRedirect(redirectURI, state)
		}
	}

	value, err := generateCode(d.Config.AuthorizationCodeBytes)
	if err != nil {
		return nil, d.internalError(ctx, "failed to generate authorization code", err).WithRedirect(redirectURI, state)
	}

	now := d.now()
	code := &storage.AuthorizationCode{
		Code:        value,
		ClientID:    req.ClientID,
		Username:    req.Username,
		RedirectURI: redirectURI,
		Scope:       scope,
		ExpiresAt:   now.Add(d.Config.CodeTTL()),
		CreatedAt:   now,
	}
	if err := d.Store.SaveAuthorizationCode(ctx, code); err != nil {
		return nil, d.internalError(ctx, "failed to save authorization code", err).WithRedirect(redirectURI, state)
	}

	location, err := AppendQuery(redirectURI, url.Values{"code": {value}, "state": {state}})
	if err != nil {
		return nil, d.internalError(ctx, "failed to build redirect", err)
	}

	d.Auditor.LogAuthorizationCodeIssued(ctx, req.Username, req.ClientID, scope)
	d.metrics().RecordCodeIssued(ctx, req.ClientID)
	d.logger().InfoContext(ctx, "Issued authorization code",
		"client_id", req.ClientID,
		"username", req.Username,
		"expires_at", code.ExpiresAt)

	return &AuthorizeResponse{
		RedirectURL: location,
		Code:        value,
		State:       state,
		ExpiresAt:   code.ExpiresAt,
	}, nil
}

// generateCode returns n random bytes, hex encoded
func generateCode(n int) (string, error) {
	if n <= 0 {
		n = 64
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
