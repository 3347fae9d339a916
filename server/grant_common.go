package server

import (
	"context"
	"errors"

	"github.com/giantswarm/oauth2-core/storage"
)

// requireParam checks a required VSCHAR parameter
func requireParam(value string) *Error {
	if value == "" {
		return ErrInvalidRequest(DescMissingParameter)
	}
	if !ValidVSChars(value) {
		return ErrInvalidRequest(DescInvalidParameter)
	}
	return nil
}

// parseScopeParam validates an optional scope parameter. An empty
// parameter yields nil, meaning no scope was requested.
func parseScopeParam(scope string) ([]string, *Error) {
	if scope == "" {
		return nil, nil
	}
	if !ValidScopeParam(scope) {
		return nil, ErrInvalidRequest(DescInvalidParameter)
	}
	return ParseScope(scope), nil
}

// supportedScopes returns the names of every scope the server knows
func (d *Dependencies) supportedScopes(ctx context.Context) ([]string, error) {
	scopes, err := d.Store.ListScopes(ctx)
	if err != nil {
		return nil, err
	}
	return storage.ScopeNames(scopes), nil
}

// authorization returns what username approved for clientID. A missing
// record is an empty approval.
func (d *Dependencies) authorization(ctx context.Context, clientID, username string) (*storage.Authorization, error) {
	authz, err := d.Store.GetAuthorization(ctx, clientID, username)
	if errors.Is(err, storage.ErrAuthorizationNotFound) {
		return &storage.Authorization{ClientID: clientID, Username: username}, nil
	}
	return authz, err
}

// checkScope validates requested against the supported scopes and the
// scopes username authorized for clientID. exceededDesc is the description
// used when the request goes beyond the authorization.
func (d *Dependencies) checkScope(ctx context.Context, clientID, username string, requested []string, exceededDesc string) (*storage.Authorization, *Error) {
	supported, err := d.supportedScopes(ctx)
	if err != nil {
		return nil, d.internalError(ctx, "failed to list scopes", err)
	}
	authz, err := d.authorization(ctx, clientID, username)
	if err != nil {
		return nil, d.internalError(ctx, "failed to load authorization", err)
	}

	switch ValidateScope(requested, supported, authz.Scope) {
	case errScopeUnknown:
		return nil, ErrInvalidScope(DescScopeUnknown)
	case errScopeNotAuthorized:
		d.Auditor.LogScopeEscalationAttempt(ctx, username, clientID, requested)
		return nil, ErrInvalidScope(exceededDesc)
	}
	return authz, nil
}
