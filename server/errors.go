package server

import (
	"errors"
	"net/http"
)

// ErrorKind is the machine readable OAuth error code (RFC 6749 Section 5.2).
type ErrorKind string

// Error kinds produced by the grant and response type handlers.
const (
	KindInvalidRequest       ErrorKind = "invalid_request"
	KindInvalidClient        ErrorKind = "invalid_client"
	KindInvalidGrant         ErrorKind = "invalid_grant"
	KindInvalidScope         ErrorKind = "invalid_scope"
	KindUnauthorizedClient   ErrorKind = "unauthorized_client"
	KindUnsupportedGrantType ErrorKind = "unsupported_grant_type"
	KindServerError          ErrorKind = "server_error"
)

// Error descriptions. Each failure site uses one of these verbatim so that
// clients see a stable text per condition.
const (
	DescInvalidParameter      = "The request includes an invalid parameter value."
	DescMissingParameter      = "The request is missing a required parameter."
	DescInvalidGrant          = "The provided authorization grant is invalid."
	DescExpiredGrant          = "The provided authorization grant is expired."
	DescRedirectURIMismatch   = "The provided authorization grant does not match the redirection URI used in the authorization request."
	DescInvalidCredentials    = "The provided resource owner credentials is invalid."
	DescRefreshTokenInvalid   = "The provided refresh token was issued to another client."
	DescRefreshTokenExpired   = "The provided refresh token is expired."
	DescScopeExceeded         = "The requested scope exceeds the scope granted by the resource owner."
	DescScopeUnknown          = "The requested scope is unknown."
	DescScopeInvalid          = "The requested scope is invalid."
	DescGrantNotAuthorized    = "The requested grant is invalid."
	DescUnauthorizedClient    = "The client is not authorized."
	DescUnsupportedGrantType  = "The authorization grant type is not supported by the authorization server."
	DescServerError           = "The authorization server encountered an unexpected condition that prevented it from fulfilling the request."
	DescClientAuthFailed      = "Client authentication failed."
	DescGrantTypeNotPermitted = "The authenticated client is not authorized to use this authorization grant type."
)

// Status returns the HTTP status code for the kind.
func (k ErrorKind) Status() int {
	switch k {
	case KindInvalidClient:
		return http.StatusUnauthorized
	case KindServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Error is a protocol error. RedirectURI and State are set when the error
// should be delivered to the client by redirect instead of a response body.
type Error struct {
	Kind        ErrorKind
	Description string
	RedirectURI string
	State       string

	// cause is the internal error behind a server_error. It is logged, never rendered.
	cause error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Description
}

// Unwrap returns the internal cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// Status returns the HTTP status code for the error
func (e *Error) Status() int {
	return e.Kind.Status()
}

// WithRedirect returns a copy of e that carries redirect context
func (e *Error) WithRedirect(redirectURI, state string) *Error {
	cp := *e
	cp.RedirectURI = redirectURI
	cp.State = state
	return &cp
}

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(desc string) *Error {
	return &Error{Kind: KindInvalidRequest, Description: desc}
}

// ErrInvalidClient creates an invalid_client error
func ErrInvalidClient(desc string) *Error {
	return &Error{Kind: KindInvalidClient, Description: desc}
}

// ErrInvalidGrant creates an invalid_grant error
func ErrInvalidGrant(desc string) *Error {
	return &Error{Kind: KindInvalidGrant, Description: desc}
}

// ErrInvalidScope creates an invalid_scope error
func ErrInvalidScope(desc string) *Error {
	return &Error{Kind: KindInvalidScope, Description: desc}
}

// ErrUnauthorizedClient creates an unauthorized_client error
func ErrUnauthorizedClient(desc string) *Error {
	return &Error{Kind: KindUnauthorizedClient, Description: desc}
}

// ErrUnsupportedGrantType creates an unsupported_grant_type error
func ErrUnsupportedGrantType(desc string) *Error {
	return &Error{Kind: KindUnsupportedGrantType, Description: desc}
}

// ErrServerError creates a server_error with the generic description.
// cause is kept for logging and errors.Is/As but never rendered.
func ErrServerError(cause error) *Error {
	return &Error{Kind: KindServerError, Description: DescServerError, cause: cause}
}

// AsError returns the *Error in err's chain, or a server_error wrapping err.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return ErrServerError(err)
}
