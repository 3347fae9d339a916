package providers

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidCredentials is returned when the username is unknown or the
// password does not match. Implementations must not distinguish the two.
var ErrInvalidCredentials = errors.New("invalid resource owner credentials")

// ErrTooManyAttempts is returned by RateLimited when a username is throttled.
// It matches ErrInvalidCredentials so callers treat it as a credential failure.
var ErrTooManyAttempts = fmt.Errorf("%w: too many attempts", ErrInvalidCredentials)

// Authenticator verifies resource owner credentials.
//
// Authenticate returns the verified user, an error matching
// ErrInvalidCredentials for bad credentials, or any other error when the
// backing user directory failed.
type Authenticator interface {
	// Name identifies the implementation in logs
	Name() string

	Authenticate(ctx context.Context, username, password string) (*UserInfo, error)
}

// UserInfo describes an authenticated resource owner
type UserInfo struct {
	// Username is the subject stored on codes and tokens
	Username string

	// Name is the display name, if known
	Name string

	// Email is the user's email address, if known
	Email string
}
