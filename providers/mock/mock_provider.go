// Package mock provides a function-field implementation of providers.Authenticator for tests.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/oauth2-core/providers"
)

// MockAuthenticator is a mock implementation of providers.Authenticator
type MockAuthenticator struct {
	// AuthenticateFunc is called when Authenticate() is invoked
	AuthenticateFunc func(ctx context.Context, username, password string) (*providers.UserInfo, error)

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	mu sync.Mutex
}

var _ providers.Authenticator = (*MockAuthenticator)(nil)

// NewMockAuthenticator returns a mock that accepts exactly the given
// username/password pairs.
func NewMockAuthenticator(credentials map[string]string) *MockAuthenticator {
	return &MockAuthenticator{
		CallCounts: make(map[string]int),
		AuthenticateFunc: func(_ context.Context, username, password string) (*providers.UserInfo, error) {
			if want, ok := credentials[username]; ok && want == password {
				return &providers.UserInfo{Username: username}, nil
			}
			return nil, providers.ErrInvalidCredentials
		},
	}
}

// Name returns "mock"
func (m *MockAuthenticator) Name() string {
	return "mock"
}

// Authenticate records the call and delegates to AuthenticateFunc
func (m *MockAuthenticator) Authenticate(ctx context.Context, username, password string) (*providers.UserInfo, error) {
	m.mu.Lock()
	m.CallCounts["Authenticate"]++
	m.mu.Unlock()
	return m.AuthenticateFunc(ctx, username, password)
}

// Calls returns how many times method was invoked
func (m *MockAuthenticator) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[method]
}
