// Package mock provides a storage.Store whose operations can be overridden per test.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/giantswarm/oauth2-core/storage"
	"github.com/giantswarm/oauth2-core/storage/memory"
)

// MockStore delegates every operation to an in-memory store unless the
// matching Func field is set. Tests use the Func fields to inject failures,
// e.g. a DeleteAuthorizationCodeFunc that simulates a concurrent redemption.
type MockStore struct {
	*memory.Store

	GetClientFunc                func(ctx context.Context, clientID string) (*storage.Client, error)
	GetAuthorizationCodeFunc     func(ctx context.Context, code string) (*storage.AuthorizationCode, error)
	SaveAuthorizationCodeFunc    func(ctx context.Context, code *storage.AuthorizationCode) error
	DeleteAuthorizationCodeFunc  func(ctx context.Context, code string) error
	GetRefreshTokenFunc          func(ctx context.Context, refreshToken string) (*storage.RefreshToken, error)
	UpdateRefreshTokenExpiryFunc func(ctx context.Context, refreshToken string, expiresAt time.Time) error
	ListScopesFunc               func(ctx context.Context) ([]*storage.Scope, error)
	GetAuthorizationFunc         func(ctx context.Context, clientID, username string) (*storage.Authorization, error)

	// CallCounts tracks how many times each overridable method was called
	CallCounts map[string]int

	mu sync.Mutex
}

var _ storage.Store = (*MockStore)(nil)

// NewMockStore creates a mock backed by a fresh in-memory store.
// Call Stop when done.
func NewMockStore() *MockStore {
	return &MockStore{
		Store:      memory.New(),
		CallCounts: make(map[string]int),
	}
}

func (m *MockStore) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[method]++
}

// Calls returns how many times method was invoked
func (m *MockStore) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCounts[method]
}

// GetClient calls GetClientFunc if set
func (m *MockStore) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	m.record("GetClient")
	if m.GetClientFunc != nil {
		return m.GetClientFunc(ctx, clientID)
	}
	return m.Store.GetClient(ctx, clientID)
}

// GetAuthorizationCode calls GetAuthorizationCodeFunc if set
func (m *MockStore) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	m.record("GetAuthorizationCode")
	if m.GetAuthorizationCodeFunc != nil {
		return m.GetAuthorizationCodeFunc(ctx, code)
	}
	return m.Store.GetAuthorizationCode(ctx, code)
}

// SaveAuthorizationCode calls SaveAuthorizationCodeFunc if set
func (m *MockStore) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	m.record("SaveAuthorizationCode")
	if m.SaveAuthorizationCodeFunc != nil {
		return m.SaveAuthorizationCodeFunc(ctx, code)
	}
	return m.Store.SaveAuthorizationCode(ctx, code)
}

// DeleteAuthorizationCode calls DeleteAuthorizationCodeFunc if set
func (m *MockStore) DeleteAuthorizationCode(ctx context.Context, code string) error {
	m.record("DeleteAuthorizationCode")
	if m.DeleteAuthorizationCodeFunc != nil {
		return m.DeleteAuthorizationCodeFunc(ctx, code)
	}
	return m.Store.DeleteAuthorizationCode(ctx, code)
}

// GetRefreshToken calls GetRefreshTokenFunc if set
func (m *MockStore) GetRefreshToken(ctx context.Context, refreshToken string) (*storage.RefreshToken, error) {
	m.record("GetRefreshToken")
	if m.GetRefreshTokenFunc != nil {
		return m.GetRefreshTokenFunc(ctx, refreshToken)
	}
	return m.Store.GetRefreshToken(ctx, refreshToken)
}

// UpdateRefreshTokenExpiry calls UpdateRefreshTokenExpiryFunc if set
func (m *MockStore) UpdateRefreshTokenExpiry(ctx context.Context, refreshToken string, expiresAt time.Time) error {
	m.record("UpdateRefreshTokenExpiry")
	if m.UpdateRefreshTokenExpiryFunc != nil {
		return m.UpdateRefreshTokenExpiryFunc(ctx, refreshToken, expiresAt)
	}
	return m.Store.UpdateRefreshTokenExpiry(ctx, refreshToken, expiresAt)
}

// ListScopes calls ListScopesFunc if set
func (m *MockStore) ListScopes(ctx context.Context) ([]*storage.Scope, error) {
	m.record("ListScopes")
	if m.ListScopesFunc != nil {
		return m.ListScopesFunc(ctx)
	}
	return m.Store.ListScopes(ctx)
}

// GetAuthorization calls GetAuthorizationFunc if set
func (m *MockStore) GetAuthorization(ctx context.Context, clientID, username string) (*storage.Authorization, error) {
	m.record("GetAuthorization")
	if m.GetAuthorizationFunc != nil {
		return m.GetAuthorizationFunc(ctx, clientID, username)
	}
	return m.Store.GetAuthorization(ctx, clientID, username)
}
