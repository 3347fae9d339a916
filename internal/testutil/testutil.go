// Package testutil provides fixtures and helpers shared by the package tests.
package testutil

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth2-core/storage"
)

// Fixed identifiers used across test suites
const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
	Username     = "alice"
	Password     = "correct horse battery staple"
	RedirectURI  = "https://app.example.com/cb"
)

// MockTime provides a controllable time source for deterministic testing.
// It is safe for concurrent use.
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// HashSecret bcrypt-hashes a secret at minimum cost to keep tests fast
func HashSecret(t testing.TB, secret string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// GenerateRandomString generates a random base64url string from length random bytes
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// Fixture describes the entities a test wants in its store.
type Fixture struct {
	Clients        []*storage.Client
	Scopes         []string
	Authorizations []*storage.Authorization
	Codes          []*storage.AuthorizationCode
	RefreshTokens  []*storage.RefreshToken
}

// DefaultFixture is a confidential client with a registered redirect URI,
// the scopes "read", "write" and "admin", and alice's approval of
// "read write" for every grant type.
func DefaultFixture(t testing.TB) Fixture {
	t.Helper()
	return Fixture{
		Clients: []*storage.Client{{
			ClientID:         ClientID,
			ClientSecretHash: HashSecret(t, ClientSecret),
			RedirectURI:      RedirectURI,
			ClientName:       "Test Client",
		}},
		Scopes: []string{"read", "write", "admin"},
		Authorizations: []*storage.Authorization{{
			ClientID:   ClientID,
			Username:   Username,
			Scope:      []string{"read", "write"},
			GrantTypes: []string{"authorization_code", "password", "refresh_token"},
		}},
	}
}

// Seed writes every entity of f into store, failing the test on error.
func Seed(t testing.TB, store storage.Store, f Fixture) {
	t.Helper()
	ctx := context.Background()

	for _, c := range f.Clients {
		if err := store.SaveClient(ctx, c); err != nil {
			t.Fatalf("SaveClient(%s): %v", c.ClientID, err)
		}
	}
	for _, s := range f.Scopes {
		if err := store.SaveScope(ctx, &storage.Scope{Scope: s}); err != nil {
			t.Fatalf("SaveScope(%s): %v", s, err)
		}
	}
	for _, a := range f.Authorizations {
		if err := store.SaveAuthorization(ctx, a); err != nil {
			t.Fatalf("SaveAuthorization(%s, %s): %v", a.ClientID, a.Username, err)
		}
	}
	for _, c := range f.Codes {
		if err := store.SaveAuthorizationCode(ctx, c); err != nil {
			t.Fatalf("SaveAuthorizationCode: %v", err)
		}
	}
	for _, rt := range f.RefreshTokens {
		if err := store.SaveRefreshToken(ctx, rt); err != nil {
			t.Fatalf("SaveRefreshToken: %v", err)
		}
	}
}
