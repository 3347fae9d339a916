// Package static implements providers.Authenticator over a fixed user list
// with bcrypt password hashes, typically loaded from the server config file.
package static

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth2-core/providers"
)

// dummyHash is compared against when the user does not exist, so that the
// response time does not reveal which usernames are valid.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z2C2yvY0xpRMb3Zy1C2rYtJi")

// User is a configured resource owner
type User struct {
	Username     string
	PasswordHash string // bcrypt
	Name         string
	Email        string
}

// Provider authenticates users against an in-memory list
type Provider struct {
	mu    sync.RWMutex
	users map[string]User
}

var _ providers.Authenticator = (*Provider)(nil)

// New creates a provider. Every password hash must be a bcrypt hash.
func New(users []User) (*Provider, error) {
	p := &Provider{users: make(map[string]User, len(users))}
	for _, u := range users {
		if err := p.Add(u); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Add registers or replaces a user
func (p *Provider) Add(u User) error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
		return fmt.Errorf("user %q: password hash is not a bcrypt hash: %w", u.Username, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[u.Username] = u
	return nil
}

// Name returns "static"
func (p *Provider) Name() string {
	return "static"
}

// Authenticate verifies password against the stored hash of username
func (p *Provider) Authenticate(_ context.Context, username, password string) (*providers.UserInfo, error) {
	p.mu.RLock()
	u, ok := p.users[username]
	p.mu.RUnlock()

	hash := dummyHash
	if ok {
		hash = []byte(u.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !ok {
		return nil, providers.ErrInvalidCredentials
	}

	return &providers.UserInfo{
		Username: u.Username,
		Name:     u.Name,
		Email:    u.Email,
	}, nil
}
