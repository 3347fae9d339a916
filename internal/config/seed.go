package config

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth2-core/providers/static"
	"github.com/giantswarm/oauth2-core/storage"
)

// Seed writes the configured clients, scopes and authorizations to store.
// Existing records with the same keys are replaced.
func (c *Config) Seed(ctx context.Context, store storage.Store) error {
	now := time.Now()

	for _, cl := range c.Clients {
		hash := cl.SecretHash
		if cl.Secret != "" {
			h, err := bcrypt.GenerateFromPassword([]byte(cl.Secret), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to hash secret of client %q: %w", cl.ID, err)
			}
			hash = string(h)
		}
		err := store.SaveClient(ctx, &storage.Client{
			ClientID:         cl.ID,
			ClientSecretHash: hash,
			RedirectURI:      cl.RedirectURI,
			GrantTypes:       cl.GrantTypes,
			ClientName:       cl.Name,
			CreatedAt:        now,
		})
		if err != nil {
			return fmt.Errorf("failed to save client %q: %w", cl.ID, err)
		}
	}

	for _, s := range c.Scopes {
		if err := store.SaveScope(ctx, &storage.Scope{Scope: s.Name, Description: s.Description}); err != nil {
			return fmt.Errorf("failed to save scope %q: %w", s.Name, err)
		}
	}

	for _, a := range c.Authorizations {
		err := store.SaveAuthorization(ctx, &storage.Authorization{
			ClientID:   a.Client,
			Username:   a.Username,
			Scope:      a.Scope,
			GrantTypes: a.GrantTypes,
		})
		if err != nil {
			return fmt.Errorf("failed to save authorization of %q for %q: %w", a.Username, a.Client, err)
		}
	}

	return nil
}

// StaticUsers returns the configured users for the static authenticator,
// hashing plain text passwords.
func (c *Config) StaticUsers() ([]static.User, error) {
	users := make([]static.User, 0, len(c.Users))
	for _, u := range c.Users {
		hash := u.PasswordHash
		if u.Password != "" {
			h, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash password of user %q: %w", u.Username, err)
			}
			hash = string(h)
		}
		users = append(users, static.User{
			Username:     u.Username,
			PasswordHash: hash,
			Name:         u.Name,
			Email:        u.Email,
		})
	}
	return users, nil
}
