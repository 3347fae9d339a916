package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/giantswarm/oauth2-core/storage"
)

// ============================================================
// JSON records
// ============================================================

type clientJSON struct {
	ClientID         string    `json:"client_id"`
	ClientSecretHash string    `json:"client_secret_hash,omitempty"`
	RedirectURI      string    `json:"redirect_uri,omitempty"`
	GrantTypes       []string  `json:"grant_types,omitempty"`
	ClientName       string    `json:"client_name,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toClientJSON(c *storage.Client) *clientJSON {
	return &clientJSON{
		ClientID:         c.ClientID,
		ClientSecretHash: c.ClientSecretHash,
		RedirectURI:      c.RedirectURI,
		GrantTypes:       c.GrantTypes,
		ClientName:       c.ClientName,
		CreatedAt:        c.CreatedAt,
	}
}

func (j *clientJSON) toClient() *storage.Client {
	return &storage.Client{
		ClientID:         j.ClientID,
		ClientSecretHash: j.ClientSecretHash,
		RedirectURI:      j.RedirectURI,
		GrantTypes:       j.GrantTypes,
		ClientName:       j.ClientName,
		CreatedAt:        j.CreatedAt,
	}
}

type scopeJSON struct {
	Scope       string `json:"scope"`
	Description string `json:"description,omitempty"`
}

type authorizationJSON struct {
	ClientID   string   `json:"client_id"`
	Username   string   `json:"username"`
	Scope      []string `json:"scope"`
	GrantTypes []string `json:"grant_types"`
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient saves a registered client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, done := s.observer.Start(ctx, "save_client")
	defer func() { done(err) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}
	if err := validateLength(client.ClientID, MaxIDLength); err != nil {
		return err
	}

	if err := s.setJSON(ctx, s.clientKey(client.ClientID), toClientJSON(client), 0); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	ctx, done := s.observer.Start(ctx, "get_client")
	defer func() { done(err) }()

	j, err := getJSON[clientJSON](ctx, s, s.clientKey(clientID), storage.ErrClientNotFound)
	if err != nil {
		return nil, err
	}
	return j.toClient(), nil
}

// ListClients lists all registered clients ordered by client ID
func (s *Store) ListClients(ctx context.Context) (_ []*storage.Client, err error) {
	ctx, done := s.observer.Start(ctx, "list_clients")
	defer func() { done(err) }()

	pattern := s.clientKey("*")

	// SCAN can return duplicates across iterations
	clientMap := make(map[string]*storage.Client)

	var cursor uint64
	for {
		result, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatchSize).Build(),
		).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan clients: %w", err)
		}

		for _, key := range result.Elements {
			if _, exists := clientMap[key]; exists {
				continue
			}

			data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
			if err != nil {
				if isNilError(err) {
					continue // deleted between SCAN and GET
				}
				return nil, fmt.Errorf("failed to get client %s: %w", key, err)
			}

			var j clientJSON
			if err := json.Unmarshal([]byte(data), &j); err != nil {
				s.logger.Warn("Failed to unmarshal client, skipping",
					"key", key,
					"error", err)
				continue
			}
			clientMap[key] = j.toClient()
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}

	clients := make([]*storage.Client, 0, len(clientMap))
	for _, c := range clientMap {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ClientID < clients[j].ClientID })
	return clients, nil
}

// DeleteClient removes a client
func (s *Store) DeleteClient(ctx context.Context, clientID string) (err error) {
	ctx, done := s.observer.Start(ctx, "delete_client")
	defer func() { done(err) }()

	return s.deleteKey(ctx, s.clientKey(clientID), storage.ErrClientNotFound)
}

// ============================================================
// ScopeStore Implementation
// ============================================================

// SaveScope adds or replaces a supported scope. Scope names are kept in a
// set; each description lives under its own key.
func (s *Store) SaveScope(ctx context.Context, scope *storage.Scope) (err error) {
	ctx, done := s.observer.Start(ctx, "save_scope")
	defer func() { done(err) }()

	if scope == nil || scope.Scope == "" {
		return fmt.Errorf("scope cannot be empty")
	}

	if err := s.setJSON(ctx, s.scopeKey(scope.Scope), &scopeJSON{Scope: scope.Scope, Description: scope.Description}, 0); err != nil {
		return fmt.Errorf("failed to save scope: %w", err)
	}
	if err := s.client.Do(ctx, s.client.B().Sadd().Key(s.scopeSetKey()).Member(scope.Scope).Build()).Error(); err != nil {
		return fmt.Errorf("failed to add scope to set: %w", err)
	}
	return nil
}

// ListScopes returns all supported scopes ordered by name
func (s *Store) ListScopes(ctx context.Context) (_ []*storage.Scope, err error) {
	ctx, done := s.observer.Start(ctx, "list_scopes")
	defer func() { done(err) }()

	names, err := s.client.Do(ctx, s.client.B().Smembers().Key(s.scopeSetKey()).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	sort.Strings(names)

	scopes := make([]*storage.Scope, 0, len(names))
	for _, name := range names {
		j, err := getJSON[scopeJSON](ctx, s, s.scopeKey(name), storage.ErrScopeNotFound)
		if err != nil {
			if storage.IsNotFound(err) {
				scopes = append(scopes, &storage.Scope{Scope: name})
				continue
			}
			return nil, err
		}
		scopes = append(scopes, &storage.Scope{Scope: j.Scope, Description: j.Description})
	}
	return scopes, nil
}

// DeleteScope removes a supported scope
func (s *Store) DeleteScope(ctx context.Context, scope string) (err error) {
	ctx, done := s.observer.Start(ctx, "delete_scope")
	defer func() { done(err) }()

	n, err := s.client.Do(ctx, s.client.B().Srem().Key(s.scopeSetKey()).Member(scope).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to remove scope: %w", err)
	}
	if n == 0 {
		return storage.ErrScopeNotFound
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.scopeKey(scope)).Build()).Error(); err != nil {
		s.logger.Warn("Failed to delete scope description", "scope", scope, "error", err)
	}
	return nil
}

// ============================================================
// AuthorizationStore Implementation
// ============================================================

// SaveAuthorization creates or replaces the approval record for (client, user)
func (s *Store) SaveAuthorization(ctx context.Context, authz *storage.Authorization) (err error) {
	ctx, done := s.observer.Start(ctx, "save_authorization")
	defer func() { done(err) }()

	if authz == nil || authz.ClientID == "" || authz.Username == "" {
		return fmt.Errorf("authorization requires client ID and username")
	}
	if err := validateLength(authz.Username, MaxIDLength); err != nil {
		return err
	}

	j := &authorizationJSON{
		ClientID:   authz.ClientID,
		Username:   authz.Username,
		Scope:      authz.Scope,
		GrantTypes: authz.GrantTypes,
	}
	if err := s.setJSON(ctx, s.authorizationKey(authz.ClientID, authz.Username), j, 0); err != nil {
		return fmt.Errorf("failed to save authorization: %w", err)
	}
	return nil
}

// GetAuthorization retrieves the approval record for (client, user)
func (s *Store) GetAuthorization(ctx context.Context, clientID, username string) (_ *storage.Authorization, err error) {
	ctx, done := s.observer.Start(ctx, "get_authorization")
	defer func() { done(err) }()

	j, err := getJSON[authorizationJSON](ctx, s, s.authorizationKey(clientID, username), storage.ErrAuthorizationNotFound)
	if err != nil {
		return nil, err
	}
	return &storage.Authorization{
		ClientID:   j.ClientID,
		Username:   j.Username,
		Scope:      j.Scope,
		GrantTypes: j.GrantTypes,
	}, nil
}

// DeleteAuthorization removes the approval record for (client, user)
func (s *Store) DeleteAuthorization(ctx context.Context, clientID, username string) (err error) {
	ctx, done := s.observer.Start(ctx, "delete_authorization")
	defer func() { done(err) }()

	return s.deleteKey(ctx, s.authorizationKey(clientID, username), storage.ErrAuthorizationNotFound)
}
