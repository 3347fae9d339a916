package sqlstore

import (
	"context"
	"fmt"

	"github.com/giantswarm/oauth2-core/storage"
)

// ============================================================
// ClientStore Implementation
// ============================================================

const clientColumns = `client_id, client_secret_hash, redirect_uri, grant_types, client_name, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(row scanner) (*storage.Client, error) {
	var (
		c          storage.Client
		grantTypes string
		createdAt  int64
	)
	if err := row.Scan(&c.ClientID, &c.ClientSecretHash, &c.RedirectURI, &grantTypes, &c.ClientName, &createdAt); err != nil {
		return nil, err
	}
	c.GrantTypes = splitList(grantTypes)
	c.CreatedAt = fromUnix(createdAt)
	return &c, nil
}

// SaveClient creates or replaces a client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	ctx, done := s.observer.Start(ctx, "save_client")
	defer func() { done(err) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("client ID cannot be empty")
	}

	_, err = s.db.ExecContext(ctx,
		`REPLACE INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		client.ClientID,
		client.ClientSecretHash,
		client.RedirectURI,
		joinList(client.GrantTypes),
		client.ClientName,
		toUnix(client.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	ctx, done := s.observer.Start(ctx, "get_client")
	defer func() { done(err) }()

	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE client_id = ?`, clientID)
	c, err := scanClient(row)
	if err != nil {
		return nil, notFound(err, storage.ErrClientNotFound)
	}
	return c, nil
}

// ListClients lists all registered clients ordered by client ID
func (s *Store) ListClients(ctx context.Context) (_ []*storage.Client, err error) {
	ctx, done := s.observer.Start(ctx, "list_clients")
	defer func() { done(err) }()

	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clients []*storage.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// DeleteClient removes a client
func (s *Store) DeleteClient(ctx context.Context, clientID string) (err error) {
	ctx, done := s.observer.Start(ctx, "delete_client")
	defer func() { done(err) }()

	return s.execAffecting(ctx, storage.ErrClientNotFound,
		`DELETE FROM clients WHERE client_id = ?`, clientID)
}

// ============================================================
// ScopeStore Implementation
// ============================================================

// SaveScope adds or replaces a supported scope
func (s *Store) SaveScope(ctx context.Context, scope *storage.Scope) (err error) {
	ctx, done := s.observer.Start(ctx, "save_scope")
	defer func() { done(err) }()

	if scope == nil || scope.Scope == "" {
		return fmt.Errorf("scope cannot be empty")
	}

	_, err = s.db.ExecContext(ctx,
		`REPLACE INTO scopes (scope, description) VALUES (?, ?)`, scope.Scope, scope.Description)
	if err != nil {
		return fmt.Errorf("failed to save scope: %w", err)
	}
	return nil
}

// ListScopes returns all supported scopes ordered by name
func (s *Store) ListScopes(ctx context.Context) (_ []*storage.Scope, err error) {
	ctx, done := s.observer.Start(ctx, "list_scopes")
	defer func() { done(err) }()

	rows, err := s.db.QueryContext(ctx, `SELECT scope, description FROM scopes ORDER BY scope`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var scopes []*storage.Scope
	for rows.Next() {
		var sc storage.Scope
		if err := rows.Scan(&sc.Scope, &sc.Description); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		scopes = append(scopes, &sc)
	}
	return scopes, rows.Err()
}

// DeleteScope removes a supported scope
func (s *Store) DeleteScope(ctx context.Context, scope string) (err error) {
	ctx, done := s.observer.Start(ctx, "delete_scope")
	defer func() { done(err) }()

	return s.execAffecting(ctx, storage.ErrScopeNotFound, `DELETE FROM scopes WHERE scope = ?`, scope)
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

	_, err = s.db.ExecContext(ctx,
		`REPLACE INTO authorizations (client_id, username, scope, grant_types) VALUES (?, ?, ?, ?)`,
		authz.ClientID, authz.Username, joinList(authz.Scope), joinList(authz.GrantTypes))
	if err != nil {
		return fmt.Errorf("failed to save authorization: %w", err)
	}
	return nil
}

// GetAuthorization retrieves the approval record for (client, user)
func (s *Store) GetAuthorization(ctx context.Context, clientID, username string) (_ *storage.Authorization, err error) {
	ctx, done := s.observer.Start(ctx, "get_authorization")
	defer func() { done(err) }()

	var scope, grantTypes string
	err = s.db.QueryRowContext(ctx,
		`SELECT scope, grant_types FROM authorizations WHERE client_id = ? AND username = ?`,
		clientID, username,
	).Scan(&scope, &grantTypes)
	if err != nil {
		return nil, notFound(err, storage.ErrAuthorizationNotFound)
	}

	return &storage.Authorization{
		ClientID:   clientID,
		Username:   username,
		Scope:      splitList(scope),
		GrantTypes: splitList(grantTypes),
	}, nil
}

// DeleteAuthorization removes the approval record for (client, user)
func (s *Store) DeleteAuthorization(ctx context.Context, clientID, username string) (err error) {
	ctx, done := s.observer.Start(ctx, "delete_authorization")
	defer func() { done(err) }()

	return s.execAffecting(ctx, storage.ErrAuthorizationNotFound,
		`DELETE FROM authorizations WHERE client_id = ? AND username = ?`, clientID, username)
}
