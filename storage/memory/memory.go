package memory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giantswarm/oauth2-core/instrumentation"
	"github.com/giantswarm/oauth2-core/internal/util"
	"github.com/giantswarm/oauth2-core/security"
	"github.com/giantswarm/oauth2-core/storage"
)

const (
	// tokenIDLogLength is the number of characters of a code or token included in logs
	tokenIDLogLength = 8

	// DefaultExpiredRetention is how long expired codes and tokens are kept
	// before the cleanup loop removes them. Keeping them for a while lets the
	// grant handlers report "expired" rather than "invalid".
	DefaultExpiredRetention = time.Hour
)

type authorizationKey struct {
	clientID string
	username string
}

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu sync.RWMutex

	clients        map[string]*storage.Client
	codes          map[string]*storage.AuthorizationCode
	refreshTokens  map[string]*storage.RefreshToken
	accessTokens   map[string]*storage.AccessToken
	scopes         map[string]*storage.Scope
	authorizations map[authorizationKey]*storage.Authorization

	observer storage.Observer

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCount       atomic.Int64
	codesCount         atomic.Int64
	refreshTokensCount atomic.Int64
	accessTokensCount  atomic.Int64

	// Cleanup
	cleanupInterval  time.Duration
	expiredRetention time.Duration
	now              func() time.Time
	stopCleanup      chan struct{}
	stopOnce         sync.Once
	logger           *slog.Logger
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store with the default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup interval.
// If cleanupInterval is 0 or negative, the default of 1 minute is used.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:          make(map[string]*storage.Client),
		codes:            make(map[string]*storage.AuthorizationCode),
		refreshTokens:    make(map[string]*storage.RefreshToken),
		accessTokens:     make(map[string]*storage.AccessToken),
		scopes:           make(map[string]*storage.Scope),
		authorizations:   make(map[authorizationKey]*storage.Authorization),
		cleanupInterval:  cleanupInterval,
		expiredRetention: DefaultExpiredRetention,
		now:              time.Now,
		stopCleanup:      make(chan struct{}),
		logger:           slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetClock replaces the time source used by the cleanup loop
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetExpiredRetention sets how long expired entries survive before cleanup
func (s *Store) SetExpiredRetention(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiredRetention = d
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.observer = storage.NewObserver("memory", inst)
	s.clientsCount.Store(int64(len(s.clients)))
	s.codesCount.Store(int64(len(s.codes)))
	s.refreshTokensCount.Store(int64(len(s.refreshTokens)))
	s.accessTokensCount.Store(int64(len(s.accessTokens)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			s.clientsCount.Load,
			s.codesCount.Load,
			s.refreshTokensCount.Load,
			s.accessTokensCount.Load,
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient creates or replaces a client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) (err error) {
	_, done := s.observer.Start(ctx, "save_client")
	defer func() { done(err) }()

	if client == nil || client.ClientID == "" {
		return fmt.Errorf("client ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.clients[client.ClientID]; !existed {
		s.clientsCount.Add(1)
	}
	s.clients[client.ClientID] = cloneClient(client)

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (_ *storage.Client, err error) {
	_, done := s.observer.Start(ctx, "get_client")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}
	return cloneClient(client), nil
}

// ListClients lists all registered clients ordered by client ID
func (s *Store) ListClients(ctx context.Context) (_ []*storage.Client, err error) {
	_, done := s.observer.Start(ctx, "list_clients")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, cloneClient(c))
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ClientID < clients[j].ClientID })
	return clients, nil
}

// DeleteClient removes a client
func (s *Store) DeleteClient(ctx context.Context, clientID string) (err error) {
	_, done := s.observer.Start(ctx, "delete_client")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; !ok {
		return storage.ErrClientNotFound
	}
	delete(s.clients, clientID)
	s.clientsCount.Add(-1)
	return nil
}

// ============================================================
// AuthorizationCodeStore Implementation
// ============================================================

// SaveAuthorizationCode saves an issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	_, done := s.observer.Start(ctx, "save_authorization_code")
	defer func() { done(err) }()

	if code == nil || code.Code == "" {
		return fmt.Errorf("authorization code cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.codes[code.Code]; !existed {
		s.codesCount.Add(1)
	}
	s.codes[code.Code] = cloneCode(code)

	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode retrieves an authorization code, expired or not
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	_, done := s.observer.Start(ctx, "get_authorization_code")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrAuthorizationCodeNotFound
	}
	return cloneCode(c), nil
}

// DeleteAuthorizationCode removes a code. Only the first of several
// concurrent deletes succeeds; the write lock makes check and delete atomic.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) (err error) {
	_, done := s.observer.Start(ctx, "delete_authorization_code")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code]; !ok {
		return storage.ErrAuthorizationCodeNotFound
	}
	delete(s.codes, code)
	s.codesCount.Add(-1)
	return nil
}

// ============================================================
// RefreshTokenStore Implementation
// ============================================================

// SaveRefreshToken saves a refresh token
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) (err error) {
	_, done := s.observer.Start(ctx, "save_refresh_token")
	defer func() { done(err) }()

	if token == nil || token.RefreshToken == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.refreshTokens[token.RefreshToken]; !existed {
		s.refreshTokensCount.Add(1)
	}
	s.refreshTokens[token.RefreshToken] = cloneRefreshToken(token)
	return nil
}

// GetRefreshToken retrieves a refresh token, expired or not
func (s *Store) GetRefreshToken(ctx context.Context, refreshToken string) (_ *storage.RefreshToken, err error) {
	_, done := s.observer.Start(ctx, "get_refresh_token")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rt, ok := s.refreshTokens[refreshToken]
	if !ok {
		return nil, storage.ErrRefreshTokenNotFound
	}
	return cloneRefreshToken(rt), nil
}

// UpdateRefreshTokenExpiry sets a new expiry on an existing refresh token
func (s *Store) UpdateRefreshTokenExpiry(ctx context.Context, refreshToken string, expiresAt time.Time) (err error) {
	_, done := s.observer.Start(ctx, "update_refresh_token_expiry")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.refreshTokens[refreshToken]
	if !ok {
		return storage.ErrRefreshTokenNotFound
	}
	rt.ExpiresAt = expiresAt
	return nil
}

// DeleteRefreshToken removes a refresh token
func (s *Store) DeleteRefreshToken(ctx context.Context, refreshToken string) (err error) {
	_, done := s.observer.Start(ctx, "delete_refresh_token")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.refreshTokens[refreshToken]; !ok {
		return storage.ErrRefreshTokenNotFound
	}
	delete(s.refreshTokens, refreshToken)
	s.refreshTokensCount.Add(-1)
	return nil
}

// ============================================================
// AccessTokenStore Implementation
// ============================================================

// SaveAccessToken saves an access token
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	_, done := s.observer.Start(ctx, "save_access_token")
	defer func() { done(err) }()

	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("access token cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.accessTokens[token.AccessToken]; !existed {
		s.accessTokensCount.Add(1)
	}
	t := *token
	t.Scope = slices.Clone(token.Scope)
	s.accessTokens[token.AccessToken] = &t
	return nil
}

// GetAccessToken retrieves an access token
func (s *Store) GetAccessToken(ctx context.Context, accessToken string) (_ *storage.AccessToken, err error) {
	_, done := s.observer.Start(ctx, "get_access_token")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.accessTokens[accessToken]
	if !ok {
		return nil, storage.ErrAccessTokenNotFound
	}
	t := *at
	t.Scope = slices.Clone(at.Scope)
	return &t, nil
}

// DeleteAccessToken removes an access token
func (s *Store) DeleteAccessToken(ctx context.Context, accessToken string) (err error) {
	_, done := s.observer.Start(ctx, "delete_access_token")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accessTokens[accessToken]; !ok {
		return storage.ErrAccessTokenNotFound
	}
	delete(s.accessTokens, accessToken)
	s.accessTokensCount.Add(-1)
	return nil
}

// ============================================================
// ScopeStore Implementation
// ============================================================

// SaveScope adds or replaces a supported scope
func (s *Store) SaveScope(ctx context.Context, scope *storage.Scope) (err error) {
	_, done := s.observer.Start(ctx, "save_scope")
	defer func() { done(err) }()

	if scope == nil || scope.Scope == "" {
		return fmt.Errorf("scope cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sc := *scope
	s.scopes[scope.Scope] = &sc
	return nil
}

// ListScopes returns all supported scopes ordered by name
func (s *Store) ListScopes(ctx context.Context) (_ []*storage.Scope, err error) {
	_, done := s.observer.Start(ctx, "list_scopes")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	scopes := make([]*storage.Scope, 0, len(s.scopes))
	for _, sc := range s.scopes {
		c := *sc
		scopes = append(scopes, &c)
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].Scope < scopes[j].Scope })
	return scopes, nil
}

// DeleteScope removes a supported scope
func (s *Store) DeleteScope(ctx context.Context, scope string) (err error) {
	_, done := s.observer.Start(ctx, "delete_scope")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scopes[scope]; !ok {
		return storage.ErrScopeNotFound
	}
	delete(s.scopes, scope)
	return nil
}

// ============================================================
// AuthorizationStore Implementation
// ============================================================

// SaveAuthorization creates or replaces the approval record for (client, user)
func (s *Store) SaveAuthorization(ctx context.Context, authz *storage.Authorization) (err error) {
	_, done := s.observer.Start(ctx, "save_authorization")
	defer func() { done(err) }()

	if authz == nil || authz.ClientID == "" || authz.Username == "" {
		return fmt.Errorf("authorization requires client ID and username")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.authorizations[authorizationKey{authz.ClientID, authz.Username}] = cloneAuthorization(authz)
	return nil
}

// GetAuthorization retrieves the approval record for (client, user)
func (s *Store) GetAuthorization(ctx context.Context, clientID, username string) (_ *storage.Authorization, err error) {
	_, done := s.observer.Start(ctx, "get_authorization")
	defer func() { done(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	authz, ok := s.authorizations[authorizationKey{clientID, username}]
	if !ok {
		return nil, storage.ErrAuthorizationNotFound
	}
	return cloneAuthorization(authz), nil
}

// DeleteAuthorization removes the approval record for (client, user)
func (s *Store) DeleteAuthorization(ctx context.Context, clientID, username string) (err error) {
	_, done := s.observer.Start(ctx, "delete_authorization")
	defer func() { done(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := authorizationKey{clientID, username}
	if _, ok := s.authorizations[key]; !ok {
		return storage.ErrAuthorizationNotFound
	}
	delete(s.authorizations, key)
	return nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes codes and tokens that expired more than expiredRetention ago
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cleaned := 0

	for code, c := range s.codes {
		if security.IsExpired(c.ExpiresAt, now, s.expiredRetention) {
			delete(s.codes, code)
			s.codesCount.Add(-1)
			cleaned++
		}
	}
	for token, rt := range s.refreshTokens {
		if security.IsExpired(rt.ExpiresAt, now, s.expiredRetention) {
			delete(s.refreshTokens, token)
			s.refreshTokensCount.Add(-1)
			cleaned++
		}
	}
	for token, at := range s.accessTokens {
		if security.IsExpired(at.ExpiresAt, now, s.expiredRetention) {
			delete(s.accessTokens, token)
			s.accessTokensCount.Add(-1)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
}

func cloneClient(c *storage.Client) *storage.Client {
	cp := *c
	cp.GrantTypes = slices.Clone(c.GrantTypes)
	return &cp
}

func cloneCode(c *storage.AuthorizationCode) *storage.AuthorizationCode {
	cp := *c
	cp.Scope = slices.Clone(c.Scope)
	return &cp
}

func cloneRefreshToken(rt *storage.RefreshToken) *storage.RefreshToken {
	cp := *rt
	cp.Scope = slices.Clone(rt.Scope)
	return &cp
}

func cloneAuthorization(a *storage.Authorization) *storage.Authorization {
	cp := *a
	cp.Scope = slices.Clone(a.Scope)
	cp.GrantTypes = slices.Clone(a.GrantTypes)
	return &cp
}
