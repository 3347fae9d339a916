package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/giantswarm/oauth2-core/instrumentation"
	"github.com/giantswarm/oauth2-core/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth2:"

	// DefaultExpiredRetention is how long codes and tokens outlive their
	// expiry before Valkey evicts them
	DefaultExpiredRetention = time.Hour

	// tokenIDLogLength is the number of characters to include when logging token IDs
	tokenIDLogLength = 8

	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// MaxTokenLength is the maximum allowed length for codes and token strings
	MaxTokenLength = 512

	// MaxIDLength is the maximum allowed length for client IDs and usernames
	MaxIDLength = 256
)

var errInputTooLarge = fmt.Errorf("input exceeds maximum allowed size")

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth2:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// DisableCache turns off client-side caching. Required for servers
	// that do not support CLIENT TRACKING.
	DisableCache bool

	// ExpiredRetention is how long expired codes and tokens are kept so that
	// grant handlers can still report them as expired. Default: 1 hour
	ExpiredRetention time.Duration

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of storage.Store.
type Store struct {
	client           valkeygo.Client
	prefix           string
	expiredRetention time.Duration
	logger           *slog.Logger
	observer         storage.Observer
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retention := cfg.ExpiredRetention
	if retention <= 0 {
		retention = DefaultExpiredRetention
	}

	opts := valkeygo.ClientOption{
		InitAddress:  []string{cfg.Address},
		SelectDB:     cfg.DB,
		Password:     cfg.Password,
		TLSConfig:    cfg.TLS,
		DisableCache: cfg.DisableCache,
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client:           client,
		prefix:           prefix,
		expiredRetention: retention,
		logger:           logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetInstrumentation enables tracing and metrics for storage operations.
// Valkey does not report size gauges; counting keys would require a SCAN.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.observer = storage.NewObserver("valkey", inst)
}

// ============================================================
// Key helpers
// ============================================================

func (s *Store) clientKey(clientID string) string {
	return s.prefix + "client:" + clientID
}

func (s *Store) codeKey(code string) string {
	return s.prefix + "code:" + code
}

func (s *Store) refreshTokenKey(token string) string {
	return s.prefix + "refresh:" + token
}

func (s *Store) accessTokenKey(token string) string {
	return s.prefix + "access:" + token
}

func (s *Store) scopeSetKey() string {
	return s.prefix + "scopes"
}

func (s *Store) scopeKey(scope string) string {
	return s.prefix + "scope:" + scope
}

func (s *Store) authorizationKey(clientID, username string) string {
	return s.prefix + "authz:" + clientID + ":" + username
}

// ============================================================
// Lua Scripts for Atomic Operations
// ============================================================

// luaReplaceIfExists overwrites KEYS[1] with ARGV[1] only when the key is
// still present. ARGV[2] is the TTL in milliseconds, "0" for none.
// Returns 1 on success and 0 when the key is gone.
const luaReplaceIfExists = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if ARGV[2] == '0' then
  redis.call('SET', KEYS[1], ARGV[1])
else
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
end
return 1
`

// ============================================================
// Helper methods
// ============================================================

// setJSON marshals v and stores it under key with ttl (0 for no expiry)
func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if ttl > 0 {
		return s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build()).Error()
	}
	return s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error()
}

// getJSON fetches key and unmarshals it into a new T
func getJSON[T any](ctx context.Context, s *Store, key string, notFoundErr error) (*T, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, notFoundErr
		}
		return nil, fmt.Errorf("failed to get data: %w", err)
	}

	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return &v, nil
}

// deleteKey removes key and returns notFoundErr when nothing was deleted.
// DEL is atomic, so of several concurrent callers exactly one sees a count of 1.
func (s *Store) deleteKey(ctx context.Context, key string, notFoundErr error) error {
	n, err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

// replaceIfExists overwrites key with v unless it was deleted concurrently
func (s *Store) replaceIfExists(ctx context.Context, key string, v any, ttl time.Duration, notFoundErr error) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	n, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaReplaceIfExists).
			Numkeys(1).
			Key(key).
			Arg(string(data), strconv.FormatInt(ttl.Milliseconds(), 10)).
			Build(),
	).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to execute atomic replace: %w", err)
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

// expiringTTL returns the key TTL for an entry expiring at expiresAt. Entries
// are retained past expiry; a zero expiresAt means no TTL.
func (s *Store) expiringTTL(expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return 0
	}
	ttl := time.Until(expiresAt) + s.expiredRetention
	if ttl <= 0 {
		// already past retention; keep briefly rather than storing forever
		return time.Second
	}
	return ttl
}

func validateLength(value string, maxLen int) error {
	if len(value) > maxLen {
		return errInputTooLarge
	}
	return nil
}

// isNilError checks if the error is a Valkey nil response (key not found)
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}
