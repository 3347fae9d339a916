// Package config loads the YAML configuration of the oauth2-server command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	oauth "github.com/giantswarm/oauth2-core"
	"github.com/giantswarm/oauth2-core/issuer"
	"github.com/giantswarm/oauth2-core/server"
)

// Storage backends
const (
	StorageMemory = "memory"
	StorageValkey = "valkey"
	StorageSQL    = "sql"
)

// Token issuers
const (
	IssuerOpaque = "opaque"
	IssuerJWT    = "jwt"
)

// Config is the root of the configuration file
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	OAuth           OAuthConfig           `yaml:"oauth"`
	Storage         StorageConfig         `yaml:"storage"`
	Tokens          TokenConfig           `yaml:"tokens"`
	Logging         LoggingConfig         `yaml:"logging"`
	Instrumentation InstrumentationConfig `yaml:"instrumentation"`

	Clients        []ClientConfig        `yaml:"clients"`
	Users          []UserConfig          `yaml:"users"`
	Scopes         []ScopeConfig         `yaml:"scopes"`
	Authorizations []AuthorizationConfig `yaml:"authorizations"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Address           string   `yaml:"address"`
	ReadTimeout       Duration `yaml:"read_timeout"`
	WriteTimeout      Duration `yaml:"write_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	TrustProxy        bool     `yaml:"trust_proxy"`
	TrustedProxyCount int      `yaml:"trusted_proxy_count"`
}

// OAuthConfig configures the grant and response type handlers
type OAuthConfig struct {
	GrantTypes                 []string `yaml:"grant_types"`
	ResponseTypes              []string `yaml:"response_types"`
	AuthorizationCodeTTL       Duration `yaml:"authorization_code_ttl"`
	RefreshTokenRotationWindow Duration `yaml:"refresh_token_rotation_window"`
	ClockSkewGracePeriod       Duration `yaml:"clock_skew_grace_period"`
	RedirectURIMatching        string   `yaml:"redirect_uri_matching"`
	DisableRedirectURIBinding  bool     `yaml:"disable_redirect_uri_binding"`
	AuditLogging               bool     `yaml:"audit_logging"`

	PasswordRateLimit RateLimitConfig `yaml:"password_rate_limit"`
}

// RateLimitConfig throttles password grant attempts per username
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// StorageConfig selects and configures the entity store
type StorageConfig struct {
	Backend string       `yaml:"backend"`
	Valkey  ValkeyConfig `yaml:"valkey"`
	SQL     SQLConfig    `yaml:"sql"`
}

// ValkeyConfig configures the valkey backend
type ValkeyConfig struct {
	Address      string `yaml:"address"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	KeyPrefix    string `yaml:"key_prefix"`
	DisableCache bool   `yaml:"disable_cache"`
}

// SQLConfig configures the sql backend
type SQLConfig struct {
	Driver string       `yaml:"driver"`
	DSN    string       `yaml:"dsn"`
	MySQL  *MySQLConfig `yaml:"mysql"`
}

// MySQLConfig builds a MySQL DSN from parts
type MySQLConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// TokenConfig configures the token issuer
type TokenConfig struct {
	Issuer          string   `yaml:"issuer"`
	Type            string   `yaml:"type"`
	AccessTokenTTL  Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL Duration `yaml:"refresh_token_ttl"`

	// JWT only
	SigningKeyFile string `yaml:"signing_key_file"`
	KeyID          string `yaml:"key_id"`
}

// LoggingConfig configures the process logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// InstrumentationConfig configures OpenTelemetry
type InstrumentationConfig struct {
	Enabled         bool   `yaml:"enabled"`
	ServiceName     string `yaml:"service_name"`
	MetricsExporter string `yaml:"metrics_exporter"`
}

// ClientConfig is a registered client. Secret is hashed when the store is
// seeded; SecretHash is used as is. A client with neither is public.
type ClientConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Secret      string   `yaml:"secret"`
	SecretHash  string   `yaml:"secret_hash"`
	RedirectURI string   `yaml:"redirect_uri"`
	GrantTypes  []string `yaml:"grant_types"`
}

// UserConfig is a resource owner of the static authenticator
type UserConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	Name         string `yaml:"name"`
	Email        string `yaml:"email"`
}

// ScopeConfig is a supported scope
type ScopeConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// AuthorizationConfig is what a user approved for a client
type AuthorizationConfig struct {
	Client     string   `yaml:"client"`
	Username   string   `yaml:"username"`
	Scope      []string `yaml:"scope"`
	GrantTypes []string `yaml:"grant_types"`
}

// Duration is a time.Duration written as a Go duration string ("10m")
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML writes the duration string
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// seconds converts to the whole seconds used by the server and issuer configs
func (d Duration) seconds() int64 {
	return int64(d.Duration / time.Second)
}

// Load reads and validates the configuration file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a configuration document.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeout.Duration == 0 {
		c.Server.ReadTimeout.Duration = 10 * time.Second
	}
	if c.Server.WriteTimeout.Duration == 0 {
		c.Server.WriteTimeout.Duration = 15 * time.Second
	}
	if c.Server.ShutdownTimeout.Duration == 0 {
		c.Server.ShutdownTimeout.Duration = 30 * time.Second
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageMemory
	}
	if c.Tokens.Type == "" {
		c.Tokens.Type = IssuerOpaque
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate reports every problem in the configuration at once
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageValkey:
		if c.Storage.Valkey.Address == "" {
			errs = append(errs, fmt.Errorf("storage.valkey.address is required"))
		}
	case StorageSQL:
		if c.Storage.SQL.DSN == "" && c.Storage.SQL.MySQL == nil {
			errs = append(errs, fmt.Errorf("storage.sql.dsn or storage.sql.mysql is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	switch c.Tokens.Type {
	case IssuerOpaque:
	case IssuerJWT:
		if c.Tokens.SigningKeyFile == "" {
			errs = append(errs, fmt.Errorf("tokens.signing_key_file is required for jwt tokens"))
		}
		if c.Tokens.Issuer == "" {
			errs = append(errs, fmt.Errorf("tokens.issuer is required for jwt tokens"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown token type %q", c.Tokens.Type))
	}

	if _, err := c.Logging.level(); err != nil {
		errs = append(errs, err)
	}
	if f := c.Logging.Format; f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("unknown log format %q", f))
	}

	clients := make(map[string]bool, len(c.Clients))
	for i, cl := range c.Clients {
		if cl.ID == "" {
			errs = append(errs, fmt.Errorf("clients[%d]: id is required", i))
			continue
		}
		if clients[cl.ID] {
			errs = append(errs, fmt.Errorf("clients[%d]: duplicate id %q", i, cl.ID))
		}
		clients[cl.ID] = true
		if cl.Secret != "" && cl.SecretHash != "" {
			errs = append(errs, fmt.Errorf("client %q: set secret or secret_hash, not both", cl.ID))
		}
		if cl.RedirectURI != "" && !server.ValidRedirectURI(cl.RedirectURI) {
			errs = append(errs, fmt.Errorf("client %q: invalid redirect_uri", cl.ID))
		}
	}

	users := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		if u.Username == "" {
			errs = append(errs, fmt.Errorf("users[%d]: username is required", i))
			continue
		}
		users[u.Username] = true
		if (u.Password == "") == (u.PasswordHash == "") {
			errs = append(errs, fmt.Errorf("user %q: set exactly one of password or password_hash", u.Username))
		}
	}

	for i, s := range c.Scopes {
		if s.Name == "" || strings.ContainsAny(s.Name, " \t") {
			errs = append(errs, fmt.Errorf("scopes[%d]: invalid name %q", i, s.Name))
		}
	}

	for i, a := range c.Authorizations {
		if !clients[a.Client] {
			errs = append(errs, fmt.Errorf("authorizations[%d]: unknown client %q", i, a.Client))
		}
		if a.Username == "" {
			errs = append(errs, fmt.Errorf("authorizations[%d]: username is required", i))
		}
	}

	return errors.Join(errs...)
}

// OAuthServer returns the boundary configuration. Logger and Instrumentation
// are set by the caller.
func (c *Config) OAuthServer() *oauth.Config {
	return &oauth.Config{
		Server: server.Config{
			GrantTypes:                 c.OAuth.GrantTypes,
			ResponseTypes:              c.OAuth.ResponseTypes,
			AuthorizationCodeTTL:       c.OAuth.AuthorizationCodeTTL.seconds(),
			RefreshTokenRotationWindow: c.OAuth.RefreshTokenRotationWindow.seconds(),
			ClockSkewGracePeriod:       c.OAuth.ClockSkewGracePeriod.seconds(),
			RedirectURIMatching:        server.RedirectMatchMode(c.OAuth.RedirectURIMatching),
			DisableRedirectURIBinding:  c.OAuth.DisableRedirectURIBinding,
		},
		PasswordRateLimit: oauth.RateLimitConfig{
			Rate:  c.OAuth.PasswordRateLimit.Rate,
			Burst: c.OAuth.PasswordRateLimit.Burst,
		},
		TrustProxy:         c.Server.TrustProxy,
		TrustedProxyCount:  c.Server.TrustedProxyCount,
		EnableAuditLogging: c.OAuth.AuditLogging,
	}
}

// Issuer returns the settings shared by the token issuers
func (c *Config) Issuer() issuer.Config {
	return issuer.Config{
		AccessTokenTTL:  c.Tokens.AccessTokenTTL.seconds(),
		RefreshTokenTTL: c.Tokens.RefreshTokenTTL.seconds(),
	}
}

func (l LoggingConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", l.Level)
	}
	return level, nil
}

// NewLogger builds the process logger writing to w
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := l.level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
