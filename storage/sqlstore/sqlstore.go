// Package sqlstore implements storage.Store on a SQL database.
//
// Two dialects are supported: SQLite through the pure Go modernc.org/sqlite
// driver, and MySQL through github.com/go-sql-driver/mysql. The schema is
// embedded and applied with goose when the store is opened.
//
// Atomic deletes rely on the affected row count: of several concurrent
// DELETEs of the same authorization code only one affects a row.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/giantswarm/oauth2-core/instrumentation"
	"github.com/giantswarm/oauth2-core/storage"
)

// Supported drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

const defaultPingTimeout = 5 * time.Second

//go:embed migrations
var embedMigrations embed.FS

// MySQLConfig describes a MySQL connection. It is turned into a DSN with
// mysql.Config.FormatDSN.
type MySQLConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
}

// Config configures the SQL store.
type Config struct {
	// Driver is "sqlite" (default) or "mysql"
	Driver string

	// DSN is the data source name. For SQLite a file path or URI; for MySQL a
	// go-sql-driver DSN, which must set clientFoundRows=true so that
	// refreshing an unchanged expiry still counts as a match. Ignored for
	// MySQL when MySQL is set.
	DSN string

	// MySQL builds the DSN from parts
	MySQL *MySQLConfig

	// MaxOpenConns limits open connections. SQLite always uses one.
	MaxOpenConns int

	// ConnMaxLifetime bounds connection reuse (MySQL)
	ConnMaxLifetime time.Duration

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a SQL-backed implementation of storage.Store.
type Store struct {
	db       *sql.DB
	driver   string
	logger   *slog.Logger
	observer storage.Observer
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

// Open connects to the database, applies pending migrations and returns the store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dsn := cfg.DSN
	var dialect database.Dialect
	switch driver {
	case DriverSQLite:
		dialect = database.DialectSQLite3
		if dsn == "" {
			return nil, fmt.Errorf("sqlite DSN is required")
		}
	case DriverMySQL:
		dialect = database.DialectMySQL
		if cfg.MySQL != nil {
			dsn = buildMySQLDSN(cfg.MySQL)
		}
		if dsn == "" {
			return nil, fmt.Errorf("mysql DSN is required")
		}
	default:
		return nil, fmt.Errorf("unsupported SQL driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// one writer at a time; avoids SQLITE_BUSY under concurrent deletes
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	if err := runMigrations(ctx, db, dialect, driver); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Opened SQL storage", "driver", driver)

	return &Store{db: db, driver: driver, logger: logger}, nil
}

// runMigrations applies all pending migrations for driver using goose
func runMigrations(ctx context.Context, db *sql.DB, dialect database.Dialect, driver string) error {
	migrationFS, err := fs.Sub(embedMigrations, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("failed to create sub filesystem: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, migrationFS)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func buildMySQLDSN(c *MySQLConfig) string {
	mysqlCfg := mysql.NewConfig()
	mysqlCfg.User = c.User
	mysqlCfg.Passwd = c.Password
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mysqlCfg.DBName = c.Database
	mysqlCfg.AllowNativePasswords = true
	mysqlCfg.ClientFoundRows = true
	mysqlCfg.Params = map[string]string{
		"charset": "utf8mb4",
	}
	return mysqlCfg.FormatDSN()
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SetInstrumentation enables tracing and metrics for storage operations
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.observer = storage.NewObserver("sql", inst)
}

// DeleteExpired removes codes and tokens that expired before cutoff and
// returns how many rows were removed.
func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time) (_ int64, err error) {
	ctx, done := s.observer.Start(ctx, "delete_expired")
	defer func() { done(err) }()

	var total int64
	for _, table := range []string{"authorization_codes", "refresh_tokens", "access_tokens"} {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE expires_at <> 0 AND expires_at < ?", toUnix(cutoff))
		if err != nil {
			return total, fmt.Errorf("failed to delete expired rows from %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if total > 0 {
		s.logger.Debug("Deleted expired entries", "count", total)
	}
	return total, nil
}

// ============================================================
// Helper methods
// ============================================================

// execAffecting runs a DELETE or UPDATE and maps zero affected rows to notFoundErr
func (s *Store) execAffecting(ctx context.Context, notFoundErr error, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

func notFound(err, notFoundErr error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundErr
	}
	return err
}

// toUnix stores times as Unix nanoseconds; the zero time maps to 0.
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// Lists are stored space-delimited; scope tokens and grant types never contain spaces.
func joinList(items []string) string {
	return strings.Join(items, " ")
}

func splitList(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
