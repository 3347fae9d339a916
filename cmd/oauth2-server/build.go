package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/giantswarm/oauth2-core/instrumentation"
	"github.com/giantswarm/oauth2-core/internal/config"
	"github.com/giantswarm/oauth2-core/issuer"
	"github.com/giantswarm/oauth2-core/providers"
	"github.com/giantswarm/oauth2-core/providers/static"
	"github.com/giantswarm/oauth2-core/server"
	"github.com/giantswarm/oauth2-core/storage"
	"github.com/giantswarm/oauth2-core/storage/memory"
	"github.com/giantswarm/oauth2-core/storage/sqlstore"
	"github.com/giantswarm/oauth2-core/storage/valkey"
)

// sqlPurgeInterval is how often expired rows are removed from the SQL store
const sqlPurgeInterval = 10 * time.Minute

// newInstrumentation returns nil when instrumentation is disabled
func newInstrumentation(cfg config.InstrumentationConfig) (*instrumentation.Instrumentation, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:     cfg.ServiceName,
		ServiceVersion:  Version,
		Enabled:         true,
		MetricsExporter: cfg.MetricsExporter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation: %w", err)
	}
	return inst, nil
}

// openStore opens the configured backend. The returned func releases it.
func openStore(ctx context.Context, cfg config.StorageConfig, inst *instrumentation.Instrumentation, logger *slog.Logger) (storage.Store, func(), error) {
	switch cfg.Backend {
	case config.StorageMemory, "":
		store := memory.New()
		store.SetLogger(logger)
		if inst != nil {
			store.SetInstrumentation(inst)
		}
		return store, store.Stop, nil

	case config.StorageValkey:
		store, err := valkey.New(valkey.Config{
			Address:      cfg.Valkey.Address,
			Password:     cfg.Valkey.Password,
			DB:           cfg.Valkey.DB,
			KeyPrefix:    cfg.Valkey.KeyPrefix,
			DisableCache: cfg.Valkey.DisableCache,
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to valkey: %w", err)
		}
		if inst != nil {
			store.SetInstrumentation(inst)
		}
		return store, store.Close, nil

	case config.StorageSQL:
		sc := sqlstore.Config{
			Driver: cfg.SQL.Driver,
			DSN:    cfg.SQL.DSN,
			Logger: logger,
		}
		if m := cfg.SQL.MySQL; m != nil {
			sc.MySQL = &sqlstore.MySQLConfig{
				User:     m.User,
				Password: m.Password,
				Host:     m.Host,
				Port:     m.Port,
				Database: m.Database,
			}
		}
		store, err := sqlstore.Open(ctx, sc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sql store: %w", err)
		}
		if inst != nil {
			store.SetInstrumentation(inst)
		}

		purgeCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			purgeExpired(purgeCtx, store, sqlPurgeInterval, logger)
		}()

		return store, func() {
			cancel()
			<-done
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close sql store", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

type expiredPurger interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// purgeExpired deletes expired rows every interval until ctx is done
func purgeExpired(ctx context.Context, store expiredPurger, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := store.DeleteExpired(ctx, now)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("Failed to purge expired tokens", "error", err)
				}
				continue
			}
			if n > 0 {
				logger.Debug("Purged expired tokens", "count", n)
			}
		}
	}
}

func newIssuer(cfg config.TokenConfig, ic issuer.Config, store storage.Store) (server.TokenIssuer, error) {
	switch cfg.Type {
	case config.IssuerOpaque, "":
		return issuer.NewOpaque(store, ic), nil

	case config.IssuerJWT:
		key, err := issuer.LoadSigningKey(cfg.SigningKeyFile)
		if err != nil {
			return nil, err
		}
		iss, err := issuer.NewJWT(store, issuer.JWTConfig{
			Config:     ic,
			Issuer:     cfg.Issuer,
			SigningKey: key,
			KeyID:      cfg.KeyID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create jwt issuer: %w", err)
		}
		return iss, nil

	default:
		return nil, fmt.Errorf("unknown token type %q", cfg.Type)
	}
}

// newAuthenticator returns nil when no users are configured, which leaves the
// password grant unsupported
func newAuthenticator(cfg *config.Config) (providers.Authenticator, error) {
	if len(cfg.Users) == 0 {
		return nil, nil
	}
	users, err := cfg.StaticUsers()
	if err != nil {
		return nil, err
	}
	p, err := static.New(users)
	if err != nil {
		return nil, fmt.Errorf("failed to create user provider: %w", err)
	}
	return p, nil
}
