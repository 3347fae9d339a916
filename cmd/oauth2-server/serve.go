package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	oauth "github.com/giantswarm/oauth2-core"
	"github.com/giantswarm/oauth2-core/internal/config"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization server",
		Long: "Start the authorization server with the token endpoint at /token and the\n" +
			"authorization endpoint at /authorize. Clients, scopes, users and\n" +
			"authorizations from the config file are written to the store on startup.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	inst, err := newInstrumentation(cfg.Instrumentation)
	if err != nil {
		return err
	}
	if inst != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
			defer cancel()
			if err := inst.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to shut down instrumentation", "error", err)
			}
		}()
	}

	store, closeStore, err := openStore(ctx, cfg.Storage, inst, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := cfg.Seed(ctx, store); err != nil {
		return fmt.Errorf("failed to seed store: %w", err)
	}

	tokenIssuer, err := newIssuer(cfg.Tokens, cfg.Issuer(), store)
	if err != nil {
		return err
	}

	authenticator, err := newAuthenticator(cfg)
	if err != nil {
		return err
	}

	oc := cfg.OAuthServer()
	oc.Logger = logger
	oc.Instrumentation = inst

	srv, err := oauth.NewServer(store, tokenIssuer, authenticator, oc)
	if err != nil {
		return err
	}
	defer srv.Shutdown()

	// end-user logins go through the same rate limiter as the password grant
	var subject oauth.SubjectFunc
	if srv.Authenticator() != nil {
		subject = oauth.BasicAuthSubject(srv.Authenticator())
	}
	handler := oauth.NewHandler(srv, subject, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           newRouter(handler, inst, logger),
		ReadTimeout:       cfg.Server.ReadTimeout.Duration,
		ReadHeaderTimeout: cfg.Server.ReadTimeout.Duration,
		WriteTimeout:      cfg.Server.WriteTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			"address", cfg.Server.Address,
			"storage", cfg.Storage.Backend,
			"token_type", cfg.Tokens.Type,
			"version", Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

