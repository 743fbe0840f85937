package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veyza/toy-collision-avoidance/internal/api"
	"github.com/Veyza/toy-collision-avoidance/internal/archive"
	"github.com/Veyza/toy-collision-avoidance/internal/auth"
	"github.com/Veyza/toy-collision-avoidance/internal/httputil"
)

func newServeCmd() *cobra.Command {
	var addr, artifacts, archivePath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve archived screening results and report artifacts over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			authCfg, err := loadAuthConfig()
			if err != nil {
				return err
			}

			if archivePath == "" {
				return errors.New("an archive path is required: set --archive or CAPROTO_ARCHIVE_PATH")
			}
			store, err := archive.Open(archivePath)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := api.NewServer(api.Config{
				Addr:         addr,
				ArtifactsDir: artifacts,
				Auth:         authCfg,
				RateLimit: httputil.RateLimitConfig{
					RequestsPerSecond: envFloat("CAPROTO_RATE_LIMIT_RPS", 10),
					Burst:             envInt("CAPROTO_RATE_LIMIT_BURST", 20),
					TrustProxy:        envBool("CAPROTO_TRUST_PROXY", false),
				},
			}, store, logger)

			// Graceful shutdown on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting server",
					"addr", addr,
					"auth_enabled", authCfg.Enabled,
					"archive", archivePath,
					"artifacts", artifacts,
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server listen error: %w", err)
			case <-ctx.Done():
			}

			logger.Info("shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown error: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", envString("CAPROTO_HTTP_ADDR", ":8080"), "listen address")
	cmd.Flags().StringVar(&artifacts, "artifacts", "", "report artifacts directory to serve under /artifacts/")
	cmd.Flags().StringVar(&archivePath, "archive", envString("CAPROTO_ARCHIVE_PATH", ""), "SQLite archive path")
	return cmd
}

func loadAuthConfig() (auth.Config, error) {
	cfg := auth.Config{Enabled: envBool("CAPROTO_AUTH_ENABLED", false)}
	if cfg.Enabled {
		cfg.Token = envString("CAPROTO_AUTH_TOKEN", "")
		if cfg.Token == "" {
			return cfg, errors.New("CAPROTO_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}
	return cfg, nil
}
