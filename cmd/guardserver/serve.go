package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	guard "github.com/goliatone/go-route-guard"
	"github.com/goliatone/go-route-guard/accounts"
	"github.com/goliatone/go-route-guard/session"
	"github.com/goliatone/go-route-guard/web"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long:  `Opens the employee database, seeds the admin account and serves the guarded pages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := guard.DefaultLogger()
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		db, err := accounts.OpenSQLite(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		dir := accounts.NewDirectory(db,
			accounts.WithBcryptCost(cfg.Accounts.BcryptCost),
			accounts.WithLogger(logger),
			accounts.WithHashidIDs(cfg.Accounts.HashidIDs),
		)
		if err := dir.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		if cfg.Accounts.AdminEmail != "" {
			if _, err := dir.EnsureAdmin(ctx, cfg.Accounts.AdminEmail, cfg.Accounts.AdminPassword); err != nil {
				return fmt.Errorf("failed to seed admin: %w", err)
			}
		}

		backend, closeBackend, err := newBackend(ctx, logger)
		if err != nil {
			return err
		}
		defer closeBackend()

		tokens := session.NewTokenServiceFromConfig(cfg, logger)
		provider := session.NewProvider(cfg, tokens, dir,
			session.WithBackend(backend),
			session.WithLogger(logger),
		)

		janitorCtx, stopJanitor := context.WithCancel(ctx)
		defer stopJanitor()
		go provider.Janitor(janitorCtx, time.Minute)

		app, err := web.NewApp(web.Dependencies{
			Config:   cfg,
			Provider: provider,
			Users:    dir,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("failed to build app: %w", err)
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening on %s", cfg.Server.Addr)
			errCh <- app.Listen(cfg.Server.Addr)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case err := <-errCh:
			return err
		case sig := <-quit:
			logger.Info("received %s, shutting down", sig)
		}

		if err := app.ShutdownWithTimeout(cfg.GetShutdownTimeout()); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		logger.Info("server stopped")
		return nil
	},
}

func newBackend(ctx context.Context, logger guard.Logger) (session.Backend, func(), error) {
	if cfg.Redis.Addr == "" {
		logger.Info("using in memory session backend")
		return session.NewMemoryBackend(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("using redis session backend at %s", cfg.Redis.Addr)
	return session.NewRedisBackend(rdb, cfg.Redis.Prefix), func() { _ = rdb.Close() }, nil
}
