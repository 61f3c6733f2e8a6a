// Package main runs the development auth API: the same login, signup,
// logout and me contract the portal expects from its external provider,
// backed by MariaDB users and Redis token revocation. Never deploy it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keyxmakerx/authportal/internal/config"
	"github.com/keyxmakerx/authportal/internal/database"
	"github.com/keyxmakerx/authportal/internal/devauth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))

	if cfg.IsProduction() {
		slog.Error("devauth refuses to run with ENV=production")
		os.Exit(1)
	}

	db, err := database.NewMariaDB(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to MariaDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.MigrationsPath != "" {
		if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
			slog.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()

	svc := devauth.NewService(devauth.NewUserRepository(db), rdb, devauth.ServiceConfig{
		SigningKey: cfg.DevAuth.SigningKey,
		TokenTTL:   cfg.DevAuth.TokenTTL,
	})
	e := devauth.NewServer(devauth.NewHandler(svc))

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			slog.Error("devauth forced shutdown", slog.Any("error", err))
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.DevAuth.Port)
	slog.Info("starting devauth", slog.String("addr", addr), slog.Duration("token_ttl", cfg.DevAuth.TokenTTL))
	if err := e.Start(addr); err != nil {
		slog.Info("devauth stopped", slog.Any("reason", err))
	}
}
