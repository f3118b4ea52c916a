package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"

	"github.com/carelog/impersonation/pkg/audit"
	"github.com/carelog/impersonation/pkg/config"
	"github.com/carelog/impersonation/pkg/directory"
	"github.com/carelog/impersonation/pkg/impersonation"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg := config.AppConfig{}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		slog.Error("Failed to create database pool", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Failed to connect to database", "err", err)
		os.Exit(1)
	}

	directoryRepo := directory.NewPostgresRepository(pool)
	sessionRepo := impersonation.NewPostgresSessionRepository(pool)
	auditSink := audit.NewPostgresSink(pool)
	authorizer := directory.NewJwtAuthorizer(cfg.Auth.JwtSecret, directoryRepo)

	service := impersonation.NewService(sessionRepo, directoryRepo, authorizer, auditSink)

	sweeper := impersonation.NewSweeper(service, cfg.Sweeper.CleanupInterval)
	if err := sweeper.Start(); err != nil {
		slog.Error("Failed to start expiration sweeper", "err", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	server := app.NewApp(app.WithPort(int(cfg.Server.Port)))
	app.RegisterHealthzRoutes(server.R)

	handle := impersonation.NewHandle(service)
	handle.RegisterRoutes(server.R)

	slog.Info("Admin impersonation service ready", "port", cfg.Server.Port)
	server.Run()
}
