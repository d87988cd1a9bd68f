package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/Krestall88/cleaning-control-sub003/internal/config"
	"github.com/Krestall88/cleaning-control-sub003/internal/database"
	"github.com/Krestall88/cleaning-control-sub003/internal/repository"
	"github.com/Krestall88/cleaning-control-sub003/internal/server"
	"github.com/Krestall88/cleaning-control-sub003/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	userRepo := repository.NewUserRepository(db)
	objectRepo := repository.NewObjectRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	ctx := context.Background()
	authService, err := services.NewAuthService(ctx, cfg, userRepo)
	if err != nil {
		slog.Error("creating auth service", "error", err)
		os.Exit(1)
	}

	occurrenceService := services.NewOccurrenceService(taskRepo, objectRepo, cfg.Location())

	scheduler := services.NewScheduler(cfg.Location())
	if err := scheduler.ScheduleMaterialization(cfg.MaterializeSpec, occurrenceService); err != nil {
		slog.Error("scheduling materialization", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := server.New(db, cfg, authService, occurrenceService)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
