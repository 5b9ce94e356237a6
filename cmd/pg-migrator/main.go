package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"thirdcoast.systems/relay/internal/application"
	"thirdcoast.systems/relay/internal/config"
	"thirdcoast.systems/relay/internal/db"
)

func main() {
	slog.Info("Starting database migrator service")

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	conf, err := config.LoadConfig(startupCtx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if application.IsSQLiteDSN(conf.DatabaseDSN) {
		// sqlite stores migrate themselves on open
		st, err := application.OpenStore(startupCtx, *conf)
		if err != nil {
			slog.Error("failed to migrate sqlite store", "error", err)
			os.Exit(1)
		}
		st.Close()
		slog.Info("SQLite migrations completed successfully")
		return
	}

	// Connect to database with retry logic
	pool, err := application.OpenDBPoolWithRetry(startupCtx, *conf)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Database pool connection established")

	databaseConnection, err := db.NewDatabaseConnection(startupCtx, pool)
	if err != nil {
		slog.Error("failed to create database connection", "error", err)
		os.Exit(1)
	}
	defer databaseConnection.Close()

	if err := databaseConnection.Migrate(startupCtx); err != nil {
		slog.Error("failed to run PostgreSQL migrations", "error", err)
		os.Exit(1)
	}

	slog.Info("Database migrations completed successfully")
}
