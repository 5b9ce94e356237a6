package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"thirdcoast.systems/relay/internal/blobstore"
	"thirdcoast.systems/relay/internal/config"
	"thirdcoast.systems/relay/internal/db"
	"thirdcoast.systems/relay/internal/sqlite"
	"thirdcoast.systems/relay/internal/store"
)

// IsSQLiteDSN reports whether dsn selects the embedded SQLite backend.
func IsSQLiteDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "sqlite:") || strings.HasPrefix(dsn, "file:")
}

// OpenStore builds the store.Store selected by the DSN scheme. SQLite databases
// are migrated on open; Postgres schemas are owned by pg-migrator.
func OpenStore(ctx context.Context, conf config.Config) (store.Store, error) {
	if IsSQLiteDSN(conf.DatabaseDSN) {
		path := sqlite.PathFromDSN(conf.DatabaseDSN)
		slog.Info("Opening sqlite store", "path", path)
		sdb, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return sqlite.NewStore(sdb), nil
	}

	pool, err := OpenDBPoolWithRetry(ctx, conf)
	if err != nil {
		return nil, err
	}
	dbc, err := db.NewDatabaseConnection(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	return db.NewStore(dbc), nil
}

// OpenChannel builds the storage channel named by STORAGE_BACKEND.
func OpenChannel(conf config.Config) (blobstore.Channel, error) {
	switch conf.Backend {
	case "", "fs":
		return blobstore.NewFS(conf.BlobDir)
	case "telegram":
		return blobstore.NewTelegram(conf.TelegramAPIURL, conf.TelegramBotToken, conf.TelegramChatID), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", conf.Backend)
	}
}
