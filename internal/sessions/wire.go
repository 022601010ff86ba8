package sessions

import (
	"database/sql"
	"log/slog"

	"github.com/google/wire"
)

// ProvideSessionsStorage is a Wire provider function that creates a sessions.PostgresStorage
func ProvideSessionsStorage(db *sql.DB) *PostgresStorage {
	return NewSessionsPostgresStorage(db)
}

func ProvideRepository(db *sql.DB, storage *PostgresStorage, logger *slog.Logger) Repository {
	return NewRepository(db, storage, logger)
}

func ProvideManager(repo Repository, purger MessagePurger, logger *slog.Logger) *Manager {
	return NewManager(repo, purger, logger)
}

var Set = wire.NewSet(ProvideSessionsStorage, ProvideRepository, ProvideManager)
