package messaging

import (
	"context"
	"log/slog"

	"github.com/google/wire"
	"gorm.io/gorm"

	"issuechat/config"
	"issuechat/internal/sessions"
)

func ProvideActiveStore(db *gorm.DB, logger *slog.Logger) *ActiveStore {
	return NewActiveStore(db, logger)
}

// ProvideArchiveStore opens the SQLite archive. The returned cleanup closes
// the connection pool.
func ProvideArchiveStore(cfg *config.Config, logger *slog.Logger) (*ArchiveStore, func(), error) {
	compression, err := ParseCompression(cfg.ArchiveCompression)
	if err != nil {
		return nil, nil, err
	}
	store, err := OpenArchiveStore(context.Background(), ArchiveConfig{
		Path:        cfg.ArchivePath,
		Compression: compression,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func ProvideTieredStore(active *ActiveStore, archive *ArchiveStore, logger *slog.Logger) *TieredStore {
	return NewTieredStore(active, archive, logger)
}

func ProvideManager(directory *sessions.Manager, store *TieredStore, cfg *config.Config, logger *slog.Logger) *Manager {
	return NewManager(directory, store, store, cfg.MaxContentLength, logger)
}

var Set = wire.NewSet(
	ProvideActiveStore,
	ProvideArchiveStore,
	ProvideTieredStore,
	ProvideManager,
	wire.Bind(new(sessions.MessagePurger), new(*TieredStore)),
)
