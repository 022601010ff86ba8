//go:build wireinject
// +build wireinject

package di

import (
	"log/slog"

	"github.com/google/wire"
	"github.com/gorilla/mux"

	"issuechat/config"
	"issuechat/internal/chat"
	"issuechat/internal/database"
	"issuechat/internal/messaging"
	"issuechat/internal/sessions"
)

var CoreSet = wire.NewSet(database.Set, sessions.Set, messaging.Set)

// InitializeRouter builds the HTTP API. The cleanup closes the archive store.
func InitializeRouter(cfg *config.Config, db *database.Database, logger *slog.Logger) (*mux.Router, func(), error) {
	wire.Build(CoreSet, chat.Set)
	return nil, nil, nil
}

// InitializeMessageManager builds the message manager for offline tools.
func InitializeMessageManager(cfg *config.Config, db *database.Database, logger *slog.Logger) (*messaging.Manager, func(), error) {
	wire.Build(CoreSet)
	return nil, nil, nil
}
