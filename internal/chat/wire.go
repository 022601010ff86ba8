package chat

import (
	"log/slog"

	"github.com/google/wire"

	"issuechat/config"
	"issuechat/internal/messaging"
	"issuechat/internal/sessions"
	"issuechat/pkg/jwt"
)

const tokenLifetimeSeconds = 24 * 60 * 60

func ProvideJWT(cfg *config.Config) *jwt.JWT {
	return jwt.NewJWT(cfg.JWTSecret, tokenLifetimeSeconds)
}

func ProvideJSONHandler(sessionManager *sessions.Manager, messageManager *messaging.Manager, cfg *config.Config, logger *slog.Logger) *JSONHandler {
	return NewJSONHandler(sessionManager, messageManager, cfg.ArchiveOnClose, logger)
}

func ProvideRouterOptions(cfg *config.Config, logger *slog.Logger) RouterOptions {
	return RouterOptions{RateLimitRPS: cfg.RateLimitRPS, Logger: logger}
}

var Set = wire.NewSet(ProvideJWT, NewAuthMiddleware, ProvideJSONHandler, ProvideRouterOptions, NewRouter)
