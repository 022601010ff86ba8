package chat

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"issuechat/infrastructure"
)

// RouterOptions tunes the cross-cutting middleware of the router.
type RouterOptions struct {
	RateLimitRPS int
	Logger       *slog.Logger
}

// NewRouter serves /health unauthenticated and every chat route behind
// bearer-token authentication.
func NewRouter(handler *JSONHandler, auth *AuthMiddleware, opts RouterOptions) *mux.Router {
	r := mux.NewRouter()
	logger := infrastructure.Discard(opts.Logger)
	r.Use(RequestLogger(logger), RateLimit(opts.RateLimitRPS, logger))
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	api.Use(auth.Authenticate)
	handler.Register(api)
	return r
}
