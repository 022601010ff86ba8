package chat

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"issuechat/infrastructure"
	"issuechat/pkg/jwt"
)

type contextKey struct{}

// UserID returns the caller identity stored by AuthMiddleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

type AuthMiddleware struct {
	tokens *jwt.JWT
	logger *slog.Logger
}

func NewAuthMiddleware(tokens *jwt.JWT, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, logger: infrastructure.Discard(logger)}
}

// Authenticate rejects requests without a valid bearer token and stores the
// token's user ID in the request context.
func (am *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(am.logger, w, infrastructure.Unauthenticated(infrastructure.ErrMissingToken))
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := am.tokens.ValidateToken(token)
		if err != nil {
			writeError(am.logger, w, infrastructure.Unauthenticated(infrastructure.ErrInvalidToken))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
	})
}
