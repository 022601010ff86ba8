package chat

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"google.golang.org/grpc/codes"

	"issuechat/infrastructure"
)

func httpStatus(err error) int {
	switch infrastructure.Code(err) {
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(logger *slog.Logger, w http.ResponseWriter, err error) {
	writeJSON(logger, w, httpStatus(err), errorResponse{
		Code:    infrastructure.Code(err).String(),
		Message: err.Error(),
	})
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "status", status, "error", err)
	}
}

func (h *JSONHandler) writeError(w http.ResponseWriter, err error) {
	writeError(h.logger, w, err)
}

func (h *JSONHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	writeJSON(h.logger, w, status, v)
}
