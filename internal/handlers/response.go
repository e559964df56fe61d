// internal/handlers/response.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ammerola/stockroom/internal/core/domain"
	"github.com/ammerola/stockroom/internal/pkg/logger"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: logger.RequestIDFromContext(ctx),
	})
}

// statusForError maps service errors to HTTP status codes and client-safe
// messages.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidID), errors.Is(err, domain.ErrInvalidAsset):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrAssetUpload):
		return http.StatusBadGateway, "Failed to store asset"
	case errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict, "Item is being modified concurrently, try again"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Operation timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// respondServiceError logs err at a level matching its status and writes the
// mapped response.
func respondServiceError(ctx context.Context, w http.ResponseWriter, log *slog.Logger, msg string, err error, attrs ...slog.Attr) {
	status, message := statusForError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	log.LogAttrs(ctx, level, msg, append(attrs,
		slog.Int("status", status),
		slog.String("error", err.Error()))...)

	respondError(ctx, w, status, message)
}
