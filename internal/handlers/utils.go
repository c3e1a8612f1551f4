// Package handlers implements the HTTP API on top of the coordinator.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tubedj/backend/internal/coordinator"
	"github.com/tubedj/backend/internal/ids"
	"github.com/tubedj/backend/internal/logging"
	"github.com/tubedj/backend/internal/models"
	"github.com/tubedj/backend/internal/rooms"
	"github.com/tubedj/backend/internal/shard"
	"github.com/tubedj/backend/internal/users"
)

// writeJSON serializes data as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response. For simple client errors (400-level),
// use: writeError(w, status, msg). For server errors with cause, use
// writeErrorWithCause.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: message})
}

// writeErrorWithCause writes an error response and logs the error with stack trace.
// Use this for server errors (500-level) where you have an underlying error to log.
func writeErrorWithCause(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	writeError(w, status, message)

	// Don't log 401/403 - handled by security event logging
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return
	}

	if status >= 400 && err != nil {
		wrappedErr := logging.WrapError(err, message)
		logging.LogErrorWithStatus(ctx, status, "error response", wrappedErr)
	}
}

// writeDomainError maps coordinator and directory errors to HTTP responses,
// emitting security events for the authorization failures.
func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ids.ErrInvalidToken),
		errors.Is(err, rooms.ErrRoomNotFound),
		errors.Is(err, rooms.ErrEntryNotFound),
		errors.Is(err, users.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, coordinator.ErrBlocked):
		logging.LogSecurityEvent(ctx, logging.SecurityEventBlockedJoin, "blocked user attempted to join")
		writeError(w, http.StatusForbidden, "blocked from this room")
	case errors.Is(err, coordinator.ErrNotOwner):
		logging.LogSecurityEvent(ctx, logging.SecurityEventNotOwner, "owner-only operation denied")
		writeError(w, http.StatusForbidden, "room owner required")
	case errors.Is(err, coordinator.ErrNotMember):
		writeError(w, http.StatusForbidden, "room membership required")
	case errors.Is(err, coordinator.ErrAlreadyInRoom):
		writeError(w, http.StatusConflict, "already in another room")
	case errors.Is(err, rooms.ErrPlaylistEmpty):
		writeError(w, http.StatusBadRequest, "playlist is empty")
	case errors.Is(err, shard.ErrShardUnavailable):
		writeErrorWithCause(ctx, w, http.StatusServiceUnavailable, "shard unavailable", err)
	default:
		writeErrorWithCause(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}
