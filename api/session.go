package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// SessionDeleter drops a session's stored history. Both *store.Sessions and
// *store.MemorySessions satisfy it.
type SessionDeleter interface {
	Delete(ctx context.Context, sessionID string) (bool, error)
}

// SessionHandler handles session management endpoints.
type SessionHandler struct {
	sessions SessionDeleter
	logger   *slog.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions SessionDeleter, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("DELETE /sessions/{id}", h.delete)
}

// delete removes a session's history. Returns 404 for unknown sessions.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if strings.TrimSpace(sessionID) == "" {
		writeError(w, http.StatusBadRequest, "missing_session_id", "session id is required")
		return
	}

	deleted, err := h.sessions.Delete(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to delete session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete session")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "session does not exist")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
