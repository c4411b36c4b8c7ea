package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/acmecorp/supportbot/internal/chat"
)

// MaxUserMessageLength bounds a single turn's input.
const MaxUserMessageLength = 8192

// ChatService runs one conversational turn. *chat.Engine satisfies it.
type ChatService interface {
	Execute(ctx context.Context, sessionID, userText string) (string, error)
}

// ChatRequest is the POST /chat request body.
type ChatRequest struct {
	SessionID   string `json:"session_id"`
	UserMessage string `json:"user_message"`
}

// ChatResponse is the POST /chat response body.
type ChatResponse struct {
	AssistantReply string `json:"assistant_reply"`
}

// ChatHandler handles the chat turn endpoint.
type ChatHandler struct {
	engine ChatService
	logger *slog.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(engine ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", h.send)
}

// send runs one turn and returns the assistant's reply.
func (h *ChatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		writeError(w, http.StatusBadRequest, "missing_user_message", "user_message is required")
		return
	}
	if len(req.UserMessage) > MaxUserMessageLength {
		writeError(w, http.StatusBadRequest, "message_too_long", "user_message exceeds the maximum length")
		return
	}

	reply, err := h.engine.Execute(r.Context(), req.SessionID, req.UserMessage)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrInvalidSession):
			writeError(w, http.StatusBadRequest, "invalid_session", "session_id is invalid")
		case errors.Is(err, chat.ErrUpstream):
			h.logger.Error("model request failed", "session_id", req.SessionID, "error", err)
			writeError(w, http.StatusBadGateway, "upstream_error", "the model request failed")
		default:
			h.logger.Error("turn failed", "session_id", req.SessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to process the message")
		}
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{AssistantReply: reply})
}
