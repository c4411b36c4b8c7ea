package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acmecorp/supportbot/internal/log"
	"github.com/acmecorp/supportbot/internal/store"
)

func deleteSession(t *testing.T, h *SessionHandler, id string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodDelete, "/sessions/"+id, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestSessionHandlerDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	sessions := store.NewMemorySessions()
	require.NoError(t, sessions.SaveHistory(ctx, "sess-1", []*ai.Message{
		ai.NewUserTextMessage("hello"),
	}))
	h := NewSessionHandler(sessions, log.NewNop())

	w := deleteSession(t, h, "sess-1")
	assert.Equal(t, http.StatusNoContent, w.Code)

	history, err := sessions.History(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSessionHandlerDeleteUnknown(t *testing.T) {
	t.Parallel()

	h := NewSessionHandler(store.NewMemorySessions(), log.NewNop())

	w := deleteSession(t, h, "ghost")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
