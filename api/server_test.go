package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acmecorp/supportbot/internal/log"
	"github.com/acmecorp/supportbot/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(&fakeChat{reply: "Hello!"}, store.NewMemorySessions(), nil, log.NewNop())
}

func TestServerRoutes(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	handler := srv.Handler()

	t.Run("health", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("ready without pool", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("chat round trip", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/chat",
			strings.NewReader(`{"session_id":"sess-1","user_message":"hi"}`))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp ChatResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Hello!", resp.AssistantReply)
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	t.Parallel()

	handler := requestIDMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	got := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err, "generated id must be a valid UUID")
}

func TestRequestIDMiddleware_ReusesValid(t *testing.T) {
	t.Parallel()

	want := uuid.NewString()
	handler := requestIDMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-ID", want)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, want, w.Header().Get("X-Request-ID"))
}

func TestRequestIDMiddleware_ReplacesInvalid(t *testing.T) {
	t.Parallel()

	handler := requestIDMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("X-Request-ID", "not-a-valid-uuid")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	got := w.Header().Get("X-Request-ID")
	assert.NotEqual(t, "not-a-valid-uuid", got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := chain(panicky, recoveryMiddleware, loggingMiddleware)

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
