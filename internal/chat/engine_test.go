package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/acmecorp/supportbot/internal/log"
	"github.com/acmecorp/supportbot/internal/store"
	"github.com/acmecorp/supportbot/internal/testutil"
	"github.com/acmecorp/supportbot/internal/tools"
)

// goleakOptions ignores goroutines owned by shared infrastructure, not the
// code under test.
func goleakOptions() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*http2clientConnReadLoop).run"),
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
		// genkit.Init installs a signal-aware context whose watcher goroutine
		// lives until process exit.
		goleak.IgnoreTopFunction("os/signal.NotifyContext.func1"),
	}
}

// testEnv bundles the wired-up engine with its collaborators so tests can
// inspect every side of a turn.
type testEnv struct {
	engine   *Engine
	orders   *store.MemoryOrders
	sessions *store.MemorySessions
	mock     *testutil.MockLLM
	wg       *sync.WaitGroup
}

// newTestEnv wires an engine against the mock model and in-memory stores.
// Compaction is enabled when withCompaction is true.
func newTestEnv(t *testing.T, mock *testutil.MockLLM, withCompaction bool) *testEnv {
	t.Helper()
	ctx := context.Background()

	g := genkit.Init(ctx)
	mock.RegisterModel(g)

	orders := store.NewMemoryOrders()
	sessions := store.NewMemorySessions()
	dispatcher := tools.NewDispatcher(orders, log.NewNop())
	registered := tools.Register(g, dispatcher)

	var wg sync.WaitGroup
	cfg := Config{
		Genkit:     g,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Logger:     log.NewNop(),
		Tools:      registered,
		ModelName:  testutil.Name,
		WG:         &wg,
	}
	if withCompaction {
		compactor, err := NewCompactor(CompactorConfig{
			Genkit:    g,
			Sessions:  sessions,
			Logger:    log.NewNop(),
			ModelName: testutil.Name,
		})
		require.NoError(t, err)
		cfg.Compactor = compactor
	}

	engine, err := New(cfg)
	require.NoError(t, err)

	return &testEnv{
		engine:   engine,
		orders:   orders,
		sessions: sessions,
		mock:     mock,
		wg:       &wg,
	}
}

func roles(history []*ai.Message) []ai.Role {
	out := make([]ai.Role, len(history))
	for i, msg := range history {
		out[i] = msg.Role
	}
	return out
}

func TestEngineTextTurn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := testutil.NewMockLLM("I can help with orders.")
	mock.AddResponse("hello", "Hi! How can I help you today?")
	env := newTestEnv(t, mock, false)

	reply, err := env.engine.Execute(ctx, "sess-1", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "Hi! How can I help you today?", reply)

	history, err := env.sessions.History(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []ai.Role{ai.RoleSystem, ai.RoleUser, ai.RoleModel}, roles(history))
	assert.Equal(t, reply, history[2].Text())
}

func TestEngineToolTurn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := testutil.NewMockLLM("fallback")
	mock.AddToolResponse("order 1001",
		[]*ai.ToolRequest{{
			Ref:   "call-1",
			Name:  tools.NameGetOrder,
			Input: map[string]any{"order_id": "1001"},
		}},
		"Order 1001 is processing and totals 450.")
	env := newTestEnv(t, mock, false)

	_, err := env.orders.Create(ctx, store.Order{"order_id": "1001", "customer": "Ahmed Ali", "status": "processing", "total_price": 450.0})
	require.NoError(t, err)

	reply, err := env.engine.Execute(ctx, "sess-1", "where is order 1001?")
	require.NoError(t, err)
	assert.Equal(t, "Order 1001 is processing and totals 450.", reply)

	history, err := env.sessions.History(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, []ai.Role{ai.RoleSystem, ai.RoleUser, ai.RoleModel, ai.RoleTool, ai.RoleModel}, roles(history))

	// The tool message carries the order data back to the model.
	toolMsg := history[3]
	require.Len(t, toolMsg.Content, 1)
	require.True(t, toolMsg.Content[0].IsToolResponse())
	resp := toolMsg.Content[0].ToolResponse
	assert.Equal(t, tools.NameGetOrder, resp.Name)
	output, ok := resp.Output.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, output, "order")

	// Two upstream calls: tool selection, then the forced-text follow-up.
	calls := mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, ai.ToolChoiceAuto, calls[0].ToolChoice)
	assert.Equal(t, ai.ToolChoiceNone, calls[1].ToolChoice)
}

func TestEngineExecutesOnlyFirstToolCall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := testutil.NewMockLLM("fallback")
	mock.AddToolResponse("clean up",
		[]*ai.ToolRequest{
			{Ref: "call-1", Name: tools.NameGetOrder, Input: map[string]any{"order_id": "1001"}},
			{Ref: "call-2", Name: tools.NameDeleteOrder, Input: map[string]any{"order_id": "1002"}},
		},
		"Done.")
	env := newTestEnv(t, mock, false)

	for _, id := range []string{"1001", "1002"} {
		_, err := env.orders.Create(ctx, store.Order{"order_id": id})
		require.NoError(t, err)
	}

	_, err := env.engine.Execute(ctx, "sess-1", "clean up my orders")
	require.NoError(t, err)

	// The second requested call stays on record but never runs.
	_, err = env.orders.Get(ctx, "1002")
	assert.NoError(t, err, "order 1002 must not be deleted")

	history, err := env.sessions.History(ctx, "sess-1")
	require.NoError(t, err)
	requests := 0
	for _, p := range history[2].Content {
		if p.IsToolRequest() {
			requests++
		}
	}
	assert.Equal(t, 2, requests, "both requested calls stay in the history")
}

func TestEngineToolNotFoundBecomesResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock := testutil.NewMockLLM("fallback")
	mock.AddToolResponse("order 9999",
		[]*ai.ToolRequest{{Name: tools.NameGetOrder, Input: map[string]any{"order_id": "9999"}}},
		"I could not find order 9999.")
	env := newTestEnv(t, mock, false)

	reply, err := env.engine.Execute(ctx, "sess-1", "where is order 9999?")
	require.NoError(t, err, "a missing order must not fail the turn")
	assert.Equal(t, "I could not find order 9999.", reply)

	history, err := env.sessions.History(ctx, "sess-1")
	require.NoError(t, err)
	output, ok := history[3].Content[0].ToolResponse.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "not_found", output["error"])
}

func TestEngineUnknownToolFailsTurn(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("fallback")
	mock.AddToolResponse("launch",
		[]*ai.ToolRequest{{Name: "warp_drive", Input: map[string]any{}}},
		"Engaging.")
	env := newTestEnv(t, mock, false)

	_, err := env.engine.Execute(context.Background(), "sess-1", "launch the ship")
	require.Error(t, err)
	assert.ErrorIs(t, err, tools.ErrUnknownTool)
}

func TestEngineEmptySessionID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testutil.NewMockLLM("fallback"), false)

	_, err := env.engine.Execute(context.Background(), "  ", "hello")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestEngineSystemPromptInsertedOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := newTestEnv(t, testutil.NewMockLLM("Sure."), false)

	for range 3 {
		_, err := env.engine.Execute(ctx, "sess-1", "hello again")
		require.NoError(t, err)
	}

	history, err := env.sessions.History(ctx, "sess-1")
	require.NoError(t, err)
	systems := 0
	for _, msg := range history {
		if msg.Role == ai.RoleSystem {
			systems++
		}
	}
	assert.Equal(t, 1, systems)
	assert.Equal(t, ai.RoleSystem, history[0].Role)
}

func TestEngineEmptyModelReplyFallsBack(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testutil.NewMockLLM(""), false)

	reply, err := env.engine.Execute(context.Background(), "sess-1", "say nothing")
	require.NoError(t, err)
	assert.Equal(t, "(no content)", reply)
}

func TestEngineCompactsAfterTurns(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)
	ctx := context.Background()

	mock := testutil.NewMockLLM("Noted.")
	env := newTestEnv(t, mock, true)

	// Each turn adds two messages; enough turns push the history past the
	// window+chunk threshold and trigger a background pass.
	for range 9 {
		_, err := env.engine.Execute(ctx, "sess-1", "another question")
		require.NoError(t, err)
	}
	env.wg.Wait()

	history, err := env.sessions.History(ctx, "sess-1")
	require.NoError(t, err)

	summaries := 0
	for _, msg := range history {
		if IsSummary(msg) {
			summaries++
		}
	}
	require.NotZero(t, summaries, "compaction should have produced a summary")
	assert.Equal(t, ai.RoleSystem, history[0].Role)
	assert.True(t, IsSummary(history[1]), "summary sits right after the anchor")
	assert.Less(t, len(history), 19, "history must have shrunk")
	assert.Equal(t, "Noted.", history[len(history)-1].Text(), "latest turn stays verbatim")
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM("x")
	mock.RegisterModel(g)
	dispatcher := tools.NewDispatcher(store.NewMemoryOrders(), log.NewNop())
	registered := tools.Register(g, dispatcher)
	sessions := store.NewMemorySessions()

	valid := Config{
		Genkit:     g,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Logger:     log.NewNop(),
		Tools:      registered,
		ModelName:  testutil.Name,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing genkit", func(c *Config) { c.Genkit = nil }, true},
		{"missing sessions", func(c *Config) { c.Sessions = nil }, true},
		{"missing dispatcher", func(c *Config) { c.Dispatcher = nil }, true},
		{"missing logger", func(c *Config) { c.Logger = nil }, true},
		{"no tools", func(c *Config) { c.Tools = nil }, true},
		{"missing model", func(c *Config) { c.ModelName = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := New(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
