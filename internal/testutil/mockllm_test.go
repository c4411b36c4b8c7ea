package testutil_test

import (
	"context"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acmecorp/supportbot/internal/testutil"
)

func newMockModel(t *testing.T, mock *testutil.MockLLM) *genkit.Genkit {
	t.Helper()
	g := genkit.Init(context.Background())
	require.NotNil(t, g)
	mock.RegisterModel(g)
	return g
}

func TestMockLLMMatchesPattern(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("fallback")
	mock.AddResponse("order", "It shipped yesterday.")
	g := newMockModel(t, mock)

	resp, err := genkit.Generate(context.Background(), g,
		ai.WithModelName(testutil.Name),
		ai.WithMessages(ai.NewUserTextMessage("where is my order?")),
	)
	require.NoError(t, err)
	assert.Equal(t, "It shipped yesterday.", resp.Text())

	resp, err = genkit.Generate(context.Background(), g,
		ai.WithModelName(testutil.Name),
		ai.WithMessages(ai.NewUserTextMessage("something else entirely")),
	)
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Text())
}

// The engine's follow-up call after a tool round-trip carries tool choice
// "none"; the mock must accept that mode and answer with text only.
func TestMockLLMHonorsToolChoiceNone(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("fallback")
	mock.AddToolResponse("status", []*ai.ToolRequest{{
		Ref:   "call-1",
		Name:  "get_order",
		Input: map[string]any{"order_id": "1001"},
	}}, "Your order is processing.")
	g := newMockModel(t, mock)

	resp, err := genkit.Generate(context.Background(), g,
		ai.WithModelName(testutil.Name),
		ai.WithMessages(ai.NewUserTextMessage("what is the status?")),
		ai.WithToolChoice(ai.ToolChoiceAuto),
		ai.WithReturnToolRequests(true),
	)
	require.NoError(t, err)
	require.Len(t, resp.ToolRequests(), 1)
	assert.Equal(t, "get_order", resp.ToolRequests()[0].Name)

	resp, err = genkit.Generate(context.Background(), g,
		ai.WithModelName(testutil.Name),
		ai.WithMessages(ai.NewUserTextMessage("what is the status?")),
		ai.WithToolChoice(ai.ToolChoiceNone),
		ai.WithReturnToolRequests(true),
	)
	require.NoError(t, err, "tool choice none must be a supported mode")
	assert.Empty(t, resp.ToolRequests(), "tool parts are suppressed under tool choice none")
	assert.Equal(t, "Your order is processing.", resp.Text())
}

func TestMockLLMRecordsCalls(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("ok")
	g := newMockModel(t, mock)

	_, err := genkit.Generate(context.Background(), g,
		ai.WithModelName(testutil.Name),
		ai.WithMessages(
			ai.NewUserTextMessage("first"),
			ai.NewModelTextMessage("ok"),
			ai.NewUserTextMessage("second"),
		),
		ai.WithToolChoice(ai.ToolChoiceNone),
	)
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "second", calls[0].UserMessage)
	assert.Equal(t, ai.ToolChoiceNone, calls[0].ToolChoice)
	assert.Equal(t, 3, calls[0].Messages)

	mock.Reset()
	assert.Empty(t, mock.Calls())
}
