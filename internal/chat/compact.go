package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

const (
	// DefaultWindow is how many recent messages stay unsummarized.
	DefaultWindow = 5

	// DefaultChunk is how many old messages one compaction pass folds into
	// a summary.
	DefaultChunk = 10

	summarizeInstruction = "Summarize the following conversation briefly."
	summaryTemperature   = 0.2
	summaryMaxTokens     = 150

	// SummaryMetaKey marks a summary message; its value holds the messages
	// the summary replaced.
	SummaryMetaKey = "summary_of"
)

// CompactorConfig contains the parameters for the history compactor.
type CompactorConfig struct {
	Genkit   *genkit.Genkit
	Sessions SessionStore
	Logger   *slog.Logger

	// ModelName is the provider-qualified summarization model. It may
	// differ from the chat model.
	ModelName string

	// Window and Chunk override the defaults when positive.
	Window int
	Chunk  int

	// RateLimiter throttles summarization calls (nil = unthrottled).
	RateLimiter *rate.Limiter
}

func (cfg CompactorConfig) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Compactor folds old conversation spans into short summary messages so a
// session's history stays bounded. Callers are responsible for serializing
// Compact against concurrent turn handling for the same session; the engine
// does this with its per-session locks.
type Compactor struct {
	g         *genkit.Genkit
	sessions  SessionStore
	logger    *slog.Logger
	modelName string
	window    int
	chunk     int
	limiter   *rate.Limiter
}

// NewCompactor creates a history compactor.
func NewCompactor(cfg CompactorConfig) (*Compactor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	chunk := cfg.Chunk
	if chunk <= 0 {
		chunk = DefaultChunk
	}

	return &Compactor{
		g:         cfg.Genkit,
		sessions:  cfg.Sessions,
		logger:    cfg.Logger,
		modelName: cfg.ModelName,
		window:    window,
		chunk:     chunk,
		limiter:   cfg.RateLimiter,
	}, nil
}

// Compact summarizes the oldest chunk of unsummarized messages so only the
// latest window remains verbatim. A pass is a no-op while the history is
// below window+chunk messages past the anchor.
//
// The span sent to the model never ends mid tool exchange: trailing tool
// messages and trailing model messages that still carry tool calls are left
// in place and stay verbatim in the history.
func (c *Compactor) Compact(ctx context.Context, sessionID string) error {
	history, err := c.sessions.History(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if len(history) <= c.window+c.chunk {
		return nil
	}

	anchor := anchorIndex(history)
	unsummarized := history[anchor+1:]
	if len(unsummarized) <= c.window+c.chunk {
		return nil
	}

	span := unsummarized[:c.chunk]
	n := len(span)
	for n > 0 && span[n-1].Role == ai.RoleTool {
		n--
	}
	for n > 0 && span[n-1].Role == ai.RoleModel && hasToolRequest(span[n-1]) {
		n--
	}
	span = span[:n]
	if n == 0 {
		c.logger.Debug("compaction span empty after tool trimming", "session_id", sessionID)
		return nil
	}

	summary, err := c.summarize(ctx, span)
	if err != nil {
		return fmt.Errorf("summarizing %d messages: %w", n, err)
	}

	summaryMsg := ai.NewMessage(ai.RoleModel,
		map[string]any{SummaryMetaKey: span},
		ai.NewTextPart(summary))

	// Only the summarized span is replaced. Messages the tool trimming left
	// behind stay in the history and get picked up by a later pass.
	compacted := make([]*ai.Message, 0, len(history)-n+1)
	compacted = append(compacted, history[:anchor+1]...)
	compacted = append(compacted, summaryMsg)
	compacted = append(compacted, unsummarized[n:]...)

	if err := c.sessions.SaveHistory(ctx, sessionID, compacted); err != nil {
		return fmt.Errorf("saving compacted history: %w", err)
	}

	c.logger.Debug("history compacted",
		"session_id", sessionID,
		"summarized", n,
		"new_len", len(compacted),
	)
	return nil
}

// summarize asks the summarization model for a brief recap of the span.
func (c *Compactor) summarize(ctx context.Context, span []*ai.Message) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
	}

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithSystem(summarizeInstruction),
		ai.WithMessages(span...),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     summaryTemperature,
			MaxOutputTokens: summaryMaxTokens,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return resp.Text(), nil
}

// anchorIndex finds the most recent summary or system message. Everything at
// or before the anchor is already compact and never re-summarized.
func anchorIndex(history []*ai.Message) int {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Metadata != nil && history[i].Metadata[SummaryMetaKey] != nil {
			return i
		}
		if history[i].Role == ai.RoleSystem {
			return i
		}
	}
	return 0
}

// IsSummary reports whether a message is a compaction summary.
func IsSummary(msg *ai.Message) bool {
	return msg != nil && msg.Metadata != nil && msg.Metadata[SummaryMetaKey] != nil
}

func hasToolRequest(msg *ai.Message) bool {
	for _, p := range msg.Content {
		if p.IsToolRequest() {
			return true
		}
	}
	return false
}
