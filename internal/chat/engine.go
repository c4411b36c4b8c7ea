// Package chat implements the conversational core of the support bot: the
// dialogue engine that drives a tool-calling turn against the model, and the
// history compactor that summarizes old conversation spans in the background.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/acmecorp/supportbot/internal/store"
	"github.com/acmecorp/supportbot/internal/tools"
)

const (
	// defaultSystemPrompt anchors every session's history. It is inserted
	// once and survives compaction as the anchor message.
	defaultSystemPrompt = "You are a friendly customer-support bot for **Acme Corp**.\n" +
		"• Respond politely and concisely.\n" +
		"• Call one of the provided functions when you need live data."

	// emptyReplyFallback is returned when the model produces neither text
	// nor a tool call.
	emptyReplyFallback = "(no content)"

	turnTemperature     = 0.4
	turnMaxOutputTokens = 300
)

// Sentinel errors for engine operations.
var (
	// ErrInvalidSession indicates the session ID is empty or malformed.
	ErrInvalidSession = errors.New("invalid session")

	// ErrUpstream indicates the model request failed. Upstream failures are
	// not retried; the caller decides how to surface them.
	ErrUpstream = errors.New("model request failed")
)

// SessionStore is the slice of the session store the engine needs. Both
// *store.Sessions and *store.MemorySessions satisfy it.
type SessionStore interface {
	History(ctx context.Context, sessionID string) ([]*ai.Message, error)
	SaveHistory(ctx context.Context, sessionID string, history []*ai.Message) error
}

// Config contains all required parameters for the dialogue engine.
type Config struct {
	Genkit     *genkit.Genkit
	Sessions   SessionStore
	Dispatcher *tools.Dispatcher
	Logger     *slog.Logger
	Tools      []ai.Tool // Pre-registered via tools.Register

	// ModelName is the provider-qualified chat model
	// (e.g. "googleai/gemini-2.5-flash", "ollama/llama3.3").
	ModelName string

	// SystemPrompt overrides the default support-bot prompt when non-empty.
	SystemPrompt string

	// RateLimiter throttles upstream calls proactively (nil = use default).
	RateLimiter *rate.Limiter

	// Compactor trims session history after each turn (nil = disabled).
	Compactor *Compactor

	// Background lifecycle. BackgroundCtx outlives individual requests and
	// drives compaction; WG tracks the compaction goroutines so shutdown
	// can wait for them. WG is required when Compactor is set.
	BackgroundCtx context.Context //nolint:containedctx // App lifecycle context, not a request context
	WG            *sync.WaitGroup
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	if cfg.Dispatcher == nil {
		return errors.New("tool dispatcher is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Tools) == 0 {
		return errors.New("at least one tool is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	if cfg.Compactor != nil && cfg.WG == nil {
		return errors.New("wg is required when compactor is set")
	}
	return nil
}

// Engine runs one conversational turn at a time per session: it loads the
// history, lets the model decide on a tool, executes at most one tool call,
// asks for a plain-text follow-up, and persists the grown history.
//
// Engine is stateless apart from the per-session locks and uses dependency
// injection. All configuration is captured immutably at construction.
type Engine struct {
	g            *genkit.Genkit
	sessions     SessionStore
	dispatcher   *tools.Dispatcher
	logger       *slog.Logger
	modelName    string
	systemPrompt string
	toolRefs     []ai.ToolRef
	limiter      *rate.Limiter
	compactor    *Compactor

	// locks serializes turn handling and compaction per session so a
	// background compaction can never clobber a concurrent turn's save.
	locks *sessionLocks

	bgCtx context.Context //nolint:containedctx // App lifecycle context, not a request context
	wg    *sync.WaitGroup
}

// New creates a dialogue engine with required configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	// Default: 10 requests/sec sustained, burst of 30.
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	toolRefs := make([]ai.ToolRef, len(cfg.Tools))
	for i, t := range cfg.Tools {
		toolRefs[i] = t
	}

	bgCtx := cfg.BackgroundCtx
	if bgCtx == nil {
		bgCtx = context.Background()
	}

	e := &Engine{
		g:            cfg.Genkit,
		sessions:     cfg.Sessions,
		dispatcher:   cfg.Dispatcher,
		logger:       cfg.Logger,
		modelName:    cfg.ModelName,
		systemPrompt: systemPrompt,
		toolRefs:     toolRefs,
		limiter:      limiter,
		compactor:    cfg.Compactor,
		locks:        newSessionLocks(),
		bgCtx:        bgCtx,
		wg:           cfg.WG,
	}

	e.logger.Info("dialogue engine initialized",
		"model", e.modelName,
		"tools", len(e.toolRefs),
		"compaction", e.compactor != nil,
	)
	return e, nil
}

// Execute handles one user turn for the session and returns the assistant's
// reply. Turns for the same session are serialized; compaction runs in the
// background after the reply is persisted.
func (e *Engine) Execute(ctx context.Context, sessionID, userText string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", fmt.Errorf("%w: empty session id", ErrInvalidSession)
	}

	lock := e.locks.get(sessionID)
	lock.Lock()
	defer lock.Unlock()

	history, err := e.sessions.History(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}
	history = ensureSystem(history, e.systemPrompt)
	history = append(history, ai.NewUserTextMessage(userText))

	e.logger.Debug("handling turn", "session_id", sessionID, "history_len", len(history))

	first, err := e.generate(ctx, history, ai.ToolChoiceAuto)
	if err != nil {
		return "", err
	}

	reply, history, err := e.handleResponse(ctx, first, history)
	if err != nil {
		return "", err
	}

	if err := e.sessions.SaveHistory(ctx, sessionID, history); err != nil {
		return "", fmt.Errorf("saving history: %w", err)
	}

	e.scheduleCompaction(sessionID)
	return reply, nil
}

// handleResponse resolves the model's first response into the final reply,
// running at most one tool call. It returns the reply and the grown history.
func (e *Engine) handleResponse(ctx context.Context, resp *ai.ModelResponse, history []*ai.Message) (string, []*ai.Message, error) {
	requests := resp.ToolRequests()
	if len(requests) == 0 {
		reply := resp.Text()
		if strings.TrimSpace(reply) == "" {
			reply = emptyReplyFallback
		}
		history = append(history, ai.NewModelTextMessage(reply))
		return reply, history, nil
	}

	// The model message keeps every requested call on record, but only the
	// first one is executed.
	history = append(history, resp.Message)
	req := requests[0]

	result, err := e.runTool(ctx, req)
	if err != nil {
		return "", nil, err
	}
	history = append(history, ai.NewMessage(ai.RoleTool, nil,
		ai.NewToolResponsePart(&ai.ToolResponse{
			Ref:    req.Ref,
			Name:   req.Name,
			Output: result,
		})))

	follow, err := e.generate(ctx, history, ai.ToolChoiceNone)
	if err != nil {
		return "", nil, err
	}
	reply := follow.Text()
	if strings.TrimSpace(reply) == "" {
		reply = emptyReplyFallback
	}
	history = append(history, ai.NewModelTextMessage(reply))
	return reply, history, nil
}

// runTool dispatches a single tool request. Bad arguments and missing orders
// become error-shaped results the model can react to on the follow-up call;
// anything else fails the turn.
func (e *Engine) runTool(ctx context.Context, req *ai.ToolRequest) (any, error) {
	result, err := e.dispatcher.Invoke(ctx, req.Name, req.Input)
	if err == nil {
		return result, nil
	}

	var argErr *tools.ArgumentError
	switch {
	case errors.As(err, &argErr):
		e.logger.Warn("tool arguments rejected", "tool", req.Name, "error", err)
		return map[string]any{"error": argErr.Error()}, nil
	case errors.Is(err, store.ErrNotFound):
		e.logger.Debug("tool target not found", "tool", req.Name)
		return map[string]any{"error": "not_found"}, nil
	default:
		return nil, fmt.Errorf("running tool %s: %w", req.Name, err)
	}
}

// generate performs one model call. Tool execution is always left to the
// engine; Genkit only reports the requested calls back.
func (e *Engine) generate(ctx context.Context, messages []*ai.Message, choice ai.ToolChoice) (*ai.ModelResponse, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := genkit.Generate(ctx, e.g,
		ai.WithModelName(e.modelName),
		ai.WithMessages(messages...),
		ai.WithTools(e.toolRefs...),
		ai.WithToolChoice(choice),
		ai.WithReturnToolRequests(true),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     turnTemperature,
			MaxOutputTokens: turnMaxOutputTokens,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return resp, nil
}

// scheduleCompaction trims the session's history in the background. The
// compaction goroutine takes the same per-session lock as Execute, so it
// runs strictly after the turn that scheduled it.
func (e *Engine) scheduleCompaction(sessionID string) {
	if e.compactor == nil {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		lock := e.locks.get(sessionID)
		lock.Lock()
		defer lock.Unlock()

		if err := e.compactor.Compact(e.bgCtx, sessionID); err != nil {
			e.logger.Warn("history compaction failed", "session_id", sessionID, "error", err)
		}
	}()
}

// ensureSystem guarantees the history starts with the system prompt.
func ensureSystem(history []*ai.Message, prompt string) []*ai.Message {
	if len(history) > 0 && history[0].Role == ai.RoleSystem {
		return history
	}
	return append([]*ai.Message{ai.NewSystemTextMessage(prompt)}, history...)
}
