// Package app wires the support bot together: configuration, the Genkit
// runtime, order and session storage, the tool dispatcher, and the chat
// engine. Setup builds the container; Close tears it down in reverse.
package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acmecorp/supportbot/internal/chat"
	"github.com/acmecorp/supportbot/internal/config"
	"github.com/acmecorp/supportbot/internal/tools"
)

// SessionStore is the session persistence the application needs. The chat
// engine consumes the History/SaveHistory half; the HTTP API also deletes.
type SessionStore interface {
	History(ctx context.Context, sessionID string) ([]*ai.Message, error)
	SaveHistory(ctx context.Context, sessionID string, history []*ai.Message) error
	Delete(ctx context.Context, sessionID string) (bool, error)
}

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit *genkit.Genkit

	// Pool is nil when storage is "memory".
	Pool *pgxpool.Pool

	Orders   tools.OrderStore
	Sessions SessionStore
	Engine   *chat.Engine

	// wg tracks background compaction goroutines spawned by the engine.
	wg        sync.WaitGroup
	bgCancel  context.CancelFunc
	dbCleanup func()
}

// Close cancels background work, waits for the compaction goroutines to
// drain, then releases resources. Cancel goes first so a compaction blocked
// on a hung upstream call cannot stall shutdown.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.bgCancel != nil {
		a.bgCancel()
	}
	a.wg.Wait()
	if a.dbCleanup != nil {
		a.dbCleanup()
		a.Logger.Info("database pool closed")
	}
	return nil
}
