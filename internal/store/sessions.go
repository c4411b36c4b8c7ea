package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sessions is the PostgreSQL-backed session history collection.
//
// A session row is {session_id, history}: the full message history as one
// JSONB document, replaced wholesale on every save. Session ids are opaque
// strings chosen by the caller; a session exists once its history is first
// saved.
type Sessions struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSessions creates a session store on the given pool.
func NewSessions(pool *pgxpool.Pool, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{pool: pool, logger: logger}
}

// History returns the session's message history, oldest first. Unknown
// session ids yield an empty history, not an error.
func (s *Sessions) History(ctx context.Context, sessionID string) ([]*ai.Message, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT history FROM sessions WHERE session_id = $1`, sessionID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading history for session %s: %w", sessionID, err)
	}

	var history []*ai.Message
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("unmarshaling history for session %s: %w", sessionID, err)
	}
	return history, nil
}

// SaveHistory upserts the session's full history.
func (s *Sessions) SaveHistory(ctx context.Context, sessionID string, history []*ai.Message) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshaling history for session %s: %w", sessionID, err)
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (session_id, history) VALUES ($1, $2)
		 ON CONFLICT (session_id) DO UPDATE SET history = EXCLUDED.history, updated_at = now()`,
		sessionID, data,
	); err != nil {
		return fmt.Errorf("saving history for session %s: %w", sessionID, err)
	}

	s.logger.Debug("saved history", "session_id", sessionID, "messages", len(history))
	return nil
}

// Delete removes a session and its history. Returns whether a session row
// was actually removed.
func (s *Sessions) Delete(ctx context.Context, sessionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("deleting session %s: %w", sessionID, err)
	}

	deleted := tag.RowsAffected() > 0
	if deleted {
		s.logger.Debug("deleted session", "session_id", sessionID)
	}
	return deleted, nil
}
