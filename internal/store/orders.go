package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Orders is the PostgreSQL-backed order collection.
//
// Orders is safe for concurrent use by multiple goroutines. Every mutation is
// a single committed statement, so a crash after a successful call never
// loses that call's effect.
type Orders struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewOrders creates an order store on the given pool.
func NewOrders(pool *pgxpool.Pool, logger *slog.Logger) *Orders {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orders{pool: pool, logger: logger}
}

// Create inserts a new order. A missing order_id is generated, a missing
// created_at is stamped with today's date. Returns the stored record.
func (s *Orders) Create(ctx context.Context, order Order) (Order, error) {
	order = order.Clone()
	if order.ID() == "" {
		order["order_id"] = uuid.NewString()
	}
	if _, ok := order["created_at"]; !ok {
		order["created_at"] = time.Now().Format("2006-01-02")
	}

	data, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshaling order: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO orders (order_id, data) VALUES ($1, $2)`,
		order.ID(), data,
	); err != nil {
		return nil, fmt.Errorf("inserting order %s: %w", order.ID(), err)
	}

	s.logger.Debug("created order", "order_id", order.ID())
	return order, nil
}

// Get retrieves an order by id. Returns ErrNotFound if absent.
func (s *Orders) Get(ctx context.Context, orderID string) (Order, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM orders WHERE order_id = $1`, orderID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", orderID, err)
	}

	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("unmarshaling order %s: %w", orderID, err)
	}
	return order, nil
}

// Update shallow-merges fields into an existing order and returns the
// updated record. Returns (nil, nil) when the order does not exist.
func (s *Orders) Update(ctx context.Context, orderID string, fields map[string]any) (Order, error) {
	patch, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshaling update fields: %w", err)
	}

	var data []byte
	err = s.pool.QueryRow(ctx,
		`UPDATE orders SET data = data || $2::jsonb WHERE order_id = $1 RETURNING data`,
		orderID, patch,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("updating order %s: %w", orderID, err)
	}

	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("unmarshaling order %s: %w", orderID, err)
	}

	s.logger.Debug("updated order", "order_id", orderID, "fields", len(fields))
	return order, nil
}

// Delete removes an order. Returns whether a record was actually removed.
func (s *Orders) Delete(ctx context.Context, orderID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM orders WHERE order_id = $1`, orderID)
	if err != nil {
		return false, fmt.Errorf("deleting order %s: %w", orderID, err)
	}

	deleted := tag.RowsAffected() > 0
	if deleted {
		s.logger.Debug("deleted order", "order_id", orderID)
	}
	return deleted, nil
}

// Search returns all orders matching every filter clause. Filter evaluation
// happens in Go so the loose comparison semantics hold regardless of how a
// field is typed in any given record.
func (s *Orders) Search(ctx context.Context, filters []Filter) ([]Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM orders ORDER BY order_id`)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var results []Order
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		var order Order
		if err := json.Unmarshal(data, &order); err != nil {
			s.logger.Warn("skipping malformed order row", "error", err)
			continue
		}
		if MatchesAll(order, filters) {
			results = append(results, order)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}

	return results, nil
}
