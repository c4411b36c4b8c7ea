package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
)

// MemoryOrders is an in-memory order collection with the same semantics as
// Orders. Records are held in their JSON encoding so numeric typing and
// merge behavior match the JSONB store exactly.
//
// Safe for concurrent use.
type MemoryOrders struct {
	mu     sync.RWMutex
	orders map[string][]byte
}

// NewMemoryOrders creates an empty in-memory order store.
func NewMemoryOrders() *MemoryOrders {
	return &MemoryOrders{orders: make(map[string][]byte)}
}

// Create inserts a new order, generating order_id and created_at if absent.
func (s *MemoryOrders) Create(_ context.Context, order Order) (Order, error) {
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

	s.mu.Lock()
	s.orders[order.ID()] = data
	s.mu.Unlock()

	return decodeOrder(data)
}

// Get retrieves an order by id. Returns ErrNotFound if absent.
func (s *MemoryOrders) Get(_ context.Context, orderID string) (Order, error) {
	s.mu.RLock()
	data, ok := s.orders[orderID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return decodeOrder(data)
}

// Update shallow-merges fields into an existing order. Returns (nil, nil)
// when the order does not exist.
func (s *MemoryOrders) Update(_ context.Context, orderID string, fields map[string]any) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}

	order, err := decodeOrder(data)
	if err != nil {
		return nil, err
	}

	patch, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshaling update fields: %w", err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(patch, &normalized); err != nil {
		return nil, fmt.Errorf("normalizing update fields: %w", err)
	}
	for k, v := range normalized {
		order[k] = v
	}

	merged, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("marshaling merged order: %w", err)
	}
	s.orders[orderID] = merged

	return decodeOrder(merged)
}

// Delete removes an order. Returns whether a record was removed.
func (s *MemoryOrders) Delete(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return false, nil
	}
	delete(s.orders, orderID)
	return true, nil
}

// Search returns all orders matching every filter clause, ordered by id.
func (s *MemoryOrders) Search(_ context.Context, filters []Filter) ([]Order, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.orders))
	for id := range s.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var results []Order
	for _, id := range ids {
		order, err := decodeOrder(s.orders[id])
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		if MatchesAll(order, filters) {
			results = append(results, order)
		}
	}
	s.mu.RUnlock()

	return results, nil
}

func decodeOrder(data []byte) (Order, error) {
	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("unmarshaling order: %w", err)
	}
	return order, nil
}

// MemorySessions is an in-memory session history collection with the same
// semantics as Sessions. Histories are held in their JSON encoding, so a
// saved history cannot alias caller-held message slices.
//
// Safe for concurrent use.
type MemorySessions struct {
	mu        sync.RWMutex
	histories map[string][]byte
}

// NewMemorySessions creates an empty in-memory session store.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{histories: make(map[string][]byte)}
}

// History returns the session's message history; empty for unknown ids.
func (s *MemorySessions) History(_ context.Context, sessionID string) ([]*ai.Message, error) {
	s.mu.RLock()
	data, ok := s.histories[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var history []*ai.Message
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("unmarshaling history for session %s: %w", sessionID, err)
	}
	return history, nil
}

// SaveHistory replaces the session's full history.
func (s *MemorySessions) SaveHistory(_ context.Context, sessionID string, history []*ai.Message) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshaling history for session %s: %w", sessionID, err)
	}

	s.mu.Lock()
	s.histories[sessionID] = data
	s.mu.Unlock()
	return nil
}

// Delete removes a session. Returns whether a session existed.
func (s *MemorySessions) Delete(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.histories[sessionID]; !ok {
		return false, nil
	}
	delete(s.histories, sessionID)
	return true, nil
}
