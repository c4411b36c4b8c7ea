// Package store provides the durable collections behind the support bot:
// order records and per-session conversation histories.
//
// Both collections live in a single PostgreSQL database. Orders are
// schemaless JSONB documents keyed by order_id, so a shallow merge can add
// fields that were never part of the original record. Session histories are
// stored as one JSONB blob per session and replaced wholesale on save.
//
// An in-memory implementation with identical semantics backs unit tests and
// the storage=memory development mode.
package store

import "errors"

// ErrNotFound indicates the requested order does not exist.
//
// Only Get returns it; the other order operations report absence as data
// (nil record or false) because their callers forward that to the model.
var ErrNotFound = errors.New("order not found")

// Order is a schemaless order record. Keys follow the wire format:
// order_id, customer, status, total_price, items, created_at. A shallow
// update may introduce additional keys.
type Order map[string]any

// ID returns the record's order_id, or "" when unset.
func (o Order) ID() string {
	id, _ := o["order_id"].(string)
	return id
}

// Clone returns a shallow copy. Mutating the copy's top-level keys does not
// affect the original.
func (o Order) Clone() Order {
	cp := make(Order, len(o))
	for k, v := range o {
		cp[k] = v
	}
	return cp
}
