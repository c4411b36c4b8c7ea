package tools

import "github.com/acmecorp/supportbot/internal/store"

// Argument structs for the six order tools. Raw payloads from the model are
// decoded into these at the dispatch boundary so handlers never touch untyped
// maps.

// Item is a single order line. Qty and Price are what update_order_items uses
// to recompute the order total.
type Item struct {
	SKU   string  `json:"sku"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// GetOrderArgs identifies the order to fetch.
type GetOrderArgs struct {
	OrderID string `json:"order_id"`
}

// CreateOrderArgs carries the fields of a new order. OrderID is optional and
// generated when absent.
type CreateOrderArgs struct {
	OrderID    string  `json:"order_id,omitempty"`
	Customer   string  `json:"customer"`
	Status     string  `json:"status"`
	TotalPrice float64 `json:"total_price"`
	Items      []Item  `json:"items,omitempty"`
}

// UpdateOrderArgs patches arbitrary fields of an existing order. Fields are
// shallow-merged into the stored document.
type UpdateOrderArgs struct {
	OrderID string         `json:"order_id"`
	Fields  map[string]any `json:"fields"`
}

// DeleteOrderArgs identifies the order to remove.
type DeleteOrderArgs struct {
	OrderID string `json:"order_id"`
}

// SearchOrdersArgs holds the AND-ed filter list. An empty list matches every
// order.
type SearchOrdersArgs struct {
	Filters []store.Filter `json:"filters"`
}

// UpdateOrderItemsArgs replaces an order's item list. The stored total_price
// is recomputed from the items, never taken from the payload.
type UpdateOrderItemsArgs struct {
	OrderID string `json:"order_id"`
	Items   []Item `json:"items"`
}
