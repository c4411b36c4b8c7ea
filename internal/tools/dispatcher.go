// Package tools maps model-issued tool calls onto the order store. Each tool
// decodes its raw argument payload into a typed struct before touching any
// data, and every result is a plain JSON-serializable value that goes straight
// back into the conversation as a tool message.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/acmecorp/supportbot/internal/store"
)

// Tool names as exposed to the model.
const (
	NameGetOrder         = "get_order"
	NameCreateOrder      = "create_order"
	NameUpdateOrder      = "update_order"
	NameDeleteOrder      = "delete_order"
	NameSearchOrders     = "search_orders"
	NameUpdateOrderItems = "update_order_items"
)

// OrderStore is the slice of the order store the dispatcher needs. Both
// *store.Orders and *store.MemoryOrders satisfy it.
type OrderStore interface {
	Create(ctx context.Context, order store.Order) (store.Order, error)
	Get(ctx context.Context, orderID string) (store.Order, error)
	Update(ctx context.Context, orderID string, fields map[string]any) (store.Order, error)
	Delete(ctx context.Context, orderID string) (bool, error)
	Search(ctx context.Context, filters []store.Filter) ([]store.Order, error)
}

// Dispatcher routes a tool name and raw argument payload to the matching
// store operation.
type Dispatcher struct {
	orders OrderStore
	logger *slog.Logger
}

func NewDispatcher(orders OrderStore, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{orders: orders, logger: logger}
}

// Invoke runs the named tool. Decode failures surface as *ArgumentError,
// a missing order on get_order as store.ErrNotFound, and an unrecognized
// name as ErrUnknownTool; the dialogue engine decides which of those become
// tool results versus turn failures.
func (d *Dispatcher) Invoke(ctx context.Context, name string, raw any) (any, error) {
	d.logger.Debug("invoking tool", "tool", name)

	switch name {
	case NameGetOrder:
		args, err := decode[GetOrderArgs](name, raw)
		if err != nil {
			return nil, err
		}
		return d.getOrder(ctx, args)
	case NameCreateOrder:
		args, err := decode[CreateOrderArgs](name, raw)
		if err != nil {
			return nil, err
		}
		return d.createOrder(ctx, args)
	case NameUpdateOrder:
		args, err := decode[UpdateOrderArgs](name, raw)
		if err != nil {
			return nil, err
		}
		return d.updateOrder(ctx, args)
	case NameDeleteOrder:
		args, err := decode[DeleteOrderArgs](name, raw)
		if err != nil {
			return nil, err
		}
		return d.deleteOrder(ctx, args)
	case NameSearchOrders:
		args, err := decode[SearchOrdersArgs](name, raw)
		if err != nil {
			return nil, err
		}
		return d.searchOrders(ctx, args)
	case NameUpdateOrderItems:
		args, err := decode[UpdateOrderItemsArgs](name, raw)
		if err != nil {
			return nil, err
		}
		return d.updateOrderItems(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func (d *Dispatcher) getOrder(ctx context.Context, args GetOrderArgs) (any, error) {
	order, err := d.orders.Get(ctx, args.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", args.OrderID, err)
	}
	return map[string]any{"order": order}, nil
}

func (d *Dispatcher) createOrder(ctx context.Context, args CreateOrderArgs) (any, error) {
	order := store.Order{
		"customer":    args.Customer,
		"status":      args.Status,
		"total_price": args.TotalPrice,
	}
	if args.OrderID != "" {
		order["order_id"] = args.OrderID
	}
	if args.Items != nil {
		order["items"] = args.Items
	}
	created, err := d.orders.Create(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return created, nil
}

func (d *Dispatcher) updateOrder(ctx context.Context, args UpdateOrderArgs) (any, error) {
	updated, err := d.orders.Update(ctx, args.OrderID, args.Fields)
	if err != nil {
		return nil, fmt.Errorf("update order %s: %w", args.OrderID, err)
	}
	if updated == nil {
		return nil, nil
	}
	return updated, nil
}

func (d *Dispatcher) deleteOrder(ctx context.Context, args DeleteOrderArgs) (any, error) {
	deleted, err := d.orders.Delete(ctx, args.OrderID)
	if err != nil {
		return nil, fmt.Errorf("delete order %s: %w", args.OrderID, err)
	}
	return map[string]any{"deleted": deleted}, nil
}

func (d *Dispatcher) searchOrders(ctx context.Context, args SearchOrdersArgs) (any, error) {
	results, err := d.orders.Search(ctx, args.Filters)
	if err != nil {
		return nil, fmt.Errorf("search orders: %w", err)
	}
	if results == nil {
		results = []store.Order{}
	}
	return map[string]any{"results": results}, nil
}

func (d *Dispatcher) updateOrderItems(ctx context.Context, args UpdateOrderItemsArgs) (any, error) {
	if _, err := d.orders.Get(ctx, args.OrderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return map[string]any{"error": "not_found"}, nil
		}
		return nil, fmt.Errorf("update items for order %s: %w", args.OrderID, err)
	}

	total := 0.0
	for _, item := range args.Items {
		total += float64(item.Qty) * item.Price
	}
	updated, err := d.orders.Update(ctx, args.OrderID, map[string]any{
		"items":       args.Items,
		"total_price": total,
	})
	if err != nil {
		return nil, fmt.Errorf("update items for order %s: %w", args.OrderID, err)
	}
	return map[string]any{"order": updated}, nil
}

// decode JSON round-trips the raw payload into the tool's argument struct.
// genkit hands tool inputs over as map[string]any; strings and byte slices
// are accepted for callers that still hold the wire form.
func decode[T any](tool string, raw any) (T, error) {
	var args T

	var data []byte
	switch v := raw.(type) {
	case nil:
		return args, nil
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return args, &ArgumentError{Tool: tool, Err: err}
		}
		data = b
	}
	if len(data) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(data, &args); err != nil {
		return args, &ArgumentError{Tool: tool, Err: err}
	}
	return args, nil
}
