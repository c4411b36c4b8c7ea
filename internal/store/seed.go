package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// OrderCollection is the subset of order-store behavior Seed needs. Both
// *Orders and *MemoryOrders satisfy it.
type OrderCollection interface {
	Create(ctx context.Context, order Order) (Order, error)
	Search(ctx context.Context, filters []Filter) ([]Order, error)
}

// Seed inserts two demo orders when the collection is empty, so a fresh
// install has live data for the model to find.
func Seed(ctx context.Context, orders OrderCollection, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	existing, err := orders.Search(ctx, nil)
	if err != nil {
		return fmt.Errorf("checking for existing orders: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	today := time.Now().Format("2006-01-02")
	demo := []Order{
		{
			"order_id":    "1001",
			"customer":    "Ahmed Ali",
			"status":      "processing",
			"created_at":  today,
			"total_price": 450.0,
			"items": []any{
				map[string]any{"sku": "SKU-TV-55-OLED", "qty": 1, "price": 450.0},
			},
		},
		{
			"order_id":    "1002",
			"customer":    "Sara Youssef",
			"status":      "shipped",
			"created_at":  today,
			"total_price": 120.0,
			"items": []any{
				map[string]any{"sku": "SKU-HDMI-CABLE", "qty": 2, "price": 20.0},
				map[string]any{"sku": "SKU-POWER-BANK", "qty": 1, "price": 80.0},
			},
		},
	}

	for _, order := range demo {
		if _, err := orders.Create(ctx, order); err != nil {
			return fmt.Errorf("seeding order %s: %w", order.ID(), err)
		}
	}

	logger.Info("seeded demo orders", "count", len(demo))
	return nil
}
