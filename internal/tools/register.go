package tools

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Register defines the six order tools with Genkit and returns their
// references for ai.WithTools. The handlers delegate to the dispatcher so
// the same code path serves both direct invocation by the dialogue engine
// and any future framework-driven execution.
func Register(g *genkit.Genkit, d *Dispatcher) []ai.Tool {
	return []ai.Tool{
		genkit.DefineTool(g, NameGetOrder,
			"Retrieve order status by ID.",
			func(ctx *ai.ToolContext, in GetOrderArgs) (any, error) {
				return d.Invoke(ctx.Context, NameGetOrder, in)
			}),
		genkit.DefineTool(g, NameCreateOrder,
			"Add a new order to the system.",
			func(ctx *ai.ToolContext, in CreateOrderArgs) (any, error) {
				return d.Invoke(ctx.Context, NameCreateOrder, in)
			}),
		genkit.DefineTool(g, NameUpdateOrder,
			"Patch fields of an existing order.",
			func(ctx *ai.ToolContext, in UpdateOrderArgs) (any, error) {
				return d.Invoke(ctx.Context, NameUpdateOrder, in)
			}),
		genkit.DefineTool(g, NameDeleteOrder,
			"Delete an order.",
			func(ctx *ai.ToolContext, in DeleteOrderArgs) (any, error) {
				return d.Invoke(ctx.Context, NameDeleteOrder, in)
			}),
		genkit.DefineTool(g, NameSearchOrders,
			"Search orders via simple filters. Each filter has a field, an op (==, !=, >, <, ~) and a value.",
			func(ctx *ai.ToolContext, in SearchOrdersArgs) (any, error) {
				return d.Invoke(ctx.Context, NameSearchOrders, in)
			}),
		genkit.DefineTool(g, NameUpdateOrderItems,
			"Replace the items list of an order. The order total is recomputed from the new items.",
			func(ctx *ai.ToolContext, in UpdateOrderItemsArgs) (any, error) {
				return d.Invoke(ctx.Context, NameUpdateOrderItems, in)
			}),
	}
}
