package order

import (
	"context"

	"github.com/counterpos/counterpos/internal/types"
)

// Repository defines persistence for orders and their line items.
// All reads are scoped to the tenant in ctx.
type Repository interface {
	// Create inserts the order together with its line items
	Create(ctx context.Context, order *Order) error
	// Get loads the order with its line items
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate loads and row-locks the order inside the transaction in ctx
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, filter *types.OrderFilter) ([]*Order, error)
	Count(ctx context.Context, filter *types.OrderFilter) (int, error)
	// Update persists header fields: status, discount, totals, invoice number, completion
	Update(ctx context.Context, order *Order) error
	// ReplaceLineItems swaps the full set of line items of an order
	ReplaceLineItems(ctx context.Context, orderID string, items []*LineItem) error
}
