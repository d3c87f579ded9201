package payment

import (
	"context"

	"github.com/counterpos/counterpos/internal/types"
)

// Repository defines the interface for payment persistence. Payments are
// never deleted.
type Repository interface {
	Create(ctx context.Context, payment *Payment) error
	Get(ctx context.Context, id string) (*Payment, error)
	// GetForUpdate loads and row-locks the payment inside the transaction in ctx
	GetForUpdate(ctx context.Context, id string) (*Payment, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Payment, error)
	// GetByProviderReference matches provider callbacks to payments
	GetByProviderReference(ctx context.Context, provider types.PaymentProvider, reference string) (*Payment, error)
	Update(ctx context.Context, payment *Payment) error
	List(ctx context.Context, filter *types.PaymentFilter) ([]*Payment, error)
	Count(ctx context.Context, filter *types.PaymentFilter) (int, error)
}
