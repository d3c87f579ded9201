package testutil

import (
	"context"

	"github.com/counterpos/counterpos/internal/domain/order"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
)

// InMemoryOrderStore implements order.Repository
type InMemoryOrderStore struct {
	*InMemoryStore[*order.Order]
	locks *RowLocker
}

func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{
		InMemoryStore: NewInMemoryStore(cloneOrder),
		locks:         NewRowLocker(),
	}
}

func cloneOrder(o *order.Order) *order.Order {
	if o == nil {
		return nil
	}
	copied := *o
	copied.InvoiceNumber = clonePtr(o.InvoiceNumber)
	copied.CompletedAt = clonePtr(o.CompletedAt)
	copied.LineItems = lo.Map(o.LineItems, func(li *order.LineItem, _ int) *order.LineItem {
		item := *li
		return &item
	})
	return &copied
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func orderFilterFn(ctx context.Context, o *order.Order, filter interface{}) bool {
	if !CheckTenantFilter(ctx, o.TenantID) {
		return false
	}
	f, ok := filter.(*types.OrderFilter)
	if !ok || f == nil {
		return true
	}
	if len(f.OrderStatus) > 0 && !lo.Contains(f.OrderStatus, o.OrderStatus) {
		return false
	}
	if f.PeriodKey != "" && f.PeriodKey != o.PeriodKey {
		return false
	}
	return true
}

func orderSortFn(filter *types.OrderFilter) SortFunc[*order.Order] {
	asc := filter != nil && filter.GetOrder() == types.OrderAsc
	return func(i, j *order.Order) bool {
		if i.CreatedAt.Equal(j.CreatedAt) {
			return i.ID < j.ID == asc
		}
		return i.CreatedAt.Before(j.CreatedAt) == asc
	}
}

func (s *InMemoryOrderStore) Create(ctx context.Context, o *order.Order) error {
	if o == nil || o.ID == "" {
		return ierr.NewError("order id is required").
			WithHint("Order ID is required").
			Mark(ierr.ErrValidation)
	}
	_, taken := s.Find(ctx, func(existing *order.Order) bool {
		return existing.TenantID == o.TenantID &&
			existing.PeriodKey == o.PeriodKey &&
			existing.OrderNumber == o.OrderNumber
	})
	if taken {
		return ierr.NewErrorf("order number %d already used for %s", o.OrderNumber, o.PeriodKey).
			WithHint("Order number already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	return s.InMemoryStore.Create(ctx, o.ID, o)
}

func (s *InMemoryOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, o.TenantID) {
		return nil, ierr.NewErrorf("order %s not found", id).
			WithHint("Order not found").
			Mark(ierr.ErrNotFound)
	}
	return o, nil
}

func (s *InMemoryOrderStore) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	s.locks.Lock(ctx, "order:"+id)
	return s.Get(ctx, id)
}

func (s *InMemoryOrderStore) List(ctx context.Context, filter *types.OrderFilter) ([]*order.Order, error) {
	return s.InMemoryStore.List(ctx, filter, orderFilterFn, orderSortFn(filter))
}

func (s *InMemoryOrderStore) Count(ctx context.Context, filter *types.OrderFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, orderFilterFn)
}

// Update persists the header and keeps the stored line items
func (s *InMemoryOrderStore) Update(ctx context.Context, o *order.Order) error {
	current, err := s.Get(ctx, o.ID)
	if err != nil {
		return err
	}
	updated := cloneOrder(o)
	updated.LineItems = current.LineItems
	return s.InMemoryStore.Update(ctx, o.ID, updated)
}

func (s *InMemoryOrderStore) ReplaceLineItems(ctx context.Context, orderID string, items []*order.LineItem) error {
	current, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	current.LineItems = items
	return s.InMemoryStore.Update(ctx, orderID, current)
}
