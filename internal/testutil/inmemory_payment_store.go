package testutil

import (
	"context"

	"github.com/counterpos/counterpos/internal/domain/payment"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
)

// InMemoryPaymentStore implements payment.Repository with the same unique
// constraints as the payments table
type InMemoryPaymentStore struct {
	*InMemoryStore[*payment.Payment]
	locks *RowLocker
}

func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		InMemoryStore: NewInMemoryStore(clonePayment),
		locks:         NewRowLocker(),
	}
}

func clonePayment(p *payment.Payment) *payment.Payment {
	if p == nil {
		return nil
	}
	copied := *p
	copied.ProviderReference = clonePtr(p.ProviderReference)
	copied.FailureCode = clonePtr(p.FailureCode)
	copied.FailureMessage = clonePtr(p.FailureMessage)
	copied.SucceededAt = clonePtr(p.SucceededAt)
	copied.FailedAt = clonePtr(p.FailedAt)
	copied.ExpiredAt = clonePtr(p.ExpiredAt)
	copied.RefundedAt = clonePtr(p.RefundedAt)
	copied.RefundRequestedAt = clonePtr(p.RefundRequestedAt)
	copied.ProviderResponse = append(types.RawJSON(nil), p.ProviderResponse...)
	return &copied
}

func paymentFilterFn(ctx context.Context, p *payment.Payment, filter interface{}) bool {
	if !CheckTenantFilter(ctx, p.TenantID) {
		return false
	}
	f, ok := filter.(*types.PaymentFilter)
	if !ok || f == nil {
		return true
	}
	if f.OrderID != "" && f.OrderID != p.OrderID {
		return false
	}
	if len(f.PaymentStatus) > 0 && !lo.Contains(f.PaymentStatus, p.PaymentStatus) {
		return false
	}
	if f.Provider != "" && f.Provider != p.Provider {
		return false
	}
	if f.CreatedBefore != nil && !p.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

func paymentSortFn(filter *types.PaymentFilter) SortFunc[*payment.Payment] {
	asc := filter != nil && filter.GetOrder() == types.OrderAsc
	return func(i, j *payment.Payment) bool {
		if i.CreatedAt.Equal(j.CreatedAt) {
			return i.ID < j.ID == asc
		}
		return i.CreatedAt.Before(j.CreatedAt) == asc
	}
}

func notFound(id string) error {
	return ierr.NewErrorf("payment %s not found", id).
		WithHint("Payment not found").
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryPaymentStore) Create(ctx context.Context, p *payment.Payment) error {
	if p == nil || p.ID == "" {
		return ierr.NewError("payment id is required").
			WithHint("Payment ID is required").
			Mark(ierr.ErrValidation)
	}

	// uniqueness check and insert under one lock, like a unique index
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.TenantID == p.TenantID && existing.IdempotencyKey == p.IdempotencyKey {
			return ierr.NewErrorf("idempotency key %s already used", p.IdempotencyKey).
				WithHint("Payment with this idempotency key already exists").
				Mark(ierr.ErrAlreadyExists)
		}
	}
	if _, exists := s.items[p.ID]; exists {
		return ierr.NewErrorf("payment %s already exists", p.ID).
			WithHint("Payment already exists").
			Mark(ierr.ErrAlreadyExists)
	}

	s.items[p.ID] = clonePayment(p)
	OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.items, p.ID)
	})
	return nil
}

func (s *InMemoryPaymentStore) Get(ctx context.Context, id string) (*payment.Payment, error) {
	p, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || !CheckTenantFilter(ctx, p.TenantID) {
		return nil, notFound(id)
	}
	return p, nil
}

func (s *InMemoryPaymentStore) GetForUpdate(ctx context.Context, id string) (*payment.Payment, error) {
	s.locks.Lock(ctx, "payment:"+id)
	return s.Get(ctx, id)
}

func (s *InMemoryPaymentStore) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	p, ok := s.Find(ctx, func(p *payment.Payment) bool {
		return p.IdempotencyKey == key && CheckTenantFilter(ctx, p.TenantID)
	})
	if !ok {
		return nil, notFound(key)
	}
	return p, nil
}

func (s *InMemoryPaymentStore) GetByProviderReference(ctx context.Context, provider types.PaymentProvider, reference string) (*payment.Payment, error) {
	p, ok := s.Find(ctx, func(p *payment.Payment) bool {
		return p.Provider == provider &&
			p.ProviderReference != nil &&
			*p.ProviderReference == reference &&
			CheckTenantFilter(ctx, p.TenantID)
	})
	if !ok {
		return nil, notFound(reference)
	}
	return p, nil
}

func (s *InMemoryPaymentStore) Update(ctx context.Context, p *payment.Payment) error {
	if _, err := s.Get(ctx, p.ID); err != nil {
		return err
	}
	if p.HasProviderReference() {
		_, taken := s.Find(ctx, func(existing *payment.Payment) bool {
			return existing.ID != p.ID &&
				existing.Provider == p.Provider &&
				existing.ProviderReference != nil &&
				*existing.ProviderReference == *p.ProviderReference
		})
		if taken {
			return ierr.NewErrorf("provider reference %s already used", *p.ProviderReference).
				WithHint("Provider reference belongs to another payment").
				Mark(ierr.ErrAlreadyExists)
		}
	}
	return s.InMemoryStore.Update(ctx, p.ID, p)
}

func (s *InMemoryPaymentStore) List(ctx context.Context, filter *types.PaymentFilter) ([]*payment.Payment, error) {
	return s.InMemoryStore.List(ctx, filter, paymentFilterFn, paymentSortFn(filter))
}

func (s *InMemoryPaymentStore) Count(ctx context.Context, filter *types.PaymentFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, paymentFilterFn)
}
