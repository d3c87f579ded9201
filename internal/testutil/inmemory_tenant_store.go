package testutil

import (
	"context"
	"sync"

	"github.com/counterpos/counterpos/internal/domain/tenant"
	ierr "github.com/counterpos/counterpos/internal/errors"
)

// InMemoryTenantStore implements tenant.Repository
type InMemoryTenantStore struct {
	*InMemoryStore[*tenant.Tenant]
	mu          sync.RWMutex
	memberships map[string]*tenant.Membership
}

func NewInMemoryTenantStore() *InMemoryTenantStore {
	return &InMemoryTenantStore{
		InMemoryStore: NewInMemoryStore(func(t *tenant.Tenant) *tenant.Tenant {
			copied := *t
			return &copied
		}),
		memberships: make(map[string]*tenant.Membership),
	}
}

func (s *InMemoryTenantStore) Create(ctx context.Context, t *tenant.Tenant) error {
	return s.InMemoryStore.Create(ctx, t.ID, t)
}

func (s *InMemoryTenantStore) GetByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewErrorf("tenant %s not found", id).
			WithHint("Tenant not found").
			Mark(ierr.ErrNotFound)
	}
	return t, nil
}

func (s *InMemoryTenantStore) UpsertMembership(ctx context.Context, m *tenant.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *m
	copied.Roles = append([]string(nil), m.Roles...)
	s.memberships[m.TenantID+"/"+m.UserID] = &copied
	return nil
}

func (s *InMemoryTenantStore) GetMembership(ctx context.Context, tenantID, userID string) (*tenant.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[tenantID+"/"+userID]
	if !ok {
		return nil, ierr.NewErrorf("membership %s/%s not found", tenantID, userID).
			WithHint("Membership not found").
			Mark(ierr.ErrNotFound)
	}
	copied := *m
	copied.Roles = append([]string(nil), m.Roles...)
	return &copied, nil
}

func (s *InMemoryTenantStore) Clear() {
	s.InMemoryStore.Clear()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships = make(map[string]*tenant.Membership)
}
