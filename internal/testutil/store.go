package testutil

import (
	"context"
	"sort"
	"sync"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
)

// FilterFunc is a generic filter function type
type FilterFunc[T any] func(ctx context.Context, item T, filter interface{}) bool

// SortFunc is a generic sort function type
type SortFunc[T any] func(i, j T) bool

// InMemoryStore implements a generic in-memory store. Items are cloned on the
// way in and out so callers never share memory with the store, like rows
// read from a database.
type InMemoryStore[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	clone func(T) T
}

// NewInMemoryStore creates a new InMemoryStore
func NewInMemoryStore[T any](clone func(T) T) *InMemoryStore[T] {
	return &InMemoryStore[T]{
		items: make(map[string]T),
		clone: clone,
	}
}

// Create adds a new item to the store and undoes it on rollback
func (s *InMemoryStore[T]) Create(ctx context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; exists {
		return ierr.NewErrorf("item %s already exists", id).
			WithHint("Item already exists").
			Mark(ierr.ErrAlreadyExists)
	}

	s.items[id] = s.clone(item)
	OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.items, id)
	})
	return nil
}

// Get retrieves an item by ID
func (s *InMemoryStore[T]) Get(ctx context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, exists := s.items[id]; exists {
		return s.clone(item), nil
	}

	var zero T
	return zero, ierr.NewErrorf("item %s not found", id).
		WithHint("Item not found").
		Mark(ierr.ErrNotFound)
}

// Find returns the first item matching fn
func (s *InMemoryStore[T]) Find(ctx context.Context, fn func(T) bool) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if fn(item) {
			return s.clone(item), true
		}
	}
	var zero T
	return zero, false
}

// List retrieves items based on filter
func (s *InMemoryStore[T]) List(ctx context.Context, filter interface{}, filterFn FilterFunc[T], sortFn SortFunc[T]) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]T, 0)
	for _, item := range s.items {
		if filterFn == nil || filterFn(ctx, item, filter) {
			result = append(result, s.clone(item))
		}
	}

	if sortFn != nil {
		sort.Slice(result, func(i, j int) bool {
			return sortFn(result[i], result[j])
		})
	}

	if f, ok := filter.(types.BaseFilter); ok && !f.IsUnlimited() {
		start := f.GetOffset()
		if start >= len(result) {
			return []T{}, nil
		}

		end := start + f.GetLimit()
		if end > len(result) {
			end = len(result)
		}
		return result[start:end], nil
	}

	return result, nil
}

// Count returns the total number of items matching the filter
func (s *InMemoryStore[T]) Count(ctx context.Context, filter interface{}, filterFn FilterFunc[T]) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, item := range s.items {
		if filterFn == nil || filterFn(ctx, item, filter) {
			count++
		}
	}

	return count, nil
}

// Update replaces an existing item and restores the old one on rollback
func (s *InMemoryStore[T]) Update(ctx context.Context, id string, item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, exists := s.items[id]
	if !exists {
		return ierr.NewErrorf("item %s not found", id).
			WithHint("Item not found").
			Mark(ierr.ErrNotFound)
	}

	s.items[id] = s.clone(item)
	OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.items[id] = previous
	})
	return nil
}

// Clear removes all items from the store
func (s *InMemoryStore[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
}

// CheckTenantFilter reports whether an item of itemTenantID is visible in ctx.
// A context without tenant sees everything, like system scoped queries.
func CheckTenantFilter(ctx context.Context, itemTenantID string) bool {
	scope := types.ResolveTenantScope(ctx)
	return scope.Unscoped() || scope.TenantID == itemTenantID
}
