package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/counterpos/counterpos/internal/domain/sequence"
	ierr "github.com/counterpos/counterpos/internal/errors"
)

// InMemorySequenceStore implements sequence.Repository. Next takes the row
// lock of its key for the rest of the transaction and undoes the increment
// when the transaction rolls back, so numbers stay gapless.
type InMemorySequenceStore struct {
	mu        sync.Mutex
	sequences map[sequence.Key]*sequence.Sequence
	locks     *RowLocker
	failures  int
	calls     int
}

func NewInMemorySequenceStore() *InMemorySequenceStore {
	return &InMemorySequenceStore{
		sequences: make(map[sequence.Key]*sequence.Sequence),
		locks:     NewRowLocker(),
	}
}

// FailNext makes the next n allocations fail with a retryable database error
func (s *InMemorySequenceStore) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

// Calls returns how many allocations were attempted
func (s *InMemorySequenceStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *InMemorySequenceStore) Next(ctx context.Context, key sequence.Key) (int64, error) {
	s.mu.Lock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return 0, ierr.NewError("sequence store unavailable").
			WithHint("Number allocation is temporarily unavailable").
			Retryable().
			Mark(ierr.ErrDatabase)
	}
	s.mu.Unlock()

	s.locks.Lock(ctx, "sequence:"+key.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[key]
	if !ok {
		now := time.Now().UTC()
		seq = &sequence.Sequence{
			TenantID:  key.TenantID,
			Scope:     key.Scope,
			PeriodKey: key.PeriodKey,
			CreatedAt: now,
		}
		s.sequences[key] = seq
	}
	seq.LastNumber++
	seq.UpdatedAt = time.Now().UTC()
	number := seq.LastNumber

	// the row lock is still held, so nobody allocated after us
	OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.sequences[key].LastNumber--
	})
	return number, nil
}

func (s *InMemorySequenceStore) Get(ctx context.Context, key sequence.Key) (*sequence.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[key]
	if !ok {
		return nil, ierr.NewErrorf("sequence %s not found", key.String()).
			WithHint("Sequence not found").
			Mark(ierr.ErrNotFound)
	}
	copied := *seq
	return &copied, nil
}

func (s *InMemorySequenceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences = make(map[sequence.Key]*sequence.Sequence)
	s.failures = 0
	s.calls = 0
}
