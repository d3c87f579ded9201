package service

import (
	"context"
	"time"

	"github.com/counterpos/counterpos/internal/domain/sequence"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
)

// SequenceService hands out gapless numbers per tenant, scope and period
type SequenceService interface {
	// Allocate returns the next number of the series, starting at 1. Called
	// inside a transaction, the number is only consumed if that transaction
	// commits, and concurrent callers for the same series wait for it.
	Allocate(ctx context.Context, tenantID string, scope types.SequenceScope, periodKey string) (int64, error)

	// Current returns the last number handed out, 0 for an unused series
	Current(ctx context.Context, tenantID string, scope types.SequenceScope, periodKey string) (int64, error)
}

type sequenceService struct {
	ServiceParams
}

func NewSequenceService(params ServiceParams) SequenceService {
	return &sequenceService{ServiceParams: params}
}

func (s *sequenceService) Allocate(ctx context.Context, tenantID string, scope types.SequenceScope, periodKey string) (int64, error) {
	key := sequence.Key{TenantID: tenantID, Scope: scope, PeriodKey: periodKey}
	if err := key.Validate(); err != nil {
		return 0, err
	}

	started := time.Now()
	number, err := s.SequenceRepo.Next(ctx, key)
	s.Metrics.ObserveSequenceAllocation(scope, started, err)
	if err != nil {
		s.Logger.WithContext(ctx).Warnw("sequence allocation failed",
			"sequence", key.String(),
			"error", err,
		)
		return 0, err
	}
	return number, nil
}

func (s *sequenceService) Current(ctx context.Context, tenantID string, scope types.SequenceScope, periodKey string) (int64, error) {
	key := sequence.Key{TenantID: tenantID, Scope: scope, PeriodKey: periodKey}
	if err := key.Validate(); err != nil {
		return 0, err
	}

	seq, err := s.SequenceRepo.Get(ctx, key)
	if err != nil {
		if ierr.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return seq.LastNumber, nil
}
