package postgres

import (
	"context"

	"github.com/counterpos/counterpos/internal/domain/sequence"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/postgres"
)

type sequenceRepository struct {
	client postgres.IClient
	log    *logger.Logger
}

func NewSequenceRepository(client postgres.IClient, log *logger.Logger) sequence.Repository {
	return &sequenceRepository{client: client, log: log}
}

// Next creates the series on first use and increments it otherwise. The
// upsert takes the row lock, which is held until the transaction in ctx ends.
func (r *sequenceRepository) Next(ctx context.Context, key sequence.Key) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	span := StartRepositorySpan(ctx, "sequence", "next", map[string]interface{}{
		"tenant_id":  key.TenantID,
		"scope":      key.Scope,
		"period_key": key.PeriodKey,
	})
	defer FinishSpan(span)

	query := `
	INSERT INTO sequences (tenant_id, scope, period_key, last_number)
	VALUES ($1, $2, $3, 1)
	ON CONFLICT (tenant_id, scope, period_key)
	DO UPDATE SET last_number = sequences.last_number + 1, updated_at = NOW()
	RETURNING last_number`

	var next int64
	err := r.client.Querier(ctx).GetContext(ctx, &next, query, key.TenantID, key.Scope, key.PeriodKey)
	if err != nil {
		SetSpanError(span, err)
		return 0, postgres.MapError(err, "allocate sequence number")
	}

	r.log.Debugw("allocated sequence number",
		"sequence", key.String(),
		"number", next,
	)
	return next, nil
}

func (r *sequenceRepository) Get(ctx context.Context, key sequence.Key) (*sequence.Sequence, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	query := `
	SELECT tenant_id, scope, period_key, last_number, created_at, updated_at
	FROM sequences
	WHERE tenant_id = $1 AND scope = $2 AND period_key = $3`

	var s sequence.Sequence
	if err := r.client.Querier(ctx).GetContext(ctx, &s, query, key.TenantID, key.Scope, key.PeriodKey); err != nil {
		return nil, postgres.MapError(err, "get sequence")
	}
	return &s, nil
}
