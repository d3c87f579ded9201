package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/jmoiron/sqlx"
)

// slowQueryThreshold promotes query logs from debug to warn
const slowQueryThreshold = 250 * time.Millisecond

// QueryTracer times a single statement and logs its outcome
type QueryTracer struct {
	logger *logger.Logger
	query  string
	start  time.Time
	txID   string
}

func NewQueryTracer(logger *logger.Logger, query string, txID string) *QueryTracer {
	return &QueryTracer{
		logger: logger,
		query:  query,
		start:  time.Now(),
		txID:   txID,
	}
}

// Done logs the query completion. Parameters are never logged, they carry
// customer phone numbers and provider payloads.
func (qt *QueryTracer) Done(ctx context.Context, err error) {
	duration := time.Since(qt.start)
	fields := []interface{}{
		"duration_ms", duration.Milliseconds(),
		"query", qt.query,
	}
	if qt.txID != "" {
		fields = append(fields, "tx_id", qt.txID)
	}
	if tenantID := types.GetTenantID(ctx); tenantID != "" {
		fields = append(fields, "tenant_id", tenantID)
	}
	switch {
	case err != nil && err != sql.ErrNoRows:
		fields = append(fields, "error", err.Error())
		qt.logger.Errorw("database query failed", fields...)
	case duration > slowQueryThreshold:
		qt.logger.Warnw("slow database query", fields...)
	default:
		qt.logger.Debugw("database query completed", fields...)
	}
}

// TracedQuerier wraps a Querier with tracing
type TracedQuerier struct {
	Querier
	logger *logger.Logger
	txID   string
}

func NewTracedQuerier(q Querier, logger *logger.Logger, txID string) *TracedQuerier {
	return &TracedQuerier{
		Querier: q,
		logger:  logger,
		txID:    txID,
	}
}

func (tq *TracedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	tracer := NewQueryTracer(tq.logger, query, tq.txID)
	result, err := tq.Querier.ExecContext(ctx, query, args...)
	tracer.Done(ctx, err)
	return result, err
}

func (tq *TracedQuerier) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	tracer := NewQueryTracer(tq.logger, query, tq.txID)
	rows, err := tq.Querier.QueryxContext(ctx, query, args...)
	tracer.Done(ctx, err)
	return rows, err
}

func (tq *TracedQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	tracer := NewQueryTracer(tq.logger, query, tq.txID)
	err := tq.Querier.GetContext(ctx, dest, query, args...)
	tracer.Done(ctx, err)
	return err
}

func (tq *TracedQuerier) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	tracer := NewQueryTracer(tq.logger, query, tq.txID)
	err := tq.Querier.SelectContext(ctx, dest, query, args...)
	tracer.Done(ctx, err)
	return err
}

func (tq *TracedQuerier) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	tracer := NewQueryTracer(tq.logger, query, tq.txID)
	result, err := tq.Querier.NamedExecContext(ctx, query, arg)
	tracer.Done(ctx, err)
	return result, err
}
