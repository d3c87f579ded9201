package postgres

import (
	"context"
	"time"

	"github.com/counterpos/counterpos/internal/logger"
	sentryService "github.com/counterpos/counterpos/internal/sentry"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/getsentry/sentry-go"
)

// slowTxThreshold is where a transaction is logged as slow. Sequence
// allocation holds a row lock for the whole transaction.
const slowTxThreshold = 500 * time.Millisecond

// tracedClient wraps outermost transactions in a Sentry span and logs slow ones
type tracedClient struct {
	client IClient
	sentry *sentryService.Service
	logger *logger.Logger
}

// NewClient returns the client repositories and services depend on
func NewClient(db *DB, sentry *sentryService.Service, logger *logger.Logger) IClient {
	return &tracedClient{
		client: db,
		sentry: sentry,
		logger: logger,
	}
}

func (c *tracedClient) WithTx(ctx context.Context, fn func(context.Context) error) error {
	if _, nested := GetTx(ctx); nested {
		return c.client.WithTx(ctx, fn)
	}

	span, spanCtx := c.sentry.StartDBSpan(ctx, "postgres.transaction", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	started := time.Now()

	err := c.client.WithTx(spanCtx, fn)

	if elapsed := time.Since(started); elapsed > slowTxThreshold {
		c.logger.WithContext(ctx).Warnw("slow transaction",
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
	}
	if span != nil {
		span.Status = sentry.SpanStatusOK
		if err != nil {
			span.Status = sentry.SpanStatusInternalError
		}
		span.Finish()
	}
	return err
}

func (c *tracedClient) Querier(ctx context.Context) Querier {
	return c.client.Querier(ctx)
}
