package postgres

import (
	"context"

	"github.com/counterpos/counterpos/internal/domain/payment"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/postgres"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
)

const paymentColumns = `id, tenant_id, order_id, amount, currency, payment_status, provider,
	provider_reference, idempotency_key, provider_response, checkout_url, customer_phone,
	callback_url, redirect_url, failure_code, failure_message, refunded_amount,
	succeeded_at, failed_at, expired_at, refunded_at, refund_requested_at,
	status, created_at, updated_at, created_by, updated_by`

type paymentRepository struct {
	client postgres.IClient
	log    *logger.Logger
}

func NewPaymentRepository(client postgres.IClient, log *logger.Logger) payment.Repository {
	return &paymentRepository{client: client, log: log}
}

func (r *paymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	span := StartRepositorySpan(ctx, "payment", "create", map[string]interface{}{
		"payment_id": p.ID,
		"tenant_id":  p.TenantID,
		"provider":   p.Provider,
	})
	defer FinishSpan(span)

	r.log.Debugw("creating payment",
		"payment_id", p.ID,
		"tenant_id", p.TenantID,
		"order_id", p.OrderID,
		"provider", p.Provider,
		"amount", p.Amount,
	)

	query := `INSERT INTO payments (` + paymentColumns + `) VALUES (
		:id, :tenant_id, :order_id, :amount, :currency, :payment_status, :provider,
		:provider_reference, :idempotency_key, :provider_response, :checkout_url, :customer_phone,
		:callback_url, :redirect_url, :failure_code, :failure_message, :refunded_amount,
		:succeeded_at, :failed_at, :expired_at, :refunded_at, :refund_requested_at,
		:status, :created_at, :updated_at, :created_by, :updated_by
	)`
	if _, err := r.client.Querier(ctx).NamedExecContext(ctx, query, p); err != nil {
		SetSpanError(span, err)
		return postgres.MapError(err, "create payment")
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (*payment.Payment, error) {
	return r.getOne(ctx, "get", false, "id = ?", id)
}

func (r *paymentRepository) GetForUpdate(ctx context.Context, id string) (*payment.Payment, error) {
	return r.getOne(ctx, "get_for_update", true, "id = ?", id)
}

func (r *paymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Payment, error) {
	return r.getOne(ctx, "get_by_idempotency_key", false, "idempotency_key = ?", key)
}

func (r *paymentRepository) GetByProviderReference(ctx context.Context, provider types.PaymentProvider, reference string) (*payment.Payment, error) {
	return r.getOne(ctx, "get_by_provider_reference", false,
		"provider = ? AND provider_reference = ?", provider, reference)
}

func (r *paymentRepository) getOne(ctx context.Context, op string, lock bool, cond string, args ...interface{}) (*payment.Payment, error) {
	span := StartRepositorySpan(ctx, "payment", op, nil)
	defer FinishSpan(span)

	var w whereBuilder
	w.add(cond, args...)
	w.tenant(resolveScope(ctx, r.log, "payment", op))
	query := `SELECT ` + paymentColumns + ` FROM payments` + w.String()
	if lock {
		query += ` FOR UPDATE`
	}

	var p payment.Payment
	if err := r.client.Querier(ctx).GetContext(ctx, &p, query, w.args...); err != nil {
		SetSpanError(span, err)
		return nil, postgres.MapError(err, "get payment")
	}
	return &p, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	span := StartRepositorySpan(ctx, "payment", "update", map[string]interface{}{
		"payment_id":     p.ID,
		"payment_status": p.PaymentStatus,
	})
	defer FinishSpan(span)

	w := whereBuilder{args: []interface{}{
		p.PaymentStatus, p.ProviderReference, p.ProviderResponse, p.CheckoutURL,
		p.FailureCode, p.FailureMessage, p.RefundedAmount,
		p.SucceededAt, p.FailedAt, p.ExpiredAt, p.RefundedAt, p.RefundRequestedAt,
		p.UpdatedAt, p.UpdatedBy,
	}}
	set := `payment_status = $1, provider_reference = $2, provider_response = $3, checkout_url = $4,
		failure_code = $5, failure_message = $6, refunded_amount = $7,
		succeeded_at = $8, failed_at = $9, expired_at = $10, refunded_at = $11,
		refund_requested_at = $12, updated_at = $13, updated_by = $14`
	w.add("id = ?", p.ID)
	w.tenant(resolveScope(ctx, r.log, "payment", "update"))

	result, err := r.client.Querier(ctx).ExecContext(ctx, `UPDATE payments SET `+set+w.String(), w.args...)
	if err != nil {
		SetSpanError(span, err)
		return postgres.MapError(err, "update payment")
	}
	return requireAffected(result, "payment", p.ID)
}

func (r *paymentRepository) filterClause(ctx context.Context, filter *types.PaymentFilter, op string) *whereBuilder {
	w := &whereBuilder{}
	w.tenant(resolveScope(ctx, r.log, "payment", op))
	if filter == nil {
		return w
	}
	if filter.OrderID != "" {
		w.add("order_id = ?", filter.OrderID)
	}
	w.in("payment_status", lo.Map(filter.PaymentStatus, func(s types.PaymentStatus, _ int) string {
		return string(s)
	}))
	if filter.Provider != "" {
		w.add("provider = ?", filter.Provider)
	}
	if filter.CreatedBefore != nil {
		w.add("created_at < ?", *filter.CreatedBefore)
	}
	return w
}

func (r *paymentRepository) List(ctx context.Context, filter *types.PaymentFilter) ([]*payment.Payment, error) {
	span := StartRepositorySpan(ctx, "payment", "list", nil)
	defer FinishSpan(span)

	if filter == nil {
		filter = types.NewPaymentFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}

	w := r.filterClause(ctx, filter, "list")
	where := w.String()
	query := `SELECT ` + paymentColumns + ` FROM payments` + where + w.page(filter.QueryFilter)

	var payments []*payment.Payment
	if err := r.client.Querier(ctx).SelectContext(ctx, &payments, query, w.args...); err != nil {
		SetSpanError(span, err)
		return nil, postgres.MapError(err, "list payments")
	}
	return payments, nil
}

func (r *paymentRepository) Count(ctx context.Context, filter *types.PaymentFilter) (int, error) {
	w := r.filterClause(ctx, filter, "count")

	var count int
	if err := r.client.Querier(ctx).GetContext(ctx, &count, `SELECT COUNT(*) FROM payments`+w.String(), w.args...); err != nil {
		return 0, postgres.MapError(err, "count payments")
	}
	return count, nil
}
