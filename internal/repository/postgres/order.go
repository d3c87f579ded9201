package postgres

import (
	"context"
	"strings"

	"github.com/counterpos/counterpos/internal/domain/order"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/postgres"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
)

const orderColumns = `id, tenant_id, order_number, period_key, invoice_number, order_status,
	currency, subtotal, discount, total, customer_name, customer_phone, notes,
	completed_at, status, created_at, updated_at, created_by, updated_by`

const lineItemColumns = `id, tenant_id, order_id, product_id, name, unit_price, quantity,
	modifiers_total, line_total, status, created_at, updated_at, created_by, updated_by`

type orderRepository struct {
	client postgres.IClient
	log    *logger.Logger
}

func NewOrderRepository(client postgres.IClient, log *logger.Logger) order.Repository {
	return &orderRepository{client: client, log: log}
}

func (r *orderRepository) Create(ctx context.Context, o *order.Order) error {
	span := StartRepositorySpan(ctx, "order", "create", map[string]interface{}{
		"order_id":  o.ID,
		"tenant_id": o.TenantID,
	})
	defer FinishSpan(span)

	r.log.Debugw("creating order",
		"order_id", o.ID,
		"tenant_id", o.TenantID,
		"order_number", o.OrderNumber,
		"period_key", o.PeriodKey,
	)

	return r.client.WithTx(ctx, func(ctx context.Context) error {
		query := `INSERT INTO orders (` + orderColumns + `) VALUES (
			:id, :tenant_id, :order_number, :period_key, :invoice_number, :order_status,
			:currency, :subtotal, :discount, :total, :customer_name, :customer_phone, :notes,
			:completed_at, :status, :created_at, :updated_at, :created_by, :updated_by
		)`
		if _, err := r.client.Querier(ctx).NamedExecContext(ctx, query, o); err != nil {
			SetSpanError(span, err)
			return postgres.MapError(err, "create order")
		}
		return r.insertLineItems(ctx, o.LineItems)
	})
}

func (r *orderRepository) insertLineItems(ctx context.Context, items []*order.LineItem) error {
	query := `INSERT INTO order_line_items (` + lineItemColumns + `) VALUES (
		:id, :tenant_id, :order_id, :product_id, :name, :unit_price, :quantity,
		:modifiers_total, :line_total, :status, :created_at, :updated_at, :created_by, :updated_by
	)`
	for _, li := range items {
		if _, err := r.client.Querier(ctx).NamedExecContext(ctx, query, li); err != nil {
			return postgres.MapError(err, "create order line item")
		}
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, id, false)
}

func (r *orderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, id, true)
}

func (r *orderRepository) get(ctx context.Context, id string, lock bool) (*order.Order, error) {
	span := StartRepositorySpan(ctx, "order", "get", map[string]interface{}{
		"order_id":   id,
		"for_update": lock,
	})
	defer FinishSpan(span)

	scope := resolveScope(ctx, r.log, "order", "get")

	var w whereBuilder
	w.add("id = ?", id)
	w.tenant(scope)
	query := `SELECT ` + orderColumns + ` FROM orders` + w.String()
	if lock {
		query += ` FOR UPDATE`
	}

	var o order.Order
	if err := r.client.Querier(ctx).GetContext(ctx, &o, query, w.args...); err != nil {
		SetSpanError(span, err)
		return nil, postgres.MapError(err, "get order")
	}

	items, err := r.lineItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.LineItems = items[o.ID]
	return &o, nil
}

// lineItems loads the line items of the given orders keyed by order id
func (r *orderRepository) lineItems(ctx context.Context, orderIDs []string) (map[string][]*order.LineItem, error) {
	if len(orderIDs) == 0 {
		return map[string][]*order.LineItem{}, nil
	}

	var w whereBuilder
	w.in("order_id", orderIDs)
	query := `SELECT ` + lineItemColumns + ` FROM order_line_items` + w.String() + ` ORDER BY created_at, id`

	var items []*order.LineItem
	if err := r.client.Querier(ctx).SelectContext(ctx, &items, query, w.args...); err != nil {
		return nil, postgres.MapError(err, "list order line items")
	}
	return lo.GroupBy(items, func(li *order.LineItem) string {
		return li.OrderID
	}), nil
}

func (r *orderRepository) filterClause(ctx context.Context, filter *types.OrderFilter, op string) *whereBuilder {
	w := &whereBuilder{}
	w.tenant(resolveScope(ctx, r.log, "order", op))
	if filter == nil {
		return w
	}
	w.in("order_status", lo.Map(filter.OrderStatus, func(s types.OrderStatus, _ int) string {
		return string(s)
	}))
	if filter.PeriodKey != "" {
		w.add("period_key = ?", filter.PeriodKey)
	}
	return w
}

func (r *orderRepository) List(ctx context.Context, filter *types.OrderFilter) ([]*order.Order, error) {
	span := StartRepositorySpan(ctx, "order", "list", nil)
	defer FinishSpan(span)

	if filter == nil {
		filter = types.NewOrderFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}

	w := r.filterClause(ctx, filter, "list")
	where := w.String()
	query := `SELECT ` + orderColumns + ` FROM orders` + where + w.page(filter.QueryFilter)

	var orders []*order.Order
	if err := r.client.Querier(ctx).SelectContext(ctx, &orders, query, w.args...); err != nil {
		SetSpanError(span, err)
		return nil, postgres.MapError(err, "list orders")
	}

	items, err := r.lineItems(ctx, lo.Map(orders, func(o *order.Order, _ int) string {
		return o.ID
	}))
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.LineItems = items[o.ID]
	}
	return orders, nil
}

func (r *orderRepository) Count(ctx context.Context, filter *types.OrderFilter) (int, error) {
	w := r.filterClause(ctx, filter, "count")

	var count int
	if err := r.client.Querier(ctx).GetContext(ctx, &count, `SELECT COUNT(*) FROM orders`+w.String(), w.args...); err != nil {
		return 0, postgres.MapError(err, "count orders")
	}
	return count, nil
}

func (r *orderRepository) Update(ctx context.Context, o *order.Order) error {
	span := StartRepositorySpan(ctx, "order", "update", map[string]interface{}{
		"order_id": o.ID,
	})
	defer FinishSpan(span)

	scope := resolveScope(ctx, r.log, "order", "update")

	w := whereBuilder{args: []interface{}{
		o.OrderStatus, o.InvoiceNumber, o.Subtotal, o.Discount, o.Total,
		o.CustomerName, o.CustomerPhone, o.Notes, o.CompletedAt, o.UpdatedAt, o.UpdatedBy,
	}}
	set := `order_status = $1, invoice_number = $2, subtotal = $3, discount = $4, total = $5,
		customer_name = $6, customer_phone = $7, notes = $8, completed_at = $9,
		updated_at = $10, updated_by = $11`
	w.add("id = ?", o.ID)
	w.tenant(scope)

	result, err := r.client.Querier(ctx).ExecContext(ctx, `UPDATE orders SET `+set+w.String(), w.args...)
	if err != nil {
		SetSpanError(span, err)
		return postgres.MapError(err, "update order")
	}
	return requireAffected(result, "order", o.ID)
}

func (r *orderRepository) ReplaceLineItems(ctx context.Context, orderID string, items []*order.LineItem) error {
	span := StartRepositorySpan(ctx, "order", "replace_line_items", map[string]interface{}{
		"order_id": orderID,
		"count":    len(items),
	})
	defer FinishSpan(span)

	scope := resolveScope(ctx, r.log, "order", "replace_line_items")

	return r.client.WithTx(ctx, func(ctx context.Context) error {
		var w whereBuilder
		w.add("order_id = ?", orderID)
		w.tenant(scope)
		if _, err := r.client.Querier(ctx).ExecContext(ctx, `DELETE FROM order_line_items`+w.String(), w.args...); err != nil {
			SetSpanError(span, err)
			return postgres.MapError(err, "delete order line items")
		}
		return r.insertLineItems(ctx, items)
	})
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func requireAffected(result rowsAffected, entity, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return postgres.MapError(err, "update "+entity)
	}
	if n == 0 {
		return ierr.NewErrorf("%s %s not found", entity, id).
			WithHintf("%s not found", strings.ToUpper(entity[:1])+entity[1:]).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
