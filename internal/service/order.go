package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/counterpos/counterpos/internal/api/dto"
	"github.com/counterpos/counterpos/internal/domain/order"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/notifier"
	"github.com/counterpos/counterpos/internal/rbac"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
)

// OrderService owns the order aggregate: numbering, totals and lifecycle
type OrderService interface {
	CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*dto.OrderResponse, error)
	GetOrder(ctx context.Context, id string) (*dto.OrderResponse, error)
	ListOrders(ctx context.Context, filter *types.OrderFilter) (*dto.ListOrdersResponse, error)
	ReplaceLineItems(ctx context.Context, id string, req dto.ReplaceLineItemsRequest) (*dto.OrderResponse, error)
	ApplyDiscount(ctx context.Context, id string, req dto.ApplyDiscountRequest) (*dto.OrderResponse, error)
	UpdateStatus(ctx context.Context, id string, status types.OrderStatus) (*dto.OrderResponse, error)
	// AssignInvoiceNumber draws from the yearly invoice series once per order
	AssignInvoiceNumber(ctx context.Context, id string) (*dto.InvoiceNumberResponse, error)
	// ReconcilePayment marks an unpaid order PAID after a successful payment
	ReconcilePayment(ctx context.Context, orderID string) error
}

type orderService struct {
	ServiceParams
	sequences SequenceService
}

func NewOrderService(params ServiceParams) OrderService {
	return &orderService{
		ServiceParams: params,
		sequences:     NewSequenceService(params),
	}
}

func (s *orderService) CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	tenantID := types.GetTenantID(ctx)
	if tenantID == "" {
		return nil, ierr.NewError("tenant is required to create an order").
			WithHint("Select a business before creating orders").
			Mark(ierr.ErrValidation)
	}

	o, err := req.ToOrder(ctx)
	if err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	periodKey := types.DailyPeriodKey(time.Now(), s.location(ctx, tenantID))

	// a failed attempt rolls back both the number and the order, so the whole
	// transaction is retried and no order is ever committed without a number
	err = s.retryTransient(ctx, func() error {
		return s.DB.WithTx(ctx, func(txCtx context.Context) error {
			number, err := s.sequences.Allocate(txCtx, tenantID, types.SequenceScopeOrder, periodKey)
			if err != nil {
				return err
			}
			o.OrderNumber = number
			o.PeriodKey = periodKey
			return s.OrderRepo.Create(txCtx, o)
		})
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("order created",
		"order_id", o.ID,
		"order_number", o.OrderNumber,
		"period_key", o.PeriodKey,
		"total", o.Total,
	)
	s.Notifier.Notify(ctx, notifier.TopicOrderCreated, orderEvent(o, ""))

	return dto.NewOrderResponse(o), nil
}

func (s *orderService) GetOrder(ctx context.Context, id string) (*dto.OrderResponse, error) {
	if id == "" {
		return nil, ierr.NewError("order_id is required").
			WithHint("Order ID is required").
			Mark(ierr.ErrValidation)
	}

	o, err := s.OrderRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewOrderResponse(o), nil
}

func (s *orderService) ListOrders(ctx context.Context, filter *types.OrderFilter) (*dto.ListOrdersResponse, error) {
	if filter == nil {
		filter = types.NewOrderFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation)
	}

	orders, err := s.OrderRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.OrderRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(orders, func(o *order.Order, _ int) *dto.OrderResponse {
		return dto.NewOrderResponse(o)
	})
	resp := types.NewListResponse(items, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

func (s *orderService) ReplaceLineItems(ctx context.Context, id string, req dto.ReplaceLineItemsRequest) (*dto.OrderResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var updated *order.Order
	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.OrderRepo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if !o.OrderStatus.IsEditable() {
			return ierr.NewErrorf("order %s is %s", o.ID, o.OrderStatus).
				WithHintf("Items cannot be changed on a %s order", o.OrderStatus).
				Mark(ierr.ErrInvalidOperation)
		}

		if err := o.SetLineItems(dto.ToLineItems(txCtx, req.LineItems)); err != nil {
			return err
		}
		if err := o.Validate(); err != nil {
			return err
		}
		o.Touch(txCtx)

		if err := s.OrderRepo.ReplaceLineItems(txCtx, o.ID, o.LineItems); err != nil {
			return err
		}
		if err := s.OrderRepo.Update(txCtx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto.NewOrderResponse(updated), nil
}

func (s *orderService) ApplyDiscount(ctx context.Context, id string, req dto.ApplyDiscountRequest) (*dto.OrderResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var updated *order.Order
	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.OrderRepo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if err := o.ApplyDiscount(req.Discount); err != nil {
			return err
		}
		o.Touch(txCtx)
		if err := s.OrderRepo.Update(txCtx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto.NewOrderResponse(updated), nil
}

func (s *orderService) UpdateStatus(ctx context.Context, id string, status types.OrderStatus) (*dto.OrderResponse, error) {
	if err := status.Validate(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unknown order status").
			Mark(ierr.ErrValidation)
	}
	if status == types.OrderStatusCancelled {
		if err := s.RBAC.Authorize(ctx, rbac.EntityOrder, rbac.ActionCancel); err != nil {
			return nil, err
		}
	}

	updated, previous, err := s.transition(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.notifyStatusChange(ctx, updated, previous)
	return dto.NewOrderResponse(updated), nil
}

func (s *orderService) AssignInvoiceNumber(ctx context.Context, id string) (*dto.InvoiceNumberResponse, error) {
	var (
		updated  *order.Order
		assigned bool
	)
	err := s.retryTransient(ctx, func() error {
		return s.DB.WithTx(ctx, func(txCtx context.Context) error {
			o, err := s.OrderRepo.GetForUpdate(txCtx, id)
			if err != nil {
				return err
			}
			updated = o
			if o.InvoiceNumber != nil {
				return nil
			}
			if o.OrderStatus == types.OrderStatusCancelled {
				return ierr.NewErrorf("order %s is cancelled", o.ID).
					WithHint("Cancelled orders cannot be invoiced").
					Mark(ierr.ErrInvalidOperation)
			}

			periodKey := types.YearlyPeriodKey(time.Now(), s.location(txCtx, o.TenantID))
			number, err := s.sequences.Allocate(txCtx, o.TenantID, types.SequenceScopeInvoice, periodKey)
			if err != nil {
				return err
			}
			o.InvoiceNumber = lo.ToPtr(types.FormatInvoiceNumber(s.Config.Sequence.InvoicePrefix, periodKey, number))
			o.Touch(txCtx)
			assigned = true
			return s.OrderRepo.Update(txCtx, o)
		})
	})
	if err != nil {
		return nil, err
	}

	if assigned {
		s.Logger.WithContext(ctx).Infow("invoice number assigned",
			"order_id", updated.ID,
			"invoice_number", *updated.InvoiceNumber,
		)
	}
	return &dto.InvoiceNumberResponse{
		OrderID:       updated.ID,
		InvoiceNumber: *updated.InvoiceNumber,
		AssignedAt:    updated.UpdatedAt,
	}, nil
}

func (s *orderService) ReconcilePayment(ctx context.Context, orderID string) error {
	var (
		updated  *order.Order
		previous types.OrderStatus
	)
	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.OrderRepo.GetForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if !o.OrderStatus.CanTransitionTo(types.OrderStatusPaid) {
			return nil
		}
		previous = o.OrderStatus
		if err := o.TransitionTo(types.OrderStatusPaid, time.Now()); err != nil {
			return err
		}
		o.Touch(txCtx)
		if err := s.OrderRepo.Update(txCtx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return err
	}
	if updated != nil {
		s.notifyStatusChange(ctx, updated, previous)
	}
	return nil
}

func (s *orderService) transition(ctx context.Context, id string, status types.OrderStatus) (*order.Order, types.OrderStatus, error) {
	var (
		updated  *order.Order
		previous types.OrderStatus
	)
	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.OrderRepo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		previous = o.OrderStatus
		if err := o.TransitionTo(status, time.Now()); err != nil {
			return err
		}
		o.Touch(txCtx)
		if err := s.OrderRepo.Update(txCtx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return updated, previous, nil
}

// notifyStatusChange publishes after commit; completion also reaches the
// inventory and notification subscribers
func (s *orderService) notifyStatusChange(ctx context.Context, o *order.Order, previous types.OrderStatus) {
	s.Logger.WithContext(ctx).Infow("order status changed",
		"order_id", o.ID,
		"from", previous,
		"to", o.OrderStatus,
	)
	s.Notifier.Notify(ctx, notifier.TopicOrderStatusChanged, orderEvent(o, previous))
	if o.OrderStatus == types.OrderStatusCompleted {
		s.Notifier.Notify(ctx, notifier.TopicOrderCompleted, orderEvent(o, previous))
	}
}

// location is the business timezone used for period keys: the tenant's own
// when set, the configured default otherwise
func (s *orderService) location(ctx context.Context, tenantID string) *time.Location {
	t, err := s.TenantRepo.GetByID(ctx, tenantID)
	if err == nil && t.Timezone != "" {
		return t.Location()
	}
	if err != nil && !ierr.IsNotFound(err) {
		s.Logger.WithContext(ctx).Warnw("failed to load tenant timezone, using default",
			"tenant_id", tenantID,
			"error", err,
		)
	}
	loc, err := s.Config.Sequence.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}

// retryTransient reruns op while it fails with a retryable error
func (s *orderService) retryTransient(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.Config.Sequence.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.Config.Sequence.MaxRetries), ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !ierr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		s.Logger.WithContext(ctx).Warnw("transient failure, retrying",
			"attempt", attempt,
			"error", err,
		)
		return err
	}, policy)
}

func orderEvent(o *order.Order, previous types.OrderStatus) notifier.OrderEvent {
	return notifier.OrderEvent{
		TenantID:       o.TenantID,
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		PeriodKey:      o.PeriodKey,
		OrderStatus:    o.OrderStatus,
		PreviousStatus: previous,
		Total:          o.Total,
		Currency:       o.Currency,
		CompletedAt:    o.CompletedAt,
	}
}
