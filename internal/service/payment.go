package service

import (
	"context"
	"net/http"
	"time"

	"github.com/counterpos/counterpos/internal/api/dto"
	"github.com/counterpos/counterpos/internal/domain/payment"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/idempotency"
	"github.com/counterpos/counterpos/internal/integration/gateway"
	"github.com/counterpos/counterpos/internal/notifier"
	"github.com/counterpos/counterpos/internal/rbac"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
)

// PaymentService drives the payment state machine. Provider calls always
// happen outside of database locks; state changes happen in short locked
// transactions.
type PaymentService interface {
	InitiatePayment(ctx context.Context, req dto.InitiatePaymentRequest) (*dto.PaymentResponse, error)
	GetPayment(ctx context.Context, id string) (*dto.PaymentResponse, error)
	ListPayments(ctx context.Context, filter *types.PaymentFilter) (*dto.ListPaymentsResponse, error)

	StartProcessing(ctx context.Context, id string) (*dto.PaymentResponse, error)
	MarkSucceeded(ctx context.Context, id string, raw types.RawJSON) (*dto.PaymentResponse, error)
	MarkFailed(ctx context.Context, id string, code, message string, raw types.RawJSON) (*dto.PaymentResponse, error)
	MarkExpired(ctx context.Context, id string, raw types.RawJSON) (*dto.PaymentResponse, error)

	// CheckStatus polls the provider and applies its answer like a webhook
	CheckStatus(ctx context.Context, id string) (*dto.PaymentResponse, error)
	RefundPayment(ctx context.Context, id string, req dto.RefundPaymentRequest) (*dto.PaymentResponse, error)

	// ReconcileWebhook verifies and applies a provider callback
	ReconcileWebhook(ctx context.Context, providerCode string, headers http.Header, body []byte) (*WebhookResult, error)

	// ExpireStalePayments expires unsettled payments created before now-olderThan
	// across all tenants and returns how many were expired
	ExpireStalePayments(ctx context.Context, olderThan time.Duration) (int, error)
}

type paymentService struct {
	ServiceParams
	orders   OrderService
	idempGen *idempotency.Generator
}

// NewPaymentService creates a new payment service
func NewPaymentService(params ServiceParams) PaymentService {
	return &paymentService{
		ServiceParams: params,
		orders:        NewOrderService(params),
		idempGen:      idempotency.NewGenerator(),
	}
}

func (s *paymentService) InitiatePayment(ctx context.Context, req dto.InitiatePaymentRequest) (*dto.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if types.GetTenantID(ctx) == "" {
		return nil, ierr.NewError("tenant is required to initiate a payment").
			WithHint("Select a business before taking payments").
			Mark(ierr.ErrValidation)
	}

	// cross-tenant orders are not found
	o, err := s.OrderRepo.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.OrderStatus == types.OrderStatusCancelled {
		return nil, ierr.NewErrorf("order %s is cancelled", o.ID).
			WithHint("Cancelled orders cannot be paid").
			Mark(ierr.ErrInvalidOperation)
	}
	if o.Currency != req.Currency {
		return nil, ierr.NewErrorf("payment currency %s does not match order currency %s", req.Currency, o.Currency).
			WithHintf("Payment currency must be %s", o.Currency).
			Mark(ierr.ErrValidation)
	}

	provider, err := s.Providers.GetProvider(req.Provider)
	if err != nil {
		return nil, err
	}

	p, err := s.findOrCreate(ctx, req)
	if err != nil {
		return nil, err
	}

	// only a payment nobody has handed to the provider yet is (re)started
	if p.PaymentStatus != types.PaymentStatusPending || p.HasProviderReference() {
		return dto.NewPaymentResponse(p), nil
	}

	result, callErr := s.initiateWithProvider(ctx, provider, p, o.ID)
	p, err = s.applyInitiateResult(ctx, p.ID, result, callErr)
	if err != nil {
		return nil, err
	}
	return dto.NewPaymentResponse(p), nil
}

// findOrCreate returns the payment of the idempotency key, inserting a
// PENDING one when none exists. A concurrent insert with the same key loses
// on the unique index and returns the winner.
func (s *paymentService) findOrCreate(ctx context.Context, req dto.InitiatePaymentRequest) (*payment.Payment, error) {
	existing, err := s.PaymentRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err == nil {
		return existing, s.matchesRequest(existing, req)
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	p := req.ToPayment(ctx)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := s.PaymentRepo.Create(ctx, p); err != nil {
		if !ierr.IsAlreadyExists(err) {
			return nil, err
		}
		winner, getErr := s.PaymentRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if getErr != nil {
			return nil, getErr
		}
		s.Logger.WithContext(ctx).Infow("concurrent payment initiation, returning existing payment",
			"payment_id", winner.ID,
			"idempotency_key", req.IdempotencyKey,
		)
		return winner, s.matchesRequest(winner, req)
	}

	s.Logger.WithContext(ctx).Infow("payment created",
		"payment_id", p.ID,
		"order_id", p.OrderID,
		"provider", p.Provider,
		"amount", p.Amount,
	)
	return p, nil
}

// matchesRequest rejects an idempotency key reused for a different payment
func (s *paymentService) matchesRequest(p *payment.Payment, req dto.InitiatePaymentRequest) error {
	if p.OrderID == req.OrderID && p.Amount == req.Amount && p.Currency == req.Currency && p.Provider == req.Provider {
		return nil
	}
	return ierr.NewErrorf("idempotency key %s was used for another payment", req.IdempotencyKey).
		WithHint("Idempotency key was already used with different payment details").
		WithReportableDetails(map[string]any{
			"payment_id": p.ID,
		}).
		Mark(ierr.ErrAlreadyExists)
}

func (s *paymentService) initiateWithProvider(ctx context.Context, provider gateway.Provider, p *payment.Payment, orderID string) (*gateway.InitiateResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.Config.Payment.ProviderTimeout)
	defer cancel()

	started := time.Now()
	result, err := provider.InitiatePayment(callCtx, &gateway.InitiateRequest{
		PaymentID:      p.ID,
		OrderID:        orderID,
		TenantID:       p.TenantID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		IdempotencyKey: s.idempGen.CheckoutKey(p.TenantID, p.IdempotencyKey),
		CustomerPhone:  p.CustomerPhone,
		CallbackURL:    p.CallbackURL,
		RedirectURL:    p.RedirectURL,
		Description:    "Order " + orderID,
	})
	s.Metrics.ObserveProviderCall(p.Provider, "initiate", started, err)
	return result, err
}

// applyInitiateResult stores the provider's answer on the payment.
// Temporary failures leave the payment PENDING so the same idempotency key
// can start it again; rejections fail it with the provider's own text.
func (s *paymentService) applyInitiateResult(ctx context.Context, id string, result *gateway.InitiateResult, callErr error) (*payment.Payment, error) {
	log := s.Logger.WithContext(ctx)

	if callErr != nil && gateway.IsTemporary(callErr) {
		log.Warnw("payment provider unavailable, payment stays pending",
			"payment_id", id,
			"error", callErr,
		)
		return s.PaymentRepo.Get(ctx, id)
	}

	var (
		updated  *payment.Payment
		previous types.PaymentStatus
	)
	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		p, err := s.PaymentRepo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		previous = p.PaymentStatus
		updated = p

		// a webhook may have settled it while the provider call was in flight
		if p.PaymentStatus.IsTerminal() {
			return nil
		}

		now := time.Now()
		if callErr != nil {
			perr, _ := gateway.AsProviderError(callErr)
			code, message := "provider_rejected", callErr.Error()
			if perr != nil {
				code, message = perr.Code, perr.Message
			}
			if err := p.MarkFailed(code, message, nil, now); err != nil {
				return err
			}
		} else {
			if err := p.SetProviderReference(result.ProviderReference); err != nil {
				return err
			}
			if result.CheckoutURL != "" {
				p.CheckoutURL = result.CheckoutURL
			}
			if len(result.Raw) > 0 {
				p.ProviderResponse = result.Raw
			}
			switch result.Status {
			case types.PaymentStatusSuccess:
				if err := p.MarkSucceeded(result.Raw, now); err != nil {
					return err
				}
			case types.PaymentStatusProcessing:
				if p.PaymentStatus == types.PaymentStatusPending {
					if err := p.StartProcessing(); err != nil {
						return err
					}
				}
			}
		}

		p.Touch(txCtx)
		return s.PaymentRepo.Update(txCtx, p)
	})
	if err != nil {
		return nil, err
	}

	if updated.PaymentStatus != previous {
		s.onStatusChanged(ctx, updated, previous)
	}

	if updated.PaymentStatus == types.PaymentStatusFailed && callErr != nil {
		return updated, ierr.WithError(callErr).
			WithHintf("Payment was declined: %s", lo.FromPtr(updated.FailureMessage)).
			WithReportableDetails(map[string]any{
				"payment_id":   updated.ID,
				"failure_code": lo.FromPtr(updated.FailureCode),
			}).
			Mark(ierr.ErrProvider)
	}
	return updated, nil
}

func (s *paymentService) GetPayment(ctx context.Context, id string) (*dto.PaymentResponse, error) {
	if id == "" {
		return nil, ierr.NewError("payment_id is required").
			WithHint("Payment ID is required").
			Mark(ierr.ErrValidation)
	}
	p, err := s.PaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewPaymentResponse(p), nil
}

func (s *paymentService) ListPayments(ctx context.Context, filter *types.PaymentFilter) (*dto.ListPaymentsResponse, error) {
	if filter == nil {
		filter = types.NewPaymentFilter()
	}
	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation)
	}

	payments, err := s.PaymentRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.PaymentRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(payments, func(p *payment.Payment, _ int) *dto.PaymentResponse {
		return dto.NewPaymentResponse(p)
	})
	resp := types.NewListResponse(items, total, filter.GetLimit(), filter.GetOffset())
	return &resp, nil
}

func (s *paymentService) StartProcessing(ctx context.Context, id string) (*dto.PaymentResponse, error) {
	return s.mutate(ctx, id, func(p *payment.Payment, _ time.Time) error {
		return p.StartProcessing()
	})
}

func (s *paymentService) MarkSucceeded(ctx context.Context, id string, raw types.RawJSON) (*dto.PaymentResponse, error) {
	return s.mutate(ctx, id, func(p *payment.Payment, now time.Time) error {
		return p.MarkSucceeded(raw, now)
	})
}

func (s *paymentService) MarkFailed(ctx context.Context, id string, code, message string, raw types.RawJSON) (*dto.PaymentResponse, error) {
	return s.mutate(ctx, id, func(p *payment.Payment, now time.Time) error {
		return p.MarkFailed(code, message, raw, now)
	})
}

func (s *paymentService) MarkExpired(ctx context.Context, id string, raw types.RawJSON) (*dto.PaymentResponse, error) {
	return s.mutate(ctx, id, func(p *payment.Payment, now time.Time) error {
		return p.MarkExpired(raw, now)
	})
}

// mutate applies fn to the row-locked payment and persists it
func (s *paymentService) mutate(ctx context.Context, id string, fn func(p *payment.Payment, now time.Time) error) (*dto.PaymentResponse, error) {
	var (
		updated  *payment.Payment
		previous types.PaymentStatus
	)
	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		p, err := s.PaymentRepo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		previous = p.PaymentStatus
		if err := fn(p, time.Now()); err != nil {
			return err
		}
		p.Touch(txCtx)
		if err := s.PaymentRepo.Update(txCtx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.onStatusChanged(ctx, updated, previous)
	return dto.NewPaymentResponse(updated), nil
}

func (s *paymentService) CheckStatus(ctx context.Context, id string) (*dto.PaymentResponse, error) {
	p, err := s.PaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.PaymentStatus.IsTerminal() || !p.HasProviderReference() {
		return dto.NewPaymentResponse(p), nil
	}

	update, err := s.pollProvider(ctx, p)
	if err != nil {
		if gateway.IsTemporary(err) {
			s.Logger.WithContext(ctx).Warnw("payment status check failed, keeping current status",
				"payment_id", p.ID,
				"error", err,
			)
			return dto.NewPaymentResponse(p), nil
		}
		return nil, ierr.WithError(err).
			WithHint("Payment provider could not report the payment status").
			Mark(ierr.ErrProvider)
	}

	p, _, err = s.applyStatusUpdate(ctx, p.ID, update)
	if err != nil {
		return nil, err
	}
	return dto.NewPaymentResponse(p), nil
}

func (s *paymentService) pollProvider(ctx context.Context, p *payment.Payment) (*gateway.StatusUpdate, error) {
	provider, err := s.Providers.GetProvider(p.Provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.Config.Payment.ProviderTimeout)
	defer cancel()

	started := time.Now()
	update, err := provider.CheckStatus(callCtx, *p.ProviderReference)
	s.Metrics.ObserveProviderCall(p.Provider, "check_status", started, err)
	return update, err
}

func (s *paymentService) RefundPayment(ctx context.Context, id string, req dto.RefundPaymentRequest) (*dto.PaymentResponse, error) {
	if err := s.RBAC.Authorize(ctx, rbac.EntityPayment, rbac.ActionRefund); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// the reservation is taken under the row lock so that concurrent refunds
	// of one payment reach the provider at most once
	staleAfter := 2 * s.Config.Payment.ProviderTimeout
	reserved, err := s.mutate(ctx, id, func(p *payment.Payment, now time.Time) error {
		return p.ReserveRefund(req.Amount, now, staleAfter)
	})
	if err != nil {
		return nil, err
	}
	p := reserved.Payment

	provider, err := s.Providers.GetProvider(p.Provider)
	if err != nil {
		s.releaseRefund(ctx, p.ID)
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.Config.Payment.ProviderTimeout)
	defer cancel()

	started := time.Now()
	refund, err := provider.ProcessRefund(callCtx, &gateway.RefundRequest{
		PaymentID:         p.ID,
		ProviderReference: lo.FromPtr(p.ProviderReference),
		Amount:            req.Amount,
		Currency:          p.Currency,
		IdempotencyKey:    s.idempGen.RefundKey(p.ID),
	})
	s.Metrics.ObserveProviderCall(p.Provider, "refund", started, err)
	if err != nil {
		s.Logger.WithContext(ctx).Errorw("refund rejected by provider",
			"payment_id", p.ID,
			"amount", req.Amount,
			"error", err,
		)
		s.releaseRefund(ctx, p.ID)
		return nil, ierr.WithError(err).
			WithHint("Payment provider did not accept the refund").
			WithReportableDetails(map[string]any{
				"payment_id": p.ID,
			}).
			Mark(ierr.ErrProvider)
	}

	s.Logger.WithContext(ctx).Infow("refund accepted by provider",
		"payment_id", p.ID,
		"amount", req.Amount,
		"refund_reference", refund.RefundReference,
	)

	return s.mutate(ctx, p.ID, func(p *payment.Payment, now time.Time) error {
		return p.ApplyRefund(req.Amount, now)
	})
}

// releaseRefund clears a refund reservation. A reservation that cannot be
// cleared goes stale and is taken over by the next refund attempt.
func (s *paymentService) releaseRefund(ctx context.Context, id string) {
	_, err := s.mutate(ctx, id, func(p *payment.Payment, _ time.Time) error {
		p.ReleaseRefund()
		return nil
	})
	if err != nil {
		s.Logger.WithContext(ctx).Warnw("failed to release refund reservation",
			"payment_id", id,
			"error", err,
		)
	}
}

// onStatusChanged runs after commit: metrics, the status event and, on
// success, the order reconciliation. None of it can fail the transition.
func (s *paymentService) onStatusChanged(ctx context.Context, p *payment.Payment, previous types.PaymentStatus) {
	if p.PaymentStatus == previous {
		return
	}

	// system scoped callers have no tenant; events and the order update need it
	ctx = types.SetTenantID(ctx, p.TenantID)

	s.Metrics.ObservePaymentTransition(p.Provider, p.PaymentStatus)
	s.Logger.WithContext(ctx).Infow("payment status changed",
		"payment_id", p.ID,
		"order_id", p.OrderID,
		"from", previous,
		"to", p.PaymentStatus,
	)
	s.Notifier.Notify(ctx, notifier.TopicPaymentStatusChanged, notifier.PaymentStatusChangedEvent{
		TenantID:       p.TenantID,
		PaymentID:      p.ID,
		OrderID:        p.OrderID,
		Provider:       p.Provider,
		Amount:         p.Amount,
		Currency:       p.Currency,
		PreviousStatus: previous,
		PaymentStatus:  p.PaymentStatus,
	})

	if p.PaymentStatus == types.PaymentStatusSuccess {
		if err := s.orders.ReconcilePayment(ctx, p.OrderID); err != nil {
			s.Logger.WithContext(ctx).Errorw("failed to reconcile order after payment",
				"payment_id", p.ID,
				"order_id", p.OrderID,
				"error", err,
			)
		}
	}
}
