package service

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/counterpos/counterpos/internal/domain/payment"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/integration/gateway"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
)

const (
	webhookCaller     = "payment_webhook"
	expirySweepCaller = "payment_expiry_sweep"

	expirySweepBatch       = 200
	expirySweepConcurrency = 4
)

// WebhookResult reports what a provider callback did to its payment
type WebhookResult struct {
	Payment *payment.Payment
	Outcome types.WebhookOutcome
}

func (s *paymentService) ReconcileWebhook(ctx context.Context, providerCode string, headers http.Header, body []byte) (*WebhookResult, error) {
	log := s.Logger.WithContext(ctx)

	provider, err := s.Providers.GetProvider(types.PaymentProvider(providerCode))
	if err != nil {
		s.Metrics.ObserveWebhook(providerCode, "unknown_provider")
		return nil, err
	}

	if err := provider.VerifyWebhook(headers, body); err != nil {
		s.Metrics.ObserveWebhook(providerCode, "rejected")
		log.Warnw("webhook signature verification failed",
			"provider", providerCode,
			"error", err,
		)
		return nil, ierr.WithError(err).
			WithHint("Webhook signature verification failed").
			Mark(ierr.ErrWebhookVerification)
	}

	update, err := provider.ParseWebhook(body)
	if err != nil {
		s.Metrics.ObserveWebhook(providerCode, "malformed")
		return nil, ierr.WithError(err).
			WithHint("Webhook payload could not be parsed").
			Mark(ierr.ErrValidation)
	}

	if update.ProviderReference == "" {
		s.Metrics.ObserveWebhook(providerCode, "malformed")
		log.Errorw("verified webhook without provider reference",
			"provider", providerCode,
			"event_id", update.EventID,
			"provider_status", update.ProviderStatus,
		)
		return nil, ierr.NewError("webhook has no provider reference").
			WithHint("Webhook does not reference a payment").
			Mark(ierr.ErrInvalidOperation)
	}

	// the callback carries no tenant; the payment decides it
	sysCtx := types.WithSystemScope(ctx, webhookCaller)
	p, err := s.PaymentRepo.GetByProviderReference(sysCtx, provider.Code(), update.ProviderReference)
	if err != nil {
		if ierr.IsNotFound(err) {
			s.Metrics.ObserveWebhook(providerCode, "not_found")
			log.Warnw("webhook for unknown payment",
				"provider", providerCode,
				"provider_reference", update.ProviderReference,
				"event_id", update.EventID,
			)
		}
		return nil, err
	}

	tenantCtx := types.SetTenantID(sysCtx, p.TenantID)
	p, outcome, err := s.applyStatusUpdate(tenantCtx, p.ID, update)
	if err != nil {
		return nil, err
	}

	s.Metrics.ObserveWebhook(providerCode, string(outcome))
	log.Infow("webhook reconciled",
		"provider", providerCode,
		"payment_id", p.ID,
		"tenant_id", p.TenantID,
		"event_id", update.EventID,
		"provider_status", update.ProviderStatus,
		"payment_status", p.PaymentStatus,
		"outcome", outcome,
	)
	return &WebhookResult{Payment: p, Outcome: outcome}, nil
}

// applyStatusUpdate applies a provider-reported status to the payment under
// its row lock. Terminal payments never move again, so duplicate and late
// deliveries converge on the first terminal state.
func (s *paymentService) applyStatusUpdate(ctx context.Context, id string, update *gateway.StatusUpdate) (*payment.Payment, types.WebhookOutcome, error) {
	log := s.Logger.WithContext(ctx)

	var (
		updated  *payment.Payment
		previous types.PaymentStatus
		outcome  types.WebhookOutcome
	)
	err := s.DB.WithTx(ctx, func(txCtx context.Context) error {
		p, err := s.PaymentRepo.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		previous = p.PaymentStatus
		updated = p

		if p.PaymentStatus.IsTerminal() {
			closed := p.PaymentStatus == types.PaymentStatusExpired || p.PaymentStatus == types.PaymentStatusFailed
			if closed && update.Status == types.PaymentStatusSuccess {
				log.Errorw("provider reports success for a payment closed locally, reconcile manually",
					"payment_id", p.ID,
					"order_id", p.OrderID,
					"provider", p.Provider,
					"provider_reference", update.ProviderReference,
					"payment_status", p.PaymentStatus,
					"amount", p.Amount,
					"currency", p.Currency,
				)
			}
			outcome = types.WebhookOutcomeReplayed
			return nil
		}
		if !update.Known() {
			log.Warnw("unknown provider status, payment unchanged",
				"payment_id", p.ID,
				"provider", p.Provider,
				"provider_status", update.ProviderStatus,
			)
			outcome = types.WebhookOutcomeIgnored
			return nil
		}

		now := time.Now()
		switch update.Status {
		case types.PaymentStatusSuccess:
			err = p.MarkSucceeded(update.Raw, now)
		case types.PaymentStatusFailed:
			err = p.MarkFailed(update.FailureCode, update.FailureMessage, update.Raw, now)
		case types.PaymentStatusExpired:
			err = p.MarkExpired(update.Raw, now)
		case types.PaymentStatusProcessing:
			if p.PaymentStatus != types.PaymentStatusPending {
				outcome = types.WebhookOutcomeIgnored
				return nil
			}
			err = p.StartProcessing()
			if err == nil && len(update.Raw) > 0 {
				p.ProviderResponse = update.Raw
			}
		default:
			outcome = types.WebhookOutcomeIgnored
			return nil
		}
		if err != nil {
			return err
		}

		p.Touch(txCtx)
		if err := s.PaymentRepo.Update(txCtx, p); err != nil {
			return err
		}
		outcome = types.WebhookOutcomeApplied
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	s.onStatusChanged(ctx, updated, previous)
	return updated, outcome, nil
}

func (s *paymentService) ExpireStalePayments(ctx context.Context, olderThan time.Duration) (int, error) {
	sysCtx := types.WithSystemScope(ctx, expirySweepCaller)
	log := s.Logger.WithContext(sysCtx)

	filter := types.NewPaymentFilter()
	filter.Limit = lo.ToPtr(expirySweepBatch)
	filter.Order = lo.ToPtr(types.OrderAsc)
	filter.PaymentStatus = []types.PaymentStatus{types.PaymentStatusPending, types.PaymentStatusProcessing}
	filter.CreatedBefore = lo.ToPtr(time.Now().Add(-olderThan))

	stale, err := s.PaymentRepo.List(sysCtx, filter)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	var expired atomic.Int64
	p := pool.New().WithMaxGoroutines(expirySweepConcurrency)
	for _, stalePayment := range stale {
		stalePayment := stalePayment
		p.Go(func() {
			tenantCtx := types.SetTenantID(sysCtx, stalePayment.TenantID)
			ok, err := s.expireOne(tenantCtx, stalePayment)
			if err != nil {
				log.Warnw("failed to expire stale payment",
					"payment_id", stalePayment.ID,
					"tenant_id", stalePayment.TenantID,
					"error", err,
				)
				return
			}
			if ok {
				expired.Add(1)
			}
		})
	}
	p.Wait()

	log.Infow("payment expiry sweep finished",
		"candidates", len(stale),
		"expired", expired.Load(),
	)
	return int(expired.Load()), nil
}

// expireOne asks the provider first so a payment completed at the provider
// is settled instead of expired. Providers offer no cancel call, so a payment
// still open at the provider is expired locally and logged with its reference.
func (s *paymentService) expireOne(ctx context.Context, p *payment.Payment) (bool, error) {
	if p.HasProviderReference() {
		update, err := s.pollProvider(ctx, p)
		if err != nil {
			return false, err
		}
		if update.Known() && update.Status.IsTerminal() {
			_, _, err := s.applyStatusUpdate(ctx, p.ID, update)
			return false, err
		}
		s.Logger.WithContext(ctx).Warnw("expiring payment still open at provider",
			"payment_id", p.ID,
			"order_id", p.OrderID,
			"provider", p.Provider,
			"provider_reference", lo.FromPtr(p.ProviderReference),
			"provider_status", update.ProviderStatus,
			"amount", p.Amount,
			"currency", p.Currency,
		)
	}

	expired := false
	_, err := s.mutate(ctx, p.ID, func(locked *payment.Payment, now time.Time) error {
		if locked.PaymentStatus.IsTerminal() {
			return nil
		}
		expired = true
		return locked.MarkExpired(nil, now)
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}
