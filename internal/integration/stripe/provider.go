// Package stripe collects card payments through Stripe PaymentIntents
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/counterpos/counterpos/internal/config"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/integration/gateway"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const providerName = "stripe"

// Webhook event types we act on
const (
	EventPaymentIntentSucceeded  = "payment_intent.succeeded"
	EventPaymentIntentFailed     = "payment_intent.payment_failed"
	EventPaymentIntentCanceled   = "payment_intent.canceled"
	EventPaymentIntentProcessing = "payment_intent.processing"
)

type Provider struct {
	client        *stripe.Client
	webhookSecret string
	logger        *logger.Logger
}

var _ gateway.Provider = (*Provider)(nil)

func NewProvider(cfg config.StripeConfig, logger *logger.Logger) *Provider {
	return NewProviderWithClient(stripe.NewClient(cfg.SecretKey, nil), cfg.WebhookSecret, logger)
}

// NewProviderWithClient uses an existing client, e.g. one pointed at a mock backend
func NewProviderWithClient(client *stripe.Client, webhookSecret string, logger *logger.Logger) *Provider {
	return &Provider{
		client:        client,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

func (p *Provider) Code() types.PaymentProvider {
	return types.PaymentProviderStripe
}

// InitiatePayment creates a PaymentIntent. The card is confirmed client side
// with the returned client secret, so the payment stays pending here.
func (p *Provider) InitiatePayment(ctx context.Context, req *gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: lo.EmptyableToPtr(req.Description),
		Metadata: map[string]string{
			"payment_id": req.PaymentID,
			"order_id":   req.OrderID,
			"tenant_id":  req.TenantID,
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	intent, err := p.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		p.logger.Errorw("failed to create Stripe payment intent",
			"error", err,
			"payment_id", req.PaymentID,
		)
		return nil, p.mapError(err)
	}

	update := fromPaymentIntent(intent)
	if update.Status == types.PaymentStatusFailed {
		return nil, gateway.NewRejection(providerName, update.FailureCode, update.FailureMessage)
	}

	return &gateway.InitiateResult{
		ProviderReference: intent.ID,
		Status:            lo.Ternary(update.Known(), update.Status, types.PaymentStatusPending),
		Raw:               types.ToRawJSON(intent),
	}, nil
}

func (p *Provider) CheckStatus(ctx context.Context, providerReference string) (*gateway.StatusUpdate, error) {
	intent, err := p.client.V1PaymentIntents.Retrieve(ctx, providerReference, nil)
	if err != nil {
		p.logger.Errorw("failed to get Stripe payment intent",
			"error", err,
			"payment_intent_id", providerReference,
		)
		return nil, p.mapError(err)
	}
	return fromPaymentIntent(intent), nil
}

func (p *Provider) ProcessRefund(ctx context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	params := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(req.ProviderReference),
		Amount:        stripe.Int64(req.Amount),
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	refund, err := p.client.V1Refunds.Create(ctx, params)
	if err != nil {
		p.logger.Errorw("failed to create Stripe refund",
			"error", err,
			"payment_intent_id", req.ProviderReference,
		)
		return nil, p.mapError(err)
	}
	if refund.Status == stripe.RefundStatusFailed || refund.Status == stripe.RefundStatusCanceled {
		return nil, gateway.NewRejection(providerName, string(refund.Status), "refund was not accepted")
	}
	return &gateway.RefundResult{
		RefundReference: refund.ID,
		Raw:             types.ToRawJSON(refund),
	}, nil
}

// VerifyWebhook checks the Stripe-Signature header, ignoring API version mismatch
func (p *Provider) VerifyWebhook(headers http.Header, body []byte) error {
	options := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	if _, err := webhook.ConstructEventWithOptions(body, headers.Get("Stripe-Signature"), p.webhookSecret, options); err != nil {
		p.logger.Warnw("Stripe webhook verification failed", "error", err)
		return ierr.WithError(err).
			WithHint("Invalid webhook signature or payload").
			Mark(ierr.ErrWebhookVerification)
	}
	return nil
}

func (p *Provider) ParseWebhook(body []byte) (*gateway.StatusUpdate, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid webhook payload").
			Mark(ierr.ErrValidation)
	}

	if !strings.HasPrefix(string(event.Type), "payment_intent.") || event.Data == nil {
		return &gateway.StatusUpdate{
			ProviderStatus: string(event.Type),
			EventID:        event.ID,
			Raw:            types.ToRawJSON(body),
		}, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Invalid payment intent in webhook").
			Mark(ierr.ErrValidation)
	}

	update := fromPaymentIntent(&intent)
	update.ProviderStatus = string(event.Type)
	update.Status = mapEventType(string(event.Type))
	update.EventID = event.ID
	update.Raw = types.ToRawJSON(body)
	return update, nil
}

func mapEventType(eventType string) types.PaymentStatus {
	switch eventType {
	case EventPaymentIntentSucceeded:
		return types.PaymentStatusSuccess
	case EventPaymentIntentFailed:
		return types.PaymentStatusFailed
	case EventPaymentIntentCanceled:
		return types.PaymentStatusExpired
	case EventPaymentIntentProcessing:
		return types.PaymentStatusProcessing
	default:
		return ""
	}
}

func fromPaymentIntent(intent *stripe.PaymentIntent) *gateway.StatusUpdate {
	update := &gateway.StatusUpdate{
		ProviderReference: intent.ID,
		ProviderStatus:    string(intent.Status),
		Raw:               types.ToRawJSON(intent),
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		update.Status = types.PaymentStatusSuccess
	case stripe.PaymentIntentStatusProcessing:
		update.Status = types.PaymentStatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		update.Status = types.PaymentStatusExpired
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// a failed attempt puts the intent back to requires_payment_method
		if intent.LastPaymentError != nil {
			update.Status = types.PaymentStatusFailed
		} else {
			update.Status = types.PaymentStatusPending
		}
	case stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresCapture:
		update.Status = types.PaymentStatusPending
	}
	if intent.LastPaymentError != nil {
		update.FailureCode = string(intent.LastPaymentError.Code)
		update.FailureMessage = intent.LastPaymentError.Msg
	}
	return update
}

// mapError separates card and request rejections from transient API failures
func (p *Provider) mapError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return gateway.NewTemporary(providerName, err)
	}
	if stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= 500 ||
		stripeErr.Type == stripe.ErrorTypeAPI {
		return gateway.NewTemporary(providerName, err)
	}
	return gateway.NewRejection(providerName, string(stripeErr.Code), stripeErr.Msg)
}
