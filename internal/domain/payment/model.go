package payment

import (
	"time"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
)

// Payment is one attempt to collect money for an order. It is the single
// source of truth for payment status and only changes through the transition
// methods below.
type Payment struct {
	// Unique identifier for this payment
	ID string `db:"id" json:"id"`
	// The order this payment settles
	OrderID string `db:"order_id" json:"order_id"`
	// Amount in minor units of Currency
	Amount int64 `db:"amount" json:"amount"`
	// Three-letter ISO currency code
	Currency      string              `db:"currency" json:"currency"`
	PaymentStatus types.PaymentStatus `db:"payment_status" json:"payment_status"`
	// Provider is the gateway that processes the payment
	Provider types.PaymentProvider `db:"provider" json:"provider"`
	// ProviderReference is the gateway's transaction id, set once known.
	// Webhooks are matched on it.
	ProviderReference *string `db:"provider_reference" json:"provider_reference,omitempty"`
	// IdempotencyKey deduplicates initiation retries within the tenant
	IdempotencyKey string `db:"idempotency_key" json:"idempotency_key"`
	// ProviderResponse is the last raw provider payload, kept for audit
	ProviderResponse types.RawJSON `db:"provider_response" json:"provider_response,omitempty"`
	// CheckoutURL is where the customer completes a redirect-based payment
	CheckoutURL    string     `db:"checkout_url" json:"checkout_url,omitempty"`
	CustomerPhone  string     `db:"customer_phone" json:"customer_phone,omitempty"`
	CallbackURL    string     `db:"callback_url" json:"callback_url,omitempty"`
	RedirectURL    string     `db:"redirect_url" json:"redirect_url,omitempty"`
	FailureCode    *string    `db:"failure_code" json:"failure_code,omitempty"`
	FailureMessage *string    `db:"failure_message" json:"failure_message,omitempty"`
	RefundedAmount int64      `db:"refunded_amount" json:"refunded_amount"`
	SucceededAt    *time.Time `db:"succeeded_at" json:"succeeded_at,omitempty"`
	FailedAt       *time.Time `db:"failed_at" json:"failed_at,omitempty"`
	ExpiredAt      *time.Time `db:"expired_at" json:"expired_at,omitempty"`
	RefundedAt     *time.Time `db:"refunded_at" json:"refunded_at,omitempty"`
	// RefundRequestedAt marks a refund sent to the provider and not yet recorded
	RefundRequestedAt *time.Time `db:"refund_requested_at" json:"refund_requested_at,omitempty"`

	types.BaseModel
}

var transitions = map[types.PaymentStatus][]types.PaymentStatus{
	types.PaymentStatusPending:    {types.PaymentStatusProcessing},
	types.PaymentStatusProcessing: {types.PaymentStatusSuccess, types.PaymentStatusFailed, types.PaymentStatusExpired},
	types.PaymentStatusSuccess:    {types.PaymentStatusRefunded, types.PaymentStatusPartiallyRefunded},
}

// CanTransition reports whether from may move to to
func CanTransition(from, to types.PaymentStatus) bool {
	return lo.Contains(transitions[from], to)
}

func (p *Payment) transition(to types.PaymentStatus) error {
	if !CanTransition(p.PaymentStatus, to) {
		return ierr.NewErrorf("cannot move payment from %s to %s", p.PaymentStatus, to).
			WithHintf("Payment is %s and cannot become %s", p.PaymentStatus, to).
			WithReportableDetails(map[string]any{
				"payment_id": p.ID,
				"from":       p.PaymentStatus,
				"to":         to,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	p.PaymentStatus = to
	return nil
}

// StartProcessing moves a pending payment to PROCESSING
func (p *Payment) StartProcessing() error {
	return p.transition(types.PaymentStatusProcessing)
}

// settle moves the payment to a terminal state. A payment still PENDING goes
// through PROCESSING first so that every terminal state has the same history.
func (p *Payment) settle(to types.PaymentStatus, raw types.RawJSON) error {
	if p.PaymentStatus == types.PaymentStatusPending {
		if err := p.StartProcessing(); err != nil {
			return err
		}
	}
	if err := p.transition(to); err != nil {
		return err
	}
	if len(raw) > 0 {
		p.ProviderResponse = raw
	}
	return nil
}

func (p *Payment) MarkSucceeded(raw types.RawJSON, now time.Time) error {
	if err := p.settle(types.PaymentStatusSuccess, raw); err != nil {
		return err
	}
	p.SucceededAt = lo.ToPtr(now.UTC())
	return nil
}

// MarkFailed records the provider's failure code and message verbatim
func (p *Payment) MarkFailed(code, message string, raw types.RawJSON, now time.Time) error {
	if err := p.settle(types.PaymentStatusFailed, raw); err != nil {
		return err
	}
	p.FailureCode = lo.EmptyableToPtr(code)
	p.FailureMessage = lo.EmptyableToPtr(message)
	p.FailedAt = lo.ToPtr(now.UTC())
	return nil
}

func (p *Payment) MarkExpired(raw types.RawJSON, now time.Time) error {
	if err := p.settle(types.PaymentStatusExpired, raw); err != nil {
		return err
	}
	p.ExpiredAt = lo.ToPtr(now.UTC())
	return nil
}

// ApplyRefund records a refund the provider already accepted. Refunding the
// full amount yields REFUNDED, anything less PARTIALLY_REFUNDED.
func (p *Payment) ApplyRefund(amount int64, now time.Time) error {
	if err := p.ValidateRefund(amount); err != nil {
		return err
	}
	to := types.PaymentStatusPartiallyRefunded
	if amount == p.Amount {
		to = types.PaymentStatusRefunded
	}
	if err := p.transition(to); err != nil {
		return err
	}
	p.RefundedAmount = amount
	p.RefundedAt = lo.ToPtr(now.UTC())
	p.RefundRequestedAt = nil
	return nil
}

// ReserveRefund claims the payment's single refund before the provider is
// called. A reservation older than staleAfter belongs to a caller that never
// came back and may be taken over.
func (p *Payment) ReserveRefund(amount int64, now time.Time, staleAfter time.Duration) error {
	if err := p.ValidateRefund(amount); err != nil {
		return err
	}
	if p.RefundRequestedAt != nil && now.Sub(*p.RefundRequestedAt) < staleAfter {
		return ierr.NewErrorf("payment %s already has a refund in progress", p.ID).
			WithHint("A refund for this payment is already being processed").
			WithReportableDetails(map[string]any{
				"payment_id":          p.ID,
				"refund_requested_at": *p.RefundRequestedAt,
			}).
			Mark(ierr.ErrInvalidOperation)
	}
	p.RefundRequestedAt = lo.ToPtr(now.UTC())
	return nil
}

// ReleaseRefund drops the reservation after the provider rejected the refund
func (p *Payment) ReleaseRefund() {
	p.RefundRequestedAt = nil
}

// ValidateRefund checks a refund request before the provider is called
func (p *Payment) ValidateRefund(amount int64) error {
	if p.PaymentStatus != types.PaymentStatusSuccess {
		return ierr.NewErrorf("payment %s is %s", p.ID, p.PaymentStatus).
			WithHint("Only successful payments can be refunded").
			Mark(ierr.ErrInvalidOperation)
	}
	if amount <= 0 || amount > p.Amount {
		return ierr.NewErrorf("refund amount %d out of range", amount).
			WithHintf("Refund amount must be between 1 and %d", p.Amount).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SetProviderReference records the gateway transaction id. The reference is
// write-once: a different value for an already referenced payment is rejected.
func (p *Payment) SetProviderReference(reference string) error {
	if reference == "" {
		return nil
	}
	if p.ProviderReference != nil && *p.ProviderReference != reference {
		return ierr.NewErrorf("payment %s already has provider reference %s", p.ID, *p.ProviderReference).
			WithHint("Payment is already linked to a different provider transaction").
			Mark(ierr.ErrInvalidOperation)
	}
	p.ProviderReference = lo.ToPtr(reference)
	return nil
}

// HasProviderReference reports whether the gateway transaction id is known
func (p *Payment) HasProviderReference() bool {
	return p.ProviderReference != nil && *p.ProviderReference != ""
}

func (p *Payment) Validate() error {
	if p.Amount <= 0 {
		return ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	if len(p.Currency) != 3 {
		return ierr.NewError("invalid currency").
			WithHint("Currency must be a three letter ISO code").
			Mark(ierr.ErrValidation)
	}
	if p.OrderID == "" {
		return ierr.NewError("order id is required").
			WithHint("Payment must reference an order").
			Mark(ierr.ErrValidation)
	}
	if p.IdempotencyKey == "" {
		return ierr.NewError("idempotency key is required").
			WithHint("Idempotency key is required").
			Mark(ierr.ErrValidation)
	}
	if err := p.Provider.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Unknown payment provider").
			Mark(ierr.ErrValidation)
	}
	if err := p.PaymentStatus.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Unknown payment status").
			Mark(ierr.ErrValidation)
	}
	return nil
}
