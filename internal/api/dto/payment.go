package dto

import (
	"context"

	"github.com/counterpos/counterpos/internal/domain/payment"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/counterpos/counterpos/internal/validator"
)

// InitiatePaymentRequest starts a payment for an order through a provider
type InitiatePaymentRequest struct {
	OrderID  string                `json:"order_id" validate:"required"`
	Amount   int64                 `json:"amount" validate:"required,gt=0"`
	Currency string                `json:"currency" validate:"required,len=3"`
	Provider types.PaymentProvider `json:"provider" validate:"required"`
	// IdempotencyKey identifies the attempt; repeating it returns the same payment
	IdempotencyKey string `json:"idempotency_key" validate:"required,idempotency_key"`
	CustomerPhone  string `json:"customer_phone,omitempty" validate:"omitempty,e164"`
	CallbackURL    string `json:"callback_url,omitempty" validate:"omitempty,url"`
	RedirectURL    string `json:"redirect_url,omitempty" validate:"omitempty,url"`
}

func (r *InitiatePaymentRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	currency, err := types.NormalizeCurrency(r.Currency)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Currency must be a three letter ISO code").
			Mark(ierr.ErrValidation)
	}
	r.Currency = currency
	if err := r.Provider.Validate(); err != nil {
		return ierr.WithError(err).
			WithHintf("Unknown payment provider %s", r.Provider).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ToPayment builds the PENDING payment row for the request
func (r *InitiatePaymentRequest) ToPayment(ctx context.Context) *payment.Payment {
	return &payment.Payment{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		OrderID:        r.OrderID,
		Amount:         r.Amount,
		Currency:       r.Currency,
		PaymentStatus:  types.PaymentStatusPending,
		Provider:       r.Provider,
		IdempotencyKey: r.IdempotencyKey,
		CustomerPhone:  r.CustomerPhone,
		CallbackURL:    r.CallbackURL,
		RedirectURL:    r.RedirectURL,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
}

// RefundPaymentRequest refunds part or all of a successful payment
type RefundPaymentRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

func (r *RefundPaymentRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type PaymentResponse struct {
	*payment.Payment
}

func NewPaymentResponse(p *payment.Payment) *PaymentResponse {
	return &PaymentResponse{Payment: p}
}

type ListPaymentsResponse = types.ListResponse[*PaymentResponse]

// WebhookResponse acknowledges a provider callback
type WebhookResponse struct {
	PaymentID     string               `json:"payment_id"`
	PaymentStatus types.PaymentStatus  `json:"payment_status"`
	Outcome       types.WebhookOutcome `json:"outcome"`
}
