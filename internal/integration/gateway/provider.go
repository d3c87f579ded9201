// Package gateway defines the contract every payment provider implements.
// The payment core only talks to providers through Provider and never
// branches on a provider code.
package gateway

import (
	"context"
	"net/http"

	"github.com/counterpos/counterpos/internal/types"
)

// Provider is a payment gateway integration
type Provider interface {
	// Code identifies the provider in payments and webhook routes
	Code() types.PaymentProvider

	// InitiatePayment starts a payment at the provider. It is called outside
	// any database lock with a bounded context.
	InitiatePayment(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)

	// CheckStatus polls the provider for the current state of a payment
	CheckStatus(ctx context.Context, providerReference string) (*StatusUpdate, error)

	// ProcessRefund refunds amount of a settled payment
	ProcessRefund(ctx context.Context, req *RefundRequest) (*RefundResult, error)

	// VerifyWebhook authenticates a callback. It must run before ParseWebhook.
	VerifyWebhook(headers http.Header, body []byte) error

	// ParseWebhook extracts the payment update from a verified callback
	ParseWebhook(body []byte) (*StatusUpdate, error)
}

// InitiateRequest carries everything a provider may need to start a payment
type InitiateRequest struct {
	PaymentID      string
	OrderID        string
	TenantID       string
	Amount         int64
	Currency       string
	IdempotencyKey string
	CustomerPhone  string
	CallbackURL    string
	RedirectURL    string
	Description    string
}

// InitiateResult is the provider's answer to an initiation
type InitiateResult struct {
	ProviderReference string
	// Status is PENDING, PROCESSING or SUCCESS. Rejections are returned as
	// a non-temporary *ProviderError instead.
	Status      types.PaymentStatus
	CheckoutURL string
	Raw         types.RawJSON
}

// StatusUpdate is a provider-reported payment state from a webhook or a poll
type StatusUpdate struct {
	ProviderReference string
	// ProviderStatus is the provider's own status string, kept for logs
	ProviderStatus string
	// Status is the mapped status, empty when the provider status is unknown
	Status         types.PaymentStatus
	FailureCode    string
	FailureMessage string
	// EventID identifies the webhook delivery when the provider sends one
	EventID string
	Raw     types.RawJSON
}

// Known reports whether the provider status mapped to one of ours
func (u *StatusUpdate) Known() bool {
	return u != nil && u.Status != ""
}

type RefundRequest struct {
	PaymentID         string
	ProviderReference string
	Amount            int64
	Currency          string
	// IdempotencyKey makes a retried refund call safe at the provider
	IdempotencyKey string
}

type RefundResult struct {
	RefundReference string
	Raw             types.RawJSON
}
