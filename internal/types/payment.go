package types

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusProcessing        PaymentStatus = "PROCESSING"
	PaymentStatusSuccess           PaymentStatus = "SUCCESS"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusExpired           PaymentStatus = "EXPIRED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

func (s PaymentStatus) String() string {
	return string(s)
}

func (s PaymentStatus) Validate() error {
	allowed := []PaymentStatus{
		PaymentStatusPending,
		PaymentStatusProcessing,
		PaymentStatusSuccess,
		PaymentStatusFailed,
		PaymentStatusExpired,
		PaymentStatusRefunded,
		PaymentStatusPartiallyRefunded,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid payment status: %s", s)
	}
	return nil
}

// IsTerminal reports whether provider callbacks can no longer move the payment.
// SUCCESS still accepts an explicit refund.
func (s PaymentStatus) IsTerminal() bool {
	return lo.Contains([]PaymentStatus{
		PaymentStatusSuccess,
		PaymentStatusFailed,
		PaymentStatusExpired,
		PaymentStatusRefunded,
		PaymentStatusPartiallyRefunded,
	}, s)
}

// PaymentProvider identifies a payment gateway implementation
type PaymentProvider string

const (
	PaymentProviderCash        PaymentProvider = "cash"
	PaymentProviderMobileMoney PaymentProvider = "mobilemoney"
	PaymentProviderStripe      PaymentProvider = "stripe"
)

func (p PaymentProvider) String() string {
	return string(p)
}

func (p PaymentProvider) Validate() error {
	allowed := []PaymentProvider{
		PaymentProviderCash,
		PaymentProviderMobileMoney,
		PaymentProviderStripe,
	}
	if !lo.Contains(allowed, p) {
		return fmt.Errorf("invalid payment provider: %s", p)
	}
	return nil
}

// WebhookOutcome is the result of reconciling a provider callback
type WebhookOutcome string

const (
	// WebhookOutcomeApplied means the callback moved the payment to a new state
	WebhookOutcomeApplied WebhookOutcome = "applied"
	// WebhookOutcomeReplayed means the payment was already terminal
	WebhookOutcomeReplayed WebhookOutcome = "replayed"
	// WebhookOutcomeIgnored means the provider status was not actionable
	WebhookOutcomeIgnored WebhookOutcome = "ignored"
)

// PaymentFilter filters payment listings
type PaymentFilter struct {
	*QueryFilter
	OrderID       string          `json:"order_id,omitempty" form:"order_id"`
	PaymentStatus []PaymentStatus `json:"payment_status,omitempty" form:"payment_status"`
	Provider      PaymentProvider `json:"provider,omitempty" form:"provider"`
	// CreatedBefore selects payments created strictly before the time
	CreatedBefore *time.Time `json:"created_before,omitempty" form:"created_before"`
}

func NewPaymentFilter() *PaymentFilter {
	return &PaymentFilter{QueryFilter: NewDefaultQueryFilter()}
}

func (f *PaymentFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}
	for _, s := range f.PaymentStatus {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if f.Provider != "" {
		return f.Provider.Validate()
	}
	return nil
}
