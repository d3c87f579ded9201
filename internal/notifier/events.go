package notifier

import (
	"encoding/json"
	"time"

	"github.com/counterpos/counterpos/internal/types"
)

// Topics published by the core
const (
	TopicOrderCreated         = "order.created"
	TopicOrderStatusChanged   = "order.status_changed"
	TopicOrderCompleted       = "order.completed"
	TopicPaymentStatusChanged = "payment.status_changed"
)

// Event is the envelope of every published message
type Event struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	TenantID   string          `json:"tenant_id"`
	UserID     string          `json:"user_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// OrderEvent is the payload of the order topics
type OrderEvent struct {
	TenantID    string            `json:"tenant_id"`
	OrderID     string            `json:"order_id"`
	OrderNumber int64             `json:"order_number"`
	PeriodKey   string            `json:"period_key"`
	OrderStatus types.OrderStatus `json:"order_status"`
	// PreviousStatus is set on status changes
	PreviousStatus types.OrderStatus `json:"previous_status,omitempty"`
	Total          int64             `json:"total"`
	Currency       string            `json:"currency"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// PaymentStatusChangedEvent is the payload of TopicPaymentStatusChanged
type PaymentStatusChangedEvent struct {
	TenantID       string                `json:"tenant_id"`
	PaymentID      string                `json:"payment_id"`
	OrderID        string                `json:"order_id"`
	Provider       types.PaymentProvider `json:"provider"`
	Amount         int64                 `json:"amount"`
	Currency       string                `json:"currency"`
	PreviousStatus types.PaymentStatus   `json:"previous_status"`
	PaymentStatus  types.PaymentStatus   `json:"payment_status"`
}
