package notifier

import (
	"context"
	"encoding/json"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/logger"
)

// InventorySink receives completed orders for stock deduction. Deduction
// rules live outside the core; this sink records the hand-off.
type InventorySink struct {
	logger *logger.Logger
}

func NewInventorySink(logger *logger.Logger) *InventorySink {
	return &InventorySink{logger: logger}
}

func (s *InventorySink) Name() string { return "inventory" }

func (s *InventorySink) Topics() []string {
	return []string{TopicOrderCompleted}
}

func (s *InventorySink) Handle(ctx context.Context, event *Event) error {
	var order OrderEvent
	if err := json.Unmarshal(event.Payload, &order); err != nil {
		return ierr.WithError(err).
			WithHint("Invalid order event").
			Mark(ierr.ErrValidation)
	}
	s.logger.WithContext(ctx).Infow("order handed to inventory",
		"order_id", order.OrderID,
		"order_number", order.OrderNumber,
		"event_id", event.ID,
	)
	return nil
}

// NotificationSink forwards order completion and payment outcomes to the
// customer notification channel
type NotificationSink struct {
	logger *logger.Logger
}

func NewNotificationSink(logger *logger.Logger) *NotificationSink {
	return &NotificationSink{logger: logger}
}

func (s *NotificationSink) Name() string { return "notification" }

func (s *NotificationSink) Topics() []string {
	return []string{TopicOrderCompleted, TopicPaymentStatusChanged}
}

func (s *NotificationSink) Handle(ctx context.Context, event *Event) error {
	log := s.logger.WithContext(ctx)
	switch event.Topic {
	case TopicOrderCompleted:
		var order OrderEvent
		if err := json.Unmarshal(event.Payload, &order); err != nil {
			return ierr.WithError(err).WithHint("Invalid order event").Mark(ierr.ErrValidation)
		}
		log.Infow("order ready notification queued",
			"order_id", order.OrderID,
			"order_number", order.OrderNumber,
		)
	case TopicPaymentStatusChanged:
		var payment PaymentStatusChangedEvent
		if err := json.Unmarshal(event.Payload, &payment); err != nil {
			return ierr.WithError(err).WithHint("Invalid payment event").Mark(ierr.ErrValidation)
		}
		log.Infow("payment notification queued",
			"payment_id", payment.PaymentID,
			"payment_status", payment.PaymentStatus,
		)
	}
	return nil
}
