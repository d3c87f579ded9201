// Package notifier broadcasts domain events after commit. Delivery is
// fire-and-forget: a failed publish is logged and never reaches the caller.
package notifier

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/pubsub"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/sourcegraph/conc"
)

const publishTimeout = 5 * time.Second

// Notifier publishes domain events
type Notifier interface {
	// Notify publishes payload on topic in the background
	Notify(ctx context.Context, topic string, payload any)
	// Close waits for in-flight publishes
	Close() error
}

type notifier struct {
	pubSub      pubsub.Publisher
	topicPrefix string
	logger      *logger.Logger
	wg          conc.WaitGroup
}

// New returns a Notifier publishing through pubSub
func New(pubSub pubsub.Publisher, topicPrefix string, logger *logger.Logger) Notifier {
	return &notifier{
		pubSub:      pubSub,
		topicPrefix: topicPrefix,
		logger:      logger,
	}
}

func (n *notifier) Notify(ctx context.Context, topic string, payload any) {
	event, err := NewEvent(ctx, topic, payload)
	if err != nil {
		n.logger.Errorw("failed to encode event", "topic", topic, "error", err)
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Errorw("failed to encode event", "topic", topic, "error", err)
		return
	}

	msg := message.NewMessage(event.ID, data)
	msg.Metadata.Set("tenant_id", event.TenantID)
	msg.Metadata.Set("topic", topic)

	// the request context ends with the response; publishing must outlive it
	pubCtx := context.WithoutCancel(ctx)
	n.wg.Go(func() {
		pubCtx, cancel := context.WithTimeout(pubCtx, publishTimeout)
		defer cancel()

		if err := n.pubSub.Publish(pubCtx, n.topicPrefix+topic, msg); err != nil {
			n.logger.Errorw("failed to publish event",
				"topic", topic,
				"event_id", event.ID,
				"tenant_id", event.TenantID,
				"error", err,
			)
			return
		}
		n.logger.Debugw("published event",
			"topic", topic,
			"event_id", event.ID,
			"tenant_id", event.TenantID,
		)
	})
}

func (n *notifier) Close() error {
	n.wg.Wait()
	return nil
}

// NewEvent wraps payload in an envelope stamped from ctx
func NewEvent(ctx context.Context, topic string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:         types.GenerateUUID(),
		Topic:      topic,
		TenantID:   types.GetTenantID(ctx),
		UserID:     types.GetUserID(ctx),
		OccurredAt: time.Now().UTC(),
		Payload:    data,
	}, nil
}

type noop struct{}

// NewNoop returns a Notifier that drops every event
func NewNoop() Notifier {
	return noop{}
}

func (noop) Notify(context.Context, string, any) {}

func (noop) Close() error { return nil }
