package notifier

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/pubsub"
	pubsubRouter "github.com/counterpos/counterpos/internal/pubsub/router"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/sourcegraph/conc/pool"
)

// Sink consumes one kind of event, e.g. inventory deduction or customer
// notification. Sinks must be idempotent: delivery is at least once.
type Sink interface {
	Name() string
	Topics() []string
	Handle(ctx context.Context, event *Event) error
}

// Dispatcher subscribes to every topic a sink listens on and fans each event
// out to all interested sinks concurrently
type Dispatcher struct {
	pubSub      pubsub.Subscriber
	topicPrefix string
	sinks       []Sink
	logger      *logger.Logger
}

func NewDispatcher(pubSub pubsub.Subscriber, topicPrefix string, logger *logger.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		pubSub:      pubSub,
		topicPrefix: topicPrefix,
		sinks:       sinks,
		logger:      logger,
	}
}

// RegisterHandlers adds one router handler per subscribed topic
func (d *Dispatcher) RegisterHandlers(router *pubsubRouter.Router) {
	byTopic := make(map[string][]Sink)
	for _, s := range d.sinks {
		for _, topic := range s.Topics() {
			byTopic[topic] = append(byTopic[topic], s)
		}
	}

	for topic, sinks := range byTopic {
		sinks := sinks
		router.AddNoPublishHandler(
			"notifier_"+topic,
			d.topicPrefix+topic,
			d.pubSub,
			func(msg *message.Message) error {
				return d.dispatch(msg, sinks)
			},
		)
	}
}

func (d *Dispatcher) dispatch(msg *message.Message, sinks []Sink) error {
	var event Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		d.logger.Errorw("failed to decode event, dropping",
			"message_uuid", msg.UUID,
			"error", err,
		)
		return nil
	}
	return d.Dispatch(msg.Context(), &event, sinks...)
}

// Dispatch runs every sink on event concurrently and returns their joined errors
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event, sinks ...Sink) error {
	ctx = types.SetTenantID(ctx, event.TenantID)
	if event.UserID != "" {
		ctx = types.SetUserID(ctx, event.UserID)
	}

	p := pool.New().WithErrors().WithContext(ctx)
	for _, s := range sinks {
		s := s
		p.Go(func(ctx context.Context) error {
			if err := s.Handle(ctx, event); err != nil {
				d.logger.Errorw("event sink failed",
					"sink", s.Name(),
					"topic", event.Topic,
					"event_id", event.ID,
					"tenant_id", event.TenantID,
					"error", err,
				)
				return err
			}
			return nil
		})
	}
	return p.Wait()
}
