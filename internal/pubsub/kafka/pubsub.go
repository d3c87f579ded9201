package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/counterpos/counterpos/internal/config"
	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/pubsub"
)

type PubSub struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *logger.Logger
}

// NewPubSub creates a new kafka-based pubsub
func NewPubSub(cfg *config.Configuration, logger *logger.Logger) (pubsub.PubSub, error) {
	saramaConfig := newSaramaConfig(cfg)
	wmLogger := logger.Watermill()

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.Kafka.Brokers,
			Marshaler:             kafka.NewWithPartitioningMarshaler(partitionKey),
			OverwriteSaramaConfig: saramaConfig,
		},
		wmLogger,
	)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to Kafka").
			Mark(ierr.ErrSystem)
	}

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               cfg.Kafka.Brokers,
			ConsumerGroup:         cfg.Kafka.ConsumerGroup,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaConfig,
		},
		wmLogger,
	)
	if err != nil {
		_ = publisher.Close()
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to Kafka").
			Mark(ierr.ErrSystem)
	}

	return &PubSub{
		publisher:  publisher,
		subscriber: subscriber,
		logger:     logger,
	}, nil
}

// partitionKey keys messages by tenant
func partitionKey(topic string, msg *message.Message) (string, error) {
	return msg.Metadata.Get("tenant_id"), nil
}

func (p *PubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	return p.publisher.Publish(topic, msg)
}

func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.subscriber.Subscribe(ctx, topic)
}

func (p *PubSub) Close() error {
	if err := p.publisher.Close(); err != nil {
		p.logger.Errorw("failed to close kafka publisher", "error", err)
	}
	return p.subscriber.Close()
}
