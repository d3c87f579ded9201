package memory

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/pubsub"
)

// outputBuffer is the per-subscriber channel size. A full buffer makes
// Publish block, which the notifier absorbs in its own goroutines.
const outputBuffer = 256

// PubSub delivers events inside the process. Events are lost on restart,
// which suits local runs and tests where sinks live next to the API.
type PubSub struct {
	channel *gochannel.GoChannel
}

var _ pubsub.PubSub = (*PubSub)(nil)

func NewPubSub(log *logger.Logger) pubsub.PubSub {
	return &PubSub{
		channel: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: outputBuffer},
			log.Watermill(),
		),
	}
}

func (p *PubSub) Publish(_ context.Context, topic string, msg *message.Message) error {
	return p.channel.Publish(topic, msg)
}

func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.channel.Subscribe(ctx, topic)
}

func (p *PubSub) Close() error {
	return p.channel.Close()
}
