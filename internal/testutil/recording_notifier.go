package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/counterpos/counterpos/internal/notifier"
)

var _ notifier.Notifier = (*RecordingNotifier)(nil)

// RecordingNotifier captures events synchronously instead of publishing them
type RecordingNotifier struct {
	mu     sync.Mutex
	events []*notifier.Event
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(ctx context.Context, topic string, payload any) {
	event, err := notifier.NewEvent(ctx, topic, payload)
	if err != nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *RecordingNotifier) Close() error {
	return nil
}

// Events returns the events recorded for topic
func (n *RecordingNotifier) Events(topic string) []*notifier.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*notifier.Event, 0)
	for _, e := range n.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

// DecodePayloads unmarshals the payloads recorded for topic into T
func DecodePayloads[T any](n *RecordingNotifier, topic string) []T {
	events := n.Events(topic)
	out := make([]T, 0, len(events))
	for _, e := range events {
		var v T
		if err := json.Unmarshal(e.Payload, &v); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func (n *RecordingNotifier) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}
