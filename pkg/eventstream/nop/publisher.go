package nop

import (
	"context"

	"github.com/papercomputeco/automem/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishMemories validates input and otherwise does nothing.
func (p *Publisher) PublishMemories(_ context.Context, event *eventstream.MemoriesSavedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
