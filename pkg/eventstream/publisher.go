// Package eventstream publishes memory events to a stream backend so other
// services can react to new memories.
package eventstream

import "context"

// Publisher publishes memory events to an event stream backend.
type Publisher interface {
	PublishMemories(ctx context.Context, event *MemoriesSavedEvent) error
	Close() error
}
