// Package status carries user-visible progress notes back to the host UI.
package status

import (
	"context"
	"fmt"
	"sync"
)

// Event is a status notification in the host's wire shape:
//
//	{"type": "status", "data": {"description": "...", "done": true}}
type Event struct {
	Type string `json:"type"`
	Data Data   `json:"data"`
}

// Data is the payload of a status Event.
type Data struct {
	Description string `json:"description"`
	Done        bool   `json:"done"`
}

// New builds a finished status event.
func New(description string) Event {
	return Event{Type: "status", Data: Data{Description: description, Done: true}}
}

// Emitter delivers status events to the user.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// Func adapts a function to an Emitter.
type Func func(ctx context.Context, ev Event) error

// Emit implements Emitter.
func (f Func) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Collector is an Emitter that keeps every event, for HTTP responses and
// tests.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (c *Collector) Emit(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event{}, c.events...)
}

// Descriptions returns the collected descriptions in order.
func (c *Collector) Descriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Data.Description)
	}
	return out
}

const (
	// NothingSaved is reported when extraction found no facts.
	NothingSaved = "No new memories to save"
)

// Summary describes the outcome of saving total facts, of which saved made
// it to storage.
func Summary(saved, total int) string {
	switch {
	case total == 0:
		return NothingSaved
	case saved == total:
		return fmt.Sprintf("Saved %d %s", saved, memories(saved))
	default:
		return fmt.Sprintf("Saved %d of %d %s, some failed", saved, total, memories(total))
	}
}

func memories(n int) string {
	if n == 1 {
		return "memory"
	}
	return "memories"
}
