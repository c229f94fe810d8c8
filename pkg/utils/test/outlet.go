package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/automem/pkg/pipeline"
)

// MockOutlet records outlet calls and returns the event unchanged.
type MockOutlet struct {
	mu    sync.Mutex
	calls []pipeline.Inlet
}

func (m *MockOutlet) Outlet(_ context.Context, in pipeline.Inlet) *pipeline.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, in)
	return in.Event
}

// Calls returns a copy of the recorded calls.
func (m *MockOutlet) Calls() []pipeline.Inlet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pipeline.Inlet(nil), m.calls...)
}
