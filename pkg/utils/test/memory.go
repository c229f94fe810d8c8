package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/automem/pkg/memory"
)

// ErrMock is returned by mocks configured to fail.
var ErrMock = errors.New("mock failure")

// SavedFact is one call recorded by MockMemoryDriver.
type SavedFact struct {
	Owner   memory.Owner
	Content string
}

// MockMemoryDriver is a test memory driver that records calls and fails on
// configured content.
type MockMemoryDriver struct {
	mu sync.Mutex

	name  string
	saved []SavedFact

	// FailOn causes Save to return ErrMock for matching content.
	FailOn map[string]bool

	// PanicOn causes Save to panic for matching content.
	PanicOn map[string]bool
}

// NewMockMemoryDriver creates a new mock memory driver.
func NewMockMemoryDriver(name string) *MockMemoryDriver {
	return &MockMemoryDriver{
		name:    name,
		FailOn:  make(map[string]bool),
		PanicOn: make(map[string]bool),
	}
}

func (m *MockMemoryDriver) Save(_ context.Context, owner memory.Owner, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PanicOn[content] {
		panic("mock panic for: " + content)
	}
	if m.FailOn[content] {
		return ErrMock
	}
	m.saved = append(m.saved, SavedFact{Owner: owner, Content: content})
	return nil
}

func (m *MockMemoryDriver) Name() string {
	return m.name
}

// Saved returns a copy of everything saved so far.
func (m *MockMemoryDriver) Saved() []SavedFact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SavedFact(nil), m.saved...)
}

// Contents returns the saved contents in call order.
func (m *MockMemoryDriver) Contents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.saved))
	for _, s := range m.saved {
		out = append(out, s.Content)
	}
	return out
}

// MockMemoryAPI implements memory.Querier and memory.Adder in memory.
type MockMemoryAPI struct {
	mu sync.Mutex

	// Results maps query content to the result returned for it. Content
	// without an entry gets an empty result.
	Results map[string]*memory.QueryResult

	// FailQuery causes Query to return ErrMock.
	FailQuery bool

	// FailAdd causes Add to return ErrMock.
	FailAdd bool

	Added   []string
	Queries []string
	Ks      []int
}

// NewMockMemoryAPI creates an empty memory API mock.
func NewMockMemoryAPI() *MockMemoryAPI {
	return &MockMemoryAPI{Results: make(map[string]*memory.QueryResult)}
}

func (m *MockMemoryAPI) Query(_ context.Context, _ memory.Owner, content string, k int) (*memory.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Queries = append(m.Queries, content)
	m.Ks = append(m.Ks, k)
	if m.FailQuery {
		return nil, ErrMock
	}
	if r, ok := m.Results[content]; ok {
		return r, nil
	}
	return &memory.QueryResult{}, nil
}

func (m *MockMemoryAPI) Add(_ context.Context, _ memory.Owner, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAdd {
		return ErrMock
	}
	m.Added = append(m.Added, content)
	return nil
}

// Distances builds a single-row query result with generated ids.
func Distances(ds ...float64) *memory.QueryResult {
	ids := make([]string, len(ds))
	docs := make([]string, len(ds))
	for i := range ds {
		ids[i] = "mem-" + string(rune('a'+i))
		docs[i] = "doc " + string(rune('a'+i))
	}
	return &memory.QueryResult{
		IDs:       [][]string{ids},
		Documents: [][]string{docs},
		Distances: [][]float64{ds},
	}
}
