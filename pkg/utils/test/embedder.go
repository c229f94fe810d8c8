package testutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/automem/pkg/embeddings"
)

// MockEmbedder returns configured embeddings per text and a fixed vector for
// anything else.
type MockEmbedder struct {
	Embeddings map[string][]float32

	// Default is returned for unknown text.
	Default []float32

	// FailOn causes Embed to return an error when the input text matches.
	FailOn string

	Calls int
}

func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		Embeddings: make(map[string][]float32),
		Default:    []float32{0.1, 0.2, 0.3},
	}
}

func (m *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.Calls++
	if m.FailOn != "" && text == m.FailOn {
		return nil, fmt.Errorf("%w: mock failure for %q", embeddings.ErrEmbedding, text)
	}
	if emb, ok := m.Embeddings[text]; ok {
		return emb, nil
	}
	return m.Default, nil
}

func (m *MockEmbedder) Close() error {
	return nil
}
