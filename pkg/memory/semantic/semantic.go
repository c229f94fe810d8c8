// Package semantic is a self-hosted rich memory API: memories are embedded
// and indexed in a vector store so near duplicates can be found before
// inserting.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/papercomputeco/automem/pkg/embeddings"
	"github.com/papercomputeco/automem/pkg/memory"
	"github.com/papercomputeco/automem/pkg/utils"
	"github.com/papercomputeco/automem/pkg/vector"
)

// Recorder persists the memory row that a vector document points at.
// *direct.Store satisfies it.
type Recorder interface {
	InsertWithID(ctx context.Context, id, userID, content string) (*memory.Record, error)
}

// Config holds configuration for a Store.
type Config struct {
	Embedder embeddings.Embedder
	Vectors  vector.Driver

	// Recorder is optional. When set, every added memory is also written as
	// a row so both storage paths share one table.
	Recorder Recorder

	Logger *slog.Logger
}

// Store implements memory.Querier and memory.Adder.
type Store struct {
	embedder embeddings.Embedder
	vectors  vector.Driver
	recorder Recorder
	logger   *slog.Logger
}

var (
	_ memory.Querier = (*Store)(nil)
	_ memory.Adder   = (*Store)(nil)
)

// New creates a Store.
func New(c Config) (*Store, error) {
	if c.Embedder == nil {
		return nil, errors.New("semantic memory: embedder is required")
	}
	if c.Vectors == nil {
		return nil, errors.New("semantic memory: vector driver is required")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		embedder: c.Embedder,
		vectors:  c.Vectors,
		recorder: c.Recorder,
		logger:   logger,
	}, nil
}

// Query implements memory.Querier, returning a single row of candidates.
func (s *Store) Query(ctx context.Context, owner memory.Owner, content string, k int) (*memory.QueryResult, error) {
	userID := owner.ID()
	if userID == "" {
		return nil, memory.ErrMissingHandles
	}

	emb, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, err
	}

	hits, err := s.vectors.Query(ctx, userID, emb, k)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	ids := make([]string, 0, len(hits))
	docs := make([]string, 0, len(hits))
	dists := make([]float64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
		docs = append(docs, h.Content)
		dists = append(dists, float64(h.Distance))
	}

	return &memory.QueryResult{
		IDs:       [][]string{ids},
		Documents: [][]string{docs},
		Distances: [][]float64{dists},
	}, nil
}

// Add implements memory.Adder. The memory is indexed first and then
// recorded under the same id. When recording fails the vector is deleted
// again, so the index never points at a missing row.
func (s *Store) Add(ctx context.Context, owner memory.Owner, content string) error {
	userID := owner.ID()
	if userID == "" {
		return memory.ErrMissingHandles
	}

	emb, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return err
	}

	doc := vector.Document{
		ID:        uuid.New().String(),
		UserID:    userID,
		Content:   content,
		Embedding: emb,
	}
	if err := s.vectors.Add(ctx, []vector.Document{doc}); err != nil {
		return fmt.Errorf("index memory: %w", err)
	}

	if s.recorder == nil {
		return nil
	}

	if _, err := s.recorder.InsertWithID(ctx, doc.ID, userID, content); err != nil {
		if delErr := s.vectors.Delete(ctx, []string{doc.ID}); delErr != nil {
			s.logger.Error("memory indexed but not recorded, vector left behind",
				"id", doc.ID,
				"user_id", utils.ShortID(userID),
				"error", delErr,
			)
		}
		return fmt.Errorf("record memory: %w", err)
	}
	return nil
}
