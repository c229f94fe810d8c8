// Package vector provides the nearest-neighbour index behind the semantic
// memory API. Documents are memories partitioned by user; every query is
// scoped to one user.
package vector

import "context"

// Document is one indexed memory.
type Document struct {
	// ID is the memory record id.
	ID string

	// UserID scopes the document; queries never cross users.
	UserID string

	// Content is the memory text.
	Content string

	// Embedding is the vector representation of Content.
	Embedding []float32
}

// QueryResult is a search hit.
type QueryResult struct {
	Document

	// Distance is the cosine distance to the query (lower = more similar).
	Distance float32
}

// Driver handles storage and retrieval of memory embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK documents of userID nearest to embedding, ordered
	// by ascending distance.
	Query(ctx context.Context, userID string, embedding []float32, topK int) ([]QueryResult, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}
