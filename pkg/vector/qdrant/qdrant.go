// Package qdrant provides a vector driver backed by a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/automem/pkg/vector"
)

const (
	// DefaultCollection is the collection memories are stored in.
	DefaultCollection = "automem_memories"

	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	payloadUserID  = "user_id"
	payloadContent = "content"
)

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is "host", "host:port" or a URL such as "https://host:6334".
	Target string

	APIKey string

	Collection string

	// Dimensions must match the embedding model.
	Dimensions uint64

	Logger *slog.Logger
}

// Driver implements vector.Driver on Qdrant. Points use the memory id as
// their UUID and carry user_id and content in the payload.
type Driver struct {
	client     *qdrant.Client
	collection string
	dimensions uint64
	logger     *slog.Logger
}

var _ vector.Driver = (*Driver)(nil)

// ParseTarget splits a target into host, port and whether TLS is wanted.
func ParseTarget(target string) (host string, port int, useTLS bool, err error) {
	if target == "" {
		return "", 0, false, fmt.Errorf("qdrant target is required")
	}

	if u, perr := url.Parse(target); perr == nil && u.Scheme != "" && u.Host != "" {
		useTLS = u.Scheme == "https"
		target = u.Host
	}

	host, portStr, splitErr := net.SplitHostPort(target)
	if splitErr != nil {
		return target, DefaultPort, useTLS, nil
	}

	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, useTLS, nil
}

// New connects to Qdrant and creates the collection when missing.
func New(ctx context.Context, c Config) (*Driver, error) {
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host, port, useTLS, err := ParseTarget(c.Target)
	if err != nil {
		return nil, err
	}

	collection := c.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	d := &Driver{
		client:     client,
		collection: collection,
		dimensions: c.Dimensions,
		logger:     logger,
	}

	if err := d.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("qdrant vector driver initialized",
		"host", host,
		"port", port,
		"collection", collection,
		"dimensions", c.Dimensions,
	)
	return d, nil
}

func (d *Driver) ensureCollection(ctx context.Context) error {
	exists, err := d.client.CollectionExists(ctx, d.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection: %w", vector.ErrConnection, err)
	}
	if exists {
		return nil
	}

	err = d.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: d.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     d.dimensions,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", d.collection, err)
	}

	_, err = d.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: d.collection,
		FieldName:      payloadUserID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("indexing %s: %w", payloadUserID, err)
	}
	return nil
}

func (d *Driver) checkDimensions(v []float32) error {
	if uint64(len(v)) != d.dimensions {
		return fmt.Errorf("%w: got %d, index has %d", vector.ErrDimensions, len(v), d.dimensions)
	}
	return nil
}

// Add upserts documents as points.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		if err := d.checkDimensions(doc.Embedding); err != nil {
			return fmt.Errorf("doc %s: %w", doc.ID, err)
		}
		points = append(points, toPoint(doc))
	}

	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant", "count", len(docs))
	return nil
}

// Query finds the topK points of userID nearest to embedding.
func (d *Driver) Query(ctx context.Context, userID string, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	if err := d.checkDimensions(embedding); err != nil {
		return nil, err
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadUserID, userID)},
		},
		Limit:       qdrant.PtrOf(uint64(topK)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := toResults(points)
	d.logger.Debug("queried qdrant", "results", len(results))
	return results, nil
}

// Delete removes points by memory id.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewID(id))
	}

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	d.logger.Debug("deleted documents from qdrant", "count", len(ids))
	return nil
}

// Close releases the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

func toPoint(doc vector.Document) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewID(doc.ID),
		Vectors: qdrant.NewVectors(doc.Embedding...),
		Payload: qdrant.NewValueMap(map[string]any{
			payloadUserID:  doc.UserID,
			payloadContent: doc.Content,
		}),
	}
}

// toResults converts scored points into results. Qdrant reports cosine
// similarity, so distance is 1 - score.
func toResults(points []*qdrant.ScoredPoint) []vector.QueryResult {
	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:      p.GetId().GetUuid(),
				UserID:  payload[payloadUserID].GetStringValue(),
				Content: payload[payloadContent].GetStringValue(),
			},
			Distance: 1 - p.GetScore(),
		})
	}
	return results
}
