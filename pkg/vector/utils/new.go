// Package vectorutils builds vector drivers from configuration.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/automem/pkg/vector"
	"github.com/papercomputeco/automem/pkg/vector/qdrant"
	"github.com/papercomputeco/automem/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	// ProviderType is "sqlite" or "qdrant".
	ProviderType string

	// Target is a database path for sqlite, or a host/URL for qdrant.
	Target string

	APIKey     string
	Dimensions uint
	Logger     *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "sqlite", "sqlite-vec":
		return sqlitevec.New(ctx, sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
			Logger:     o.Logger,
		})
	case "qdrant":
		return qdrant.New(ctx, qdrant.Config{
			Target:     o.Target,
			APIKey:     o.APIKey,
			Dimensions: uint64(o.Dimensions),
			Logger:     o.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
