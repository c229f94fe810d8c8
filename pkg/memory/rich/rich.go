// Package rich saves memories through a semantic memory API, skipping facts
// that are already close to something the user has stored.
package rich

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/automem/pkg/memory"
	"github.com/papercomputeco/automem/pkg/utils"
)

const (
	// DefaultRelatedN is how many neighbours a dedup query asks for.
	DefaultRelatedN = 5

	// DefaultRelatedDistance is the distance below which a neighbour counts
	// as the same memory.
	DefaultRelatedDistance = 0.75

	logPayloadLimit = 200
)

// Config holds configuration for an Adapter.
type Config struct {
	Adder memory.Adder

	// Querier is optional. Without it, or when Caps.Query is false, every
	// fact is inserted.
	Querier memory.Querier

	Caps memory.Capabilities

	// RelatedN is k for the dedup query.
	RelatedN int

	// RelatedDistance is the dedup threshold t.
	RelatedDistance float64

	Logger *slog.Logger
}

// Adapter implements memory.Driver on top of a rich memory API.
type Adapter struct {
	adder     memory.Adder
	querier   memory.Querier
	canQuery  bool
	k         int
	threshold float64
	logger    *slog.Logger
}

var _ memory.Driver = (*Adapter)(nil)

// New creates an Adapter.
func New(c Config) *Adapter {
	k := c.RelatedN
	if k <= 0 {
		k = DefaultRelatedN
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		adder:     c.Adder,
		querier:   c.Querier,
		canQuery:  c.Caps.Query && c.Querier != nil,
		k:         k,
		threshold: c.RelatedDistance,
		logger:    logger,
	}
}

// Name implements memory.Driver.
func (a *Adapter) Name() string {
	return "rich"
}

// Save implements memory.Driver. A fact whose nearest stored neighbour is
// closer than the threshold is skipped and reported as saved. Dedup query
// problems never block the insert.
func (a *Adapter) Save(ctx context.Context, owner memory.Owner, content string) error {
	if owner.User == nil || owner.Session == nil {
		return memory.ErrMissingHandles
	}
	if a.adder == nil {
		return fmt.Errorf("rich memory: no adder configured")
	}

	if a.canQuery && a.isDuplicate(ctx, owner, content) {
		a.logger.Debug("skipping near-duplicate memory",
			"user_id", utils.ShortID(owner.ID()),
			"content", utils.Truncate(content, logPayloadLimit),
		)
		return nil
	}

	if err := a.adder.Add(ctx, owner, content); err != nil {
		return fmt.Errorf("add memory: %w", err)
	}
	return nil
}

func (a *Adapter) isDuplicate(ctx context.Context, owner memory.Owner, content string) bool {
	res, err := a.querier.Query(ctx, owner, content, a.k)
	if err != nil {
		a.logger.Warn("related memory query failed, inserting anyway",
			"user_id", utils.ShortID(owner.ID()),
			"content", utils.Truncate(content, logPayloadLimit),
			"error", err,
		)
		return false
	}

	nearest, ok, err := res.Nearest()
	if err != nil {
		a.logger.Warn("related memory result malformed, inserting anyway",
			"user_id", utils.ShortID(owner.ID()),
			"result", utils.Truncate(fmt.Sprintf("%+v", *res), logPayloadLimit),
			"error", err,
		)
		return false
	}
	if !ok {
		return false
	}

	return nearest < a.threshold
}
