package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/automem/pkg/utils"
)

// Result counts the outcome of routing a batch.
type Result struct {
	Saved  int
	Failed int
}

// OK reports whether every fact in the batch was saved.
func (r Result) OK() bool {
	return r.Failed == 0
}

// Total is the number of facts in the batch.
func (r Result) Total() int {
	return r.Saved + r.Failed
}

// RouterConfig holds configuration for a Router.
type RouterConfig struct {
	Caps Capabilities

	// Rich is used when Caps.Rich is set and the owner carries handles.
	Rich Driver

	// Direct is used when only a user id is known.
	Direct Driver

	Logger *slog.Logger
}

// Router chooses a storage driver per batch and saves each fact on its own.
type Router struct {
	caps   Capabilities
	rich   Driver
	direct Driver
	logger *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(c RouterConfig) *Router {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		caps:   c.Caps,
		rich:   c.Rich,
		direct: c.Direct,
		logger: logger,
	}
}

// Capabilities returns the descriptor the router was built with.
func (r *Router) Capabilities() Capabilities {
	return r.caps
}

// Select returns the driver that Route would use for owner.
func (r *Router) Select(owner Owner) (Driver, error) {
	if r.caps.Rich && r.rich != nil && owner.User != nil && owner.Session != nil {
		return r.rich, nil
	}
	if owner.ID() != "" && r.direct != nil {
		return r.direct, nil
	}
	return nil, ErrNoStorage
}

// Route saves every fact through one driver. A failure on one fact never
// stops the rest, and Saved + Failed always equals len(facts).
func (r *Router) Route(ctx context.Context, facts []string, owner Owner) Result {
	if len(facts) == 0 {
		return Result{}
	}

	driver, err := r.Select(owner)
	if err != nil {
		r.logger.Error("cannot save memories", "error", err, "facts", len(facts))
		return Result{Failed: len(facts)}
	}

	var res Result
	for i, fact := range facts {
		if err := r.save(ctx, driver, owner, fact); err != nil {
			res.Failed++
			r.logger.Error("failed to save memory",
				"driver", driver.Name(),
				"user_id", utils.ShortID(owner.ID()),
				"index", i,
				"error", err,
			)
			continue
		}
		res.Saved++
	}

	r.logger.Debug("routed memories",
		"driver", driver.Name(),
		"user_id", utils.ShortID(owner.ID()),
		"saved", res.Saved,
		"failed", res.Failed,
	)
	return res
}

func (r *Router) save(ctx context.Context, driver Driver, owner Owner, fact string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("driver %s panicked: %v", driver.Name(), p)
		}
	}()
	return driver.Save(ctx, owner, fact)
}
