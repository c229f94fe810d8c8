// Package pipeline is the entry point hosts call after every assistant turn.
//
// An outlet event is classified once. Live turns are extracted, validated and
// routed to storage inline, with a status note for the user. Completed
// conversations without session context are handed to the worker pool, which
// resolves the chat owner and stores through the direct driver. Nothing that
// goes wrong in either path reaches the host.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/papercomputeco/automem/pkg/eventstream"
	"github.com/papercomputeco/automem/pkg/facts"
	"github.com/papercomputeco/automem/pkg/llm"
	"github.com/papercomputeco/automem/pkg/memory"
	"github.com/papercomputeco/automem/pkg/status"
	"github.com/papercomputeco/automem/pkg/utils"
	"github.com/papercomputeco/automem/pkg/worker"
)

// DefaultBackgroundDelay gives the host time to persist the chat row before
// the owner lookup.
const DefaultBackgroundDelay = time.Second

// FactExtractor returns raw model output for one user turn.
type FactExtractor interface {
	Extract(ctx context.Context, text string) string
}

// Router saves a batch of facts for an owner.
type Router interface {
	Route(ctx context.Context, facts []string, owner memory.Owner) memory.Result
}

// OwnerResolver maps a chat id to its user id.
type OwnerResolver interface {
	Resolve(ctx context.Context, chatID string) (userID string, found bool, err error)
}

// Spawner runs background jobs. *worker.Pool satisfies it.
type Spawner interface {
	Enqueue(job worker.Job) bool
}

// Config holds configuration for a Pipeline. Values are copied at
// construction.
type Config struct {
	// Enabled is the global switch.
	Enabled bool

	// AutoSave enables extraction on both paths.
	AutoSave bool

	// BackgroundDelay is waited before resolving a completed chat.
	BackgroundDelay time.Duration

	Extractor FactExtractor
	Router    Router

	// Resolver and Spawner are required for the background path. Without
	// them completed chats are logged and skipped.
	Resolver OwnerResolver
	Spawner  Spawner

	// Publisher is optional.
	Publisher eventstream.Publisher

	Logger *slog.Logger
}

// Pipeline dispatches outlet events.
type Pipeline struct {
	enabled   bool
	autoSave  bool
	delay     time.Duration
	extractor FactExtractor
	router    Router
	resolver  OwnerResolver
	spawner   Spawner
	publisher eventstream.Publisher
	logger    *slog.Logger
}

// New creates a Pipeline.
func New(c Config) (*Pipeline, error) {
	if c.Extractor == nil {
		return nil, errors.New("pipeline: extractor is required")
	}
	if c.Router == nil {
		return nil, errors.New("pipeline: router is required")
	}

	delay := c.BackgroundDelay
	if delay < 0 {
		delay = 0
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		enabled:   c.Enabled,
		autoSave:  c.AutoSave,
		delay:     delay,
		extractor: c.Extractor,
		router:    c.Router,
		resolver:  c.Resolver,
		spawner:   c.Spawner,
		publisher: c.Publisher,
		logger:    logger,
	}, nil
}

// Inlet is the request-side hook. Memories are only written after a turn, so
// the event is returned as is.
func (p *Pipeline) Inlet(ev *Event) *Event {
	return ev
}

// Outlet processes an event after the assistant replied and always returns
// in.Event unmodified.
func (p *Pipeline) Outlet(ctx context.Context, in Inlet) *Event {
	if !p.enabled {
		return in.Event
	}

	switch Classify(in) {
	case PathBackground:
		p.spawnCompletedChat(in.Event)
	case PathLive:
		p.live(ctx, in)
	}
	return in.Event
}

func (p *Pipeline) live(ctx context.Context, in Inlet) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("live memory path panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	user := in.User
	valves := user.EffectiveValves()
	if !valves.Enabled || !p.autoSave {
		return
	}

	msgs := in.Event.Messages
	if len(msgs) < 2 {
		return
	}
	turn := msgs[len(msgs)-2]
	if !turn.IsUser() || strings.TrimSpace(turn.Content) == "" {
		return
	}

	owner := memory.Owner{UserID: user.ID, User: user, Session: in.Session}
	found, res := p.extractAndRoute(ctx, turn.Content, owner)
	if found != nil {
		p.publish(ctx, eventstream.PathLive, owner.ID(), in.Event.ChatID, found, res)
	}

	if !valves.ShowStatus || in.Emitter == nil {
		return
	}

	note := status.Summary(res.Saved, res.Total())
	if err := in.Emitter.Emit(ctx, status.New(note)); err != nil {
		p.logger.Debug("status notification failed", "error", err)
	}
}

// extractAndRoute runs extract, validate and route. A nil slice means the
// extractor found nothing storable.
func (p *Pipeline) extractAndRoute(ctx context.Context, text string, owner memory.Owner) ([]string, memory.Result) {
	raw := p.extractor.Extract(ctx, text)

	found, err := facts.Parse(raw)
	if err != nil {
		if !errors.Is(err, facts.ErrEmptyList) {
			p.logger.Warn("discarding extractor output",
				"user_id", utils.ShortID(owner.ID()),
				"raw", utils.Truncate(raw, 200),
				"error", err,
			)
		}
		return nil, memory.Result{}
	}

	res := p.router.Route(ctx, found, owner)
	p.logger.Info("memories processed",
		"user_id", utils.ShortID(owner.ID()),
		"saved", res.Saved,
		"failed", res.Failed,
	)
	return found, res
}

func (p *Pipeline) spawnCompletedChat(ev *Event) {
	if len(ev.Messages) == 0 {
		return
	}
	if p.spawner == nil || p.resolver == nil {
		p.logger.Warn("completed chat skipped, background processing not configured",
			"chat_id", ev.ChatID,
		)
		return
	}

	chatID := ev.ChatID
	msgs := append([]llm.Message(nil), ev.Messages...)

	p.spawner.Enqueue(worker.Job{
		Name: "completed-chat",
		Key:  chatID,
		Run: func(ctx context.Context) error {
			return p.ProcessCompletedChat(ctx, chatID, msgs)
		},
	})
}

// ProcessCompletedChat is the background path body: wait, resolve the chat
// owner, then store facts from the newest user turn through the direct
// driver. It emits no status.
func (p *Pipeline) ProcessCompletedChat(ctx context.Context, chatID string, msgs []llm.Message) error {
	if p.delay > 0 {
		t := time.NewTimer(p.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	if p.resolver == nil {
		return errors.New("no chat owner resolver configured")
	}

	userID, found, err := p.resolver.Resolve(ctx, chatID)
	if err != nil {
		return fmt.Errorf("resolve owner of chat %s: %w", chatID, err)
	}
	if !found {
		p.logger.Warn("chat owner not found, skipping", "chat_id", chatID)
		return nil
	}

	if !p.autoSave || len(msgs) < 2 {
		return nil
	}

	turn, ok := llm.LastUserMessage(msgs)
	if !ok || strings.TrimSpace(turn.Content) == "" {
		return nil
	}

	owner := memory.Owner{UserID: userID}
	extracted, res := p.extractAndRoute(ctx, turn.Content, owner)
	if extracted != nil {
		p.publish(ctx, eventstream.PathBackground, userID, chatID, extracted, res)
	}
	return nil
}

// Remember validates raw extractor output and stores it for owner. It backs
// manual saves from the CLI and MCP tools.
func (p *Pipeline) Remember(ctx context.Context, raw string, owner memory.Owner) (memory.Result, error) {
	found, err := facts.Parse(raw)
	if err != nil {
		return memory.Result{}, err
	}
	res := p.router.Route(ctx, found, owner)
	p.publish(ctx, eventstream.PathManual, owner.ID(), "", found, res)
	return res, nil
}

// Preview extracts and validates facts from text without storing them.
func (p *Pipeline) Preview(ctx context.Context, text string) ([]string, error) {
	return facts.Parse(p.extractor.Extract(ctx, text))
}

func (p *Pipeline) publish(ctx context.Context, path, userID, chatID string, found []string, res memory.Result) {
	if p.publisher == nil || res.Saved == 0 {
		return
	}
	ev := eventstream.NewMemoriesSavedEvent(path, userID, chatID, found, res.Saved, res.Failed)
	if err := p.publisher.PublishMemories(ctx, ev); err != nil {
		p.logger.Warn("failed to publish memories event",
			"path", path,
			"error", err,
		)
	}
}
