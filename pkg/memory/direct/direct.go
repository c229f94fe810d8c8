// Package direct writes memories straight into the relational store's memory
// table. It is the fallback used when no rich memory API is reachable, for
// example from background jobs that only know a user id.
package direct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/automem/pkg/memory"
	"github.com/papercomputeco/automem/pkg/storage"
	"github.com/papercomputeco/automem/pkg/utils"
)

const insertMemory = `INSERT INTO memory (id, user_id, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`

const createMemoryTable = `CREATE TABLE IF NOT EXISTS memory (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`

const createChatTable = `CREATE TABLE IF NOT EXISTS chat (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT,
	created_at BIGINT,
	updated_at BIGINT
)`

const probeMemoryTable = `SELECT COUNT(*) FROM memory WHERE 1 = 0`

// Config holds configuration for a Store.
type Config struct {
	// Location is the store path or connection URI.
	Location string

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time

	// NewID overrides record id generation. Defaults to uuid v4.
	NewID func() string

	Logger *slog.Logger
}

// Store implements memory.Driver on the relational store. Every operation
// opens its own connection and closes it before returning.
type Store struct {
	location string
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

var _ memory.Driver = (*Store)(nil)

// New creates a Store.
func New(c Config) *Store {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	newID := c.NewID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		location: c.Location,
		now:      now,
		newID:    newID,
		logger:   logger,
	}
}

// Name implements memory.Driver.
func (s *Store) Name() string {
	return "direct"
}

// Save implements memory.Driver. A constraint violation means the row is
// already there, so it is logged and treated as saved.
func (s *Store) Save(ctx context.Context, owner memory.Owner, content string) error {
	_, err := s.Insert(ctx, owner.ID(), content)
	if errors.Is(err, storage.ErrConstraint) {
		s.logger.Warn("memory row already exists, skipping",
			"user_id", utils.ShortID(owner.ID()),
			"error", err,
		)
		return nil
	}
	return err
}

// Insert writes one memory row under a fresh id and returns it.
func (s *Store) Insert(ctx context.Context, userID, content string) (*memory.Record, error) {
	return s.InsertWithID(ctx, s.newID(), userID, content)
}

// InsertWithID writes one memory row under id, for callers that index the
// memory elsewhere first.
func (s *Store) InsertWithID(ctx context.Context, id, userID, content string) (*memory.Record, error) {
	if id == "" {
		return nil, errors.New("insert memory: empty id")
	}
	if userID == "" {
		return nil, errors.New("insert memory: empty user id")
	}
	if content == "" {
		return nil, errors.New("insert memory: empty content")
	}

	ts := s.now().Unix()
	rec := &memory.Record{
		ID:        id,
		UserID:    userID,
		Content:   content,
		CreatedAt: ts,
		UpdatedAt: ts,
	}

	if err := s.insert(ctx, rec); err != nil {
		err = storage.Classify(err)
		s.logFailure(userID, err)
		return nil, err
	}

	s.logger.Debug("inserted memory",
		"id", rec.ID,
		"user_id", utils.ShortID(userID),
	)
	return rec, nil
}

func (s *Store) insert(ctx context.Context, rec *memory.Record) error {
	db, err := storage.Open(ctx, s.location)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, db.Rebind(insertMemory),
		rec.ID, rec.UserID, rec.Content, rec.CreatedAt, rec.UpdatedAt,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert memory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit memory: %w", err)
	}
	return nil
}

func (s *Store) logFailure(userID string, err error) {
	switch {
	case errors.Is(err, storage.ErrConstraint):
		// logged by Save
	case errors.Is(err, storage.ErrOperational):
		s.logger.Error("memory store unavailable",
			"user_id", utils.ShortID(userID),
			"hint", storage.HintFor(err),
			"error", err,
		)
	default:
		s.logger.Error("failed to insert memory",
			"user_id", utils.ShortID(userID),
			"error", err,
		)
	}
}

// ProbeResult describes what a startup probe found.
type ProbeResult struct {
	Dialect     storage.Dialect
	MemoryTable bool
}

// Probe connects to the store and reports whether the memory table exists.
// A connection failure is returned as an error, and so is a missing SQLite
// file (matching storage.ErrNotFound), which Probe never creates. A missing
// table is not an error.
func (s *Store) Probe(ctx context.Context) (ProbeResult, error) {
	db, err := storage.Open(ctx, s.location)
	if err != nil {
		return ProbeResult{}, err
	}
	defer db.Close()

	res := ProbeResult{Dialect: db.Dialect()}

	var n int
	if err := db.QueryRowContext(ctx, probeMemoryTable).Scan(&n); err != nil {
		s.logger.Warn("memory table not found",
			"dialect", res.Dialect,
			"error", storage.Classify(err),
		)
		return res, nil
	}

	res.MemoryTable = true
	return res, nil
}

// Migrate creates the memory and chat tables when they do not exist, and the
// SQLite file itself if needed. It is meant for standalone deployments;
// against a host database the tables are already present and this is a no-op.
func (s *Store) Migrate(ctx context.Context) error {
	db, err := storage.Create(ctx, s.location)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, stmt := range []string{createMemoryTable, createChatTable} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", storage.Classify(err))
		}
	}
	return nil
}
