// Package spool watches a directory for completed-chat files.
//
// Producers write a payload to a temporary name and rename it to *.json in
// the spool directory. Each accepted file is dispatched once and removed;
// files that fail to decode are renamed with a .rejected suffix.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/automem/pkg/intake"
)

const (
	// Ext marks files ready for pickup.
	Ext = ".json"

	// RejectedExt is appended to files that could not be decoded.
	RejectedExt = ".rejected"
)

// Config holds configuration for a Watcher.
type Config struct {
	Dir    string
	Logger *slog.Logger
}

// Watcher dispatches spool files to a handler.
type Watcher struct {
	dir     string
	handler intake.Handler
	logger  *slog.Logger
}

// New creates a Watcher, creating the spool directory if needed.
func New(c Config, h intake.Handler) (*Watcher, error) {
	if c.Dir == "" {
		return nil, errors.New("spool: directory is required")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating spool dir: %w", err)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{dir: c.Dir, handler: h, logger: logger}, nil
}

// Run drains files already present, then watches for new ones until ctx is
// done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating spool watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching spool dir: %w", err)
	}

	if err := w.Drain(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !ready(event.Name) {
				continue
			}
			w.process(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("spool watcher error: %w", err)
		}
	}
}

// Drain processes every ready file currently in the spool, oldest name
// first.
func (w *Watcher) Drain(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading spool dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !ready(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		w.process(ctx, filepath.Join(w.dir, name))
	}
	return nil
}

func (w *Watcher) process(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Create and Write both fire for one file; the first one consumes it.
		if !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("reading spool file", "path", path, "error", err)
		}
		return
	}

	ev, err := intake.Dispatch(ctx, w.handler, data)
	if err != nil {
		w.logger.Warn("rejecting spool file", "path", path, "error", err)
		if err := os.Rename(path, path+RejectedExt); err != nil {
			w.logger.Error("renaming rejected spool file", "path", path, "error", err)
		}
		return
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.logger.Error("removing spool file", "path", path, "error", err)
	}
	w.logger.Debug("completed chat received",
		"chat_id", ev.ChatID,
		"messages", len(ev.Messages),
	)
}

func ready(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, Ext) && !strings.HasPrefix(base, ".")
}
