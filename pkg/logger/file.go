package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// NewFile returns a JSON logger appending to path, creating the file and its
// directory when missing. Call closeFn when done with the logger.
func NewFile(path string, opts ...Option) (l *slog.Logger, closeFn func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	opts = append(opts, WithWriter(f), WithJSON(true), WithPretty(false))
	return New(opts...), f.Close, nil
}
