// Package sqlite opens SQLite databases through github.com/mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3" // register the SQLite driver as "sqlite3"
)

// DriverName is the database/sql driver name registered by go-sqlite3.
const DriverName = "sqlite3"

// BusyTimeoutMillis is how long a connection waits on a locked database.
const BusyTimeoutMillis = 5000

// ErrNotFound is returned by OpenExisting when the database file is missing.
var ErrNotFound = errors.New("database not found")

// DSN builds a go-sqlite3 data source name for path, adding a busy timeout
// unless one is already present.
func DSN(path string) string {
	if strings.Contains(path, "_busy_timeout") || path == ":memory:" {
		return path
	}
	return withParam(path, fmt.Sprintf("_busy_timeout=%d", BusyTimeoutMillis))
}

// ExistingDSN is DSN for a file that must already exist. go-sqlite3 only
// forwards mode to SQLite for "file:" URIs.
func ExistingDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	if !strings.Contains(path, "mode=") {
		path = withParam(path, "mode=rw")
	}
	return DSN(path)
}

func withParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

// FilePath strips URI decoration from a DSN, leaving the file path.
func FilePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

// Open opens the database at path, creating the file when it is missing, and
// verifies it can be reached. The path can be a file path or ":memory:".
func Open(ctx context.Context, path string) (*sql.DB, error) {
	return open(ctx, DSN(path))
}

// OpenExisting opens a database some other program owns. It never creates
// the file: a missing file yields ErrNotFound.
func OpenExisting(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if _, err := os.Stat(FilePath(path)); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, FilePath(path))
		}
	}
	return open(ctx, ExistingDSN(path))
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
