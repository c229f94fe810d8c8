package storage

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/automem/pkg/storage/sqlite"
)

var (
	// ErrConstraint is a uniqueness or integrity violation.
	ErrConstraint = errors.New("constraint violation")

	// ErrOperational covers stores that are busy, locked, read-only, full or
	// cannot be opened.
	ErrOperational = errors.New("store unavailable")

	// ErrNotFound is a SQLite database file that does not exist. Classified
	// errors carrying it also match ErrOperational.
	ErrNotFound = sqlite.ErrNotFound
)

// Error is a classified store error.
type Error struct {
	// Kind is ErrConstraint or ErrOperational.
	Kind error

	// Hint is a short operator-facing suggestion, possibly empty.
	Hint string

	Err error
}

func (e *Error) Error() string {
	if e.Hint == "" {
		return e.Kind.Error() + ": " + e.Err.Error()
	}
	return e.Kind.Error() + " (" + e.Hint + "): " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// HintFor returns the operator hint attached to err, if any.
func HintFor(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Hint
	}
	return ""
}

// Classify wraps err in an *Error when it is recognised as a constraint or
// operational failure, and returns it unchanged otherwise.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var already *Error
	if errors.As(err, &already) {
		return err
	}

	if errors.Is(err, ErrNotFound) {
		return &Error{Kind: ErrOperational, Hint: "database not found: check storage.database or set storage.migrate", Err: err}
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return classifySQLite(err, sqliteErr)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgres(err, pgErr)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return &Error{Kind: ErrOperational, Hint: "cannot reach postgres: check storage.database", Err: err}
	}

	return err
}

func classifySQLite(err error, se sqlite3.Error) error {
	switch se.Code {
	case sqlite3.ErrConstraint:
		return &Error{Kind: ErrConstraint, Err: err}
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return &Error{Kind: ErrOperational, Hint: "database is locked by another writer", Err: err}
	case sqlite3.ErrReadonly:
		return &Error{Kind: ErrOperational, Hint: "database is read-only: check file permissions", Err: err}
	case sqlite3.ErrFull:
		return &Error{Kind: ErrOperational, Hint: "disk is full", Err: err}
	case sqlite3.ErrCantOpen, sqlite3.ErrPerm, sqlite3.ErrNotADB:
		return &Error{Kind: ErrOperational, Hint: "cannot open database: check storage.database", Err: err}
	case sqlite3.ErrError:
		if strings.Contains(se.Error(), "no such table") {
			return &Error{Kind: ErrOperational, Hint: "table missing: point storage.database at the host database or set storage.migrate", Err: err}
		}
	}
	return err
}

func classifyPostgres(err error, pe *pgconn.PgError) error {
	switch {
	case strings.HasPrefix(pe.Code, "23"):
		return &Error{Kind: ErrConstraint, Err: err}
	case pe.Code == "42P01":
		return &Error{Kind: ErrOperational, Hint: "table missing: set storage.migrate or check the schema", Err: err}
	case pe.Code == "25006":
		return &Error{Kind: ErrOperational, Hint: "database is read-only", Err: err}
	case pe.Code == "53100":
		return &Error{Kind: ErrOperational, Hint: "disk is full", Err: err}
	case strings.HasPrefix(pe.Code, "08"), strings.HasPrefix(pe.Code, "53"), strings.HasPrefix(pe.Code, "57"):
		return &Error{Kind: ErrOperational, Hint: "postgres is unavailable", Err: err}
	}
	return err
}
