// Package resolver maps a chat id to the user that owns it, using the
// host's chat table.
package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/papercomputeco/automem/pkg/storage"
)

const selectChatOwner = `SELECT user_id FROM chat WHERE id = ?`

// ErrLookup wraps store failures during resolution.
var ErrLookup = errors.New("chat owner lookup failed")

// Resolver looks up chat owners. Every lookup opens its own connection.
type Resolver struct {
	location string
}

// New creates a Resolver for the store at location.
func New(location string) *Resolver {
	return &Resolver{location: location}
}

// Resolve returns the owning user id. found is false, with a nil error, when
// the chat does not exist or has no owner.
func (r *Resolver) Resolve(ctx context.Context, chatID string) (userID string, found bool, err error) {
	if chatID == "" {
		return "", false, nil
	}

	db, err := storage.Open(ctx, r.location)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", ErrLookup, err)
	}
	defer db.Close()

	var owner sql.NullString
	err = db.QueryRowContext(ctx, db.Rebind(selectChatOwner), chatID).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("%w: %w", ErrLookup, storage.Classify(err))
	}

	if !owner.Valid || owner.String == "" {
		return "", false, nil
	}
	return owner.String, true, nil
}
