// Package memory provides the storage layer for extracted facts.
//
// Facts are short, durable statements about a user distilled from a single
// chat turn. They are persisted through one of two [Driver] implementations:
// a rich driver that goes through a memory API with semantic dedup, and a
// direct driver that writes rows into the relational store. The [Router]
// picks one per batch from the [Capabilities] detected at startup and the
// handles available on the call.
//
// Drivers are pluggable via configuration:
//
//	[rich]
//	provider = "openwebui"   # or "semantic", or "" for direct only
package memory

import (
	"context"
	"encoding/json"
)

// Driver persists a single fact on behalf of an owner.
type Driver interface {
	// Save stores content for owner. A nil error means the fact is
	// considered saved, which includes facts skipped as duplicates.
	Save(ctx context.Context, owner Owner, content string) error

	// Name identifies the driver in logs.
	Name() string
}

// Querier finds memories semantically close to some content.
type Querier interface {
	Query(ctx context.Context, owner Owner, content string, k int) (*QueryResult, error)
}

// Adder inserts a memory through the rich memory API.
type Adder interface {
	Add(ctx context.Context, owner Owner, content string) error
}

// Record is a single persisted memory row.
type Record struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// UserValves are per-user switches set in the host UI.
type UserValves struct {
	ShowStatus bool `json:"show_status"`
	Enabled    bool `json:"enabled"`
}

// DefaultUserValves returns the valves applied when a user has none.
func DefaultUserValves() UserValves {
	return UserValves{ShowStatus: true, Enabled: true}
}

// UnmarshalJSON fills keys missing from data with the defaults.
func (v *UserValves) UnmarshalJSON(data []byte) error {
	type plain UserValves
	out := plain(DefaultUserValves())
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*v = UserValves(out)
	return nil
}

// User is the host's handle for the user driving a conversation.
type User struct {
	ID     string      `json:"id"`
	Name   string      `json:"name,omitempty"`
	Email  string      `json:"email,omitempty"`
	Role   string      `json:"role,omitempty"`
	Valves *UserValves `json:"valves,omitempty"`
}

// EffectiveValves returns the user's valves, or the defaults when unset.
func (u *User) EffectiveValves() UserValves {
	if u == nil || u.Valves == nil {
		return DefaultUserValves()
	}
	return *u.Valves
}

// Session is the request handle the rich memory API authenticates with.
type Session struct {
	ID    string `json:"id,omitempty"`
	Token string `json:"-"`
}

// Owner is who a batch of facts is saved for. UserID alone is enough for the
// direct driver; the rich driver needs the User and Session handles.
type Owner struct {
	UserID  string
	User    *User
	Session *Session
}

// ID returns the owning user id, preferring the explicit UserID.
func (o Owner) ID() string {
	if o.UserID != "" {
		return o.UserID
	}
	if o.User != nil {
		return o.User.ID
	}
	return ""
}

// QueryResult holds ranked candidates in column-major form: one row per
// query, each row holding up to k candidates.
type QueryResult struct {
	IDs       [][]string  `json:"ids"`
	Documents [][]string  `json:"documents"`
	Distances [][]float64 `json:"distances"`
}

// Nearest returns the smallest distance in the first row. ok is false when
// the row is missing or empty. A row whose length disagrees with the id row
// yields ErrMalformedQuery.
func (r *QueryResult) Nearest() (distance float64, ok bool, err error) {
	if r == nil || len(r.Distances) == 0 || len(r.Distances[0]) == 0 {
		return 0, false, nil
	}

	row := r.Distances[0]
	if len(r.IDs) > 0 && len(r.IDs[0]) != len(row) {
		return 0, false, ErrMalformedQuery
	}

	nearest := row[0]
	for _, d := range row[1:] {
		if d < nearest {
			nearest = d
		}
	}
	return nearest, true, nil
}
