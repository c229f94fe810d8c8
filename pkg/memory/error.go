package memory

import "errors"

var (
	// ErrNoStorage is reported when neither driver can serve an owner.
	ErrNoStorage = errors.New("no storage method available")

	// ErrMalformedQuery is returned when a query result is not the expected
	// shape.
	ErrMalformedQuery = errors.New("malformed memory query result")

	// ErrMissingHandles is returned by rich drivers called without the user
	// and session handles.
	ErrMissingHandles = errors.New("rich memory requires user and session")
)
