// Package idgen generates the identifiers used to name overflow blobs.
package idgen

import "github.com/google/uuid"

// New returns a UUIDv7 value (time-ordered), or panics if generation fails.
// Time-ordering keeps overflow blobs enqueued close together sorting and
// paging contiguously during a janitor sweep.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns the string form of a fresh UUIDv7.
func NewString() string {
	return New().String()
}
