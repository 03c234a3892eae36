// Package replay defines the idempotency store used for webhook replay
// protection. The contract is three operations — reserve, commit, release —
// each atomic with respect to concurrent callers.
package replay

import (
	"context"
	"time"
)

// Status is the outcome of a reservation attempt.
type Status int

const (
	// Reserved means the key was free (or expired) and is now held.
	Reserved Status = iota
	// Duplicate means a live entry already holds the key.
	Duplicate
)

// String returns the lowercase status name.
func (s Status) String() string {
	if s == Duplicate {
		return "duplicate"
	}
	return "reserved"
}

// Store is the replay-protection backend. Reserve must decide atomically
// under contention: of N concurrent reservations for one key, exactly one
// observes Reserved.
type Store interface {
	// Reserve claims key for inFlightTTL, returning Duplicate when a live
	// entry already exists.
	Reserve(ctx context.Context, key string, inFlightTTL time.Duration) (Status, error)
	// Commit extends the reservation to the full ttl after a delivery was
	// processed.
	Commit(ctx context.Context, key string, ttl time.Duration) error
	// Release frees the key so a later delivery may be processed again.
	Release(ctx context.Context, key string) error
}
