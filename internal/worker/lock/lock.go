// Package lock implements the named mutual-exclusion lock that keeps cron runs from overlapping.
//
// A Manager only has to support four operations on a named resource: try to take it, tell
// whether the current holder is older than a threshold, drop it regardless of holder, and drop
// it if the caller holds it. Acquire layers the stale-lock recovery policy on top.
package lock

import (
	"context"
	"fmt"
	"time"
)

// DefaultStaleAfter is the age after which a held lock is considered abandoned
const DefaultStaleAfter = time.Hour

// Result is the outcome of a single TryAcquire call
type Result int

const (
	// Acquired means the caller now holds the lock
	Acquired Result = iota
	// AlreadyLocked means somebody else holds the lock
	AlreadyLocked
)

func (r Result) String() string {
	switch r {
	case Acquired:
		return "acquired"
	case AlreadyLocked:
		return "already_locked"
	default:
		return "unknown"
	}
}

// Manager is a mutex-capable store for named locks
type Manager interface {
	// TryAcquire takes the lock without waiting
	TryAcquire(ctx context.Context, id string) (Result, error)

	// IsStale reports whether the lock resource was last modified at least maxAge ago.
	// A missing resource is stale.
	IsStale(ctx context.Context, id string, maxAge time.Duration) (bool, error)

	// ForceRelease drops the lock whoever holds it
	ForceRelease(ctx context.Context, id string) error

	// Release drops the lock if this manager holds it. Releasing twice is not an error.
	Release(ctx context.Context, id string) error
}

// Outcome is the result of the Acquire policy
type Outcome int

const (
	// OutcomeAcquired means the lock was free and is now held
	OutcomeAcquired Outcome = iota
	// OutcomeRecovered means a stale lock was force-released and the lock is now held
	OutcomeRecovered
	// OutcomeAlreadyRunning means a live holder exists; the caller must skip its run
	OutcomeAlreadyRunning
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcquired:
		return "acquired"
	case OutcomeRecovered:
		return "recovered"
	case OutcomeAlreadyRunning:
		return "already_running"
	default:
		return "unknown"
	}
}

// Held reports whether the caller holds the lock after Acquire
func (o Outcome) Held() bool {
	return o == OutcomeAcquired || o == OutcomeRecovered
}

// Acquire takes the lock, force-releasing it first when the current holder is stale.
// Losing the race after a force release is reported as OutcomeAlreadyRunning.
func Acquire(ctx context.Context, m Manager, id string, maxAge time.Duration) (Outcome, error) {
	if maxAge <= 0 {
		maxAge = DefaultStaleAfter
	}

	result, err := m.TryAcquire(ctx, id)
	if err != nil {
		return OutcomeAlreadyRunning, fmt.Errorf("failed to acquire lock %q: %w", id, err)
	}
	if result == Acquired {
		return OutcomeAcquired, nil
	}

	stale, err := m.IsStale(ctx, id, maxAge)
	if err != nil {
		return OutcomeAlreadyRunning, fmt.Errorf("failed to check lock %q age: %w", id, err)
	}
	if !stale {
		return OutcomeAlreadyRunning, nil
	}

	if err := m.ForceRelease(ctx, id); err != nil {
		return OutcomeAlreadyRunning, fmt.Errorf("failed to force release lock %q: %w", id, err)
	}

	result, err = m.TryAcquire(ctx, id)
	if err != nil {
		return OutcomeAlreadyRunning, fmt.Errorf("failed to acquire lock %q: %w", id, err)
	}
	if result != Acquired {
		return OutcomeAlreadyRunning, nil
	}

	return OutcomeRecovered, nil
}
