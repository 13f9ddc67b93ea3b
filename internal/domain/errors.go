package domain

import (
	"context"
	"errors"
)

var (
	// ErrValidation signals bad input. Fails fast, never retried, never triggers fallback.
	ErrValidation = errors.New("validation failed")
	// ErrNoteNotFound signals a missing note.
	ErrNoteNotFound = errors.New("note not found")
	// ErrNotInitialized signals an operation attempted before backend setup completed.
	ErrNotInitialized = errors.New("store not initialized")
	// ErrProvider signals an embedding provider failure (unreachable or rejected request).
	ErrProvider = errors.New("embedding provider error")
	// ErrConnectivity signals an unreachable store backend. Triggers the fallback
	// controller transition instead of surfacing to the caller.
	ErrConnectivity = errors.New("backend unreachable")
)

// IsConnectivity reports whether err is connectivity-class: a wrapped ErrConnectivity
// or a deadline expiry on an external call. Timeouts demote the same way outages do;
// validation and not-found errors never do.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnectivity) || errors.Is(err, context.DeadlineExceeded)
}
