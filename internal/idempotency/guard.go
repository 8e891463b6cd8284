package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRateLimitExceeded indicates the user has too many in-flight order
// attempts inside the configured window.
var ErrRateLimitExceeded = errors.New("too many active order attempts")

// DuplicateOrderError indicates identical canonical request content was
// already completed under a different idempotency key. Unlike a FAILED
// token, this blocks retries under new keys for the same content.
type DuplicateOrderError struct {
	ExistingOrderID string
	ExistingToken   string
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("duplicate order content: already completed as order %s", e.ExistingOrderID)
}

// GuardConfig bounds order attempts per user. The threshold is
// deliberately configuration, not a literal in call sites.
type GuardConfig struct {
	Window    time.Duration // look-back window for active tokens
	MaxActive int           // attempts at/above this count are rejected
}

// Guard bounds concurrent attempts per user and catches clients that mint
// a fresh idempotency key for semantically the same order, which the
// token-level check alone cannot see.
type Guard struct {
	store   *Store
	cfg     GuardConfig
	nowFunc func() time.Time
}

// NewGuard returns a Guard reading from the given token store.
func NewGuard(store *Store, cfg GuardConfig) *Guard {
	return &Guard{store: store, cfg: cfg, nowFunc: time.Now}
}

// CheckRateLimit fails with ErrRateLimitExceeded when the user already has
// MaxActive or more PENDING tokens inside the window, irrespective of how
// distinct their idempotency keys are.
func (g *Guard) CheckRateLimit(ctx context.Context, tenantID, userID string) error {
	since := g.nowFunc().Add(-g.cfg.Window)
	n, err := g.store.CountActiveSince(ctx, tenantID, userID, since)
	if err != nil {
		return fmt.Errorf("count active tokens: %w", err)
	}
	if n >= g.cfg.MaxActive {
		return ErrRateLimitExceeded
	}
	return nil
}

// CheckContentDuplicate fails with *DuplicateOrderError when a COMPLETED
// token exists for identical canonical content under a different key.
func (g *Guard) CheckContentDuplicate(ctx context.Context, tenantID, userID, requestHash, currentToken string) error {
	rec, err := g.store.FindCompletedByUserAndHash(ctx, tenantID, userID, requestHash)
	if err != nil {
		return fmt.Errorf("find completed by hash: %w", err)
	}
	if rec == nil || rec.Token == currentToken {
		return nil
	}
	return &DuplicateOrderError{ExistingOrderID: rec.OrderID, ExistingToken: rec.Token}
}
