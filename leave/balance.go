package leave

import (
	"context"
	"fmt"
	"time"
)

// BalanceStore reads and charges per-user balances.
//
// Rows are created lazily: the first operation that touches a user inserts
// the configured allotment with nothing taken.
type BalanceStore struct {
	store    Store
	defaults Tally
	now      func() time.Time
}

// NewBalanceStore creates a BalanceStore. A zero defaults value falls back to
// DefaultAllotment.
func NewBalanceStore(store Store, defaults Tally) *BalanceStore {
	if defaults == (Tally{}) {
		defaults = DefaultAllotment
	}
	return &BalanceStore{store: store, defaults: defaults, now: time.Now}
}

// On returns a copy bound to s, typically the store handed to WithTx.
func (b *BalanceStore) On(s Store) *BalanceStore {
	cp := *b
	cp.store = s
	return &cp
}

// Defaults returns the allotment given to new balances.
func (b *BalanceStore) Defaults() Tally {
	return b.defaults
}

// Ensure returns the user's balance, creating it with the defaults if absent.
func (b *BalanceStore) Ensure(ctx context.Context, userID int64) (*Balance, error) {
	bal, err := b.store.EnsureBalance(ctx, userID, b.defaults, b.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("ensure balance for user %d: %w", userID, err)
	}
	return bal, nil
}

// Credit adds days to the taken counter for t.
func (b *BalanceStore) Credit(ctx context.Context, userID int64, t Type, days int) error {
	if !t.Valid() {
		return &ValidationError{Field: "leaveType", Message: fmt.Sprintf("unsupported leave type %q", t)}
	}
	if err := b.store.IncrementTaken(ctx, userID, t, days, b.now().UTC()); err != nil {
		return fmt.Errorf("credit %d %s days to user %d: %w", days, t, userID, err)
	}
	return nil
}
