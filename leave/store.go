/*
store.go - Persistence contract for leave requests and balances

PURPOSE:
  Defines the interface between the workflow and the database. Requests and
  balances are independent aggregates keyed by request id and user id; the
  workflow coordinates both inside a transaction.

IMPLEMENTATIONS:
  - store/sqlite:   default, schema migrated on open
  - store/postgres: pgx pool, same schema in Postgres dialect
  - leave/store:    in-memory, for tests

REQUIRED GUARANTEES:
  - CreateRequest assigns a unique increasing id.
  - TransitionRequest is a single conditional write: it only updates a row
    whose status is still pending. It returns *NotFoundError for an unknown
    id and *StateError when the row exists but is not pending.
  - EnsureBalance is an upsert; one row per user.
  - IncrementTaken is an atomic add on the stored counter and returns
    *NotFoundError when the user has no balance row.
  - ListRequests orders newest first (created_at, then id).
*/
package leave

import (
	"context"
	"time"
)

// Store handles persistence of leave requests, balances and user snapshots.
type Store interface {
	// Requests
	CreateRequest(ctx context.Context, r *Request) error
	GetRequest(ctx context.Context, id int64) (*Request, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)
	CountRequests(ctx context.Context, status Status) (int, error)
	TransitionRequest(ctx context.Context, id int64, to Status, comment string, at time.Time) (*Request, error)
	PendingDays(ctx context.Context, userID int64) (Tally, error)

	// Balances
	EnsureBalance(ctx context.Context, userID int64, allotted Tally, at time.Time) (*Balance, error)
	IncrementTaken(ctx context.Context, userID int64, t Type, days int, at time.Time) error
	ListBalances(ctx context.Context) ([]Balance, error)

	// Users
	SaveUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id int64) (*User, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error the transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping checks that the backing database is reachable.
	Ping(ctx context.Context) error
}
