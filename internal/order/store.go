package order

import (
	"context"
	"time"
)

// NewOrder carries the fields persisted by Store.Create.
type NewOrder struct {
	RequesterID int64
	Product     Product
	CreatedAt   time.Time
}

// StatusChange describes a conditional status update.
type StatusChange struct {
	ID        ID
	From      Status
	To        Status
	DecidedBy int64
	DecidedAt time.Time
}

// Store persists the ledger. Implementations must make Create atomic and
// UpdateStatus a single compare-and-set on (id, from).
type Store interface {
	// Create inserts a pending order and returns it with its assigned ID.
	Create(ctx context.Context, in NewOrder) (Order, error)
	// Get returns ErrNotFound when id is unknown.
	Get(ctx context.Context, id ID) (Order, error)
	// LatestPendingFor returns the most recent pending order of a requester
	// or ErrNotFound.
	LatestPendingFor(ctx context.Context, requesterID int64) (Order, error)
	// ListPending returns pending orders oldest first.
	ListPending(ctx context.Context) ([]Order, error)
	// UpdateStatus applies the change only while the order is still in
	// change.From. It returns ErrNotFound for unknown ids and ErrConflict
	// when the current status differs.
	UpdateStatus(ctx context.Context, change StatusChange) (Order, error)
	// Stats counts pending and total orders.
	Stats(ctx context.Context) (Stats, error)
}
