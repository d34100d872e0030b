// Package memory provides process-local stores used by tests and by the
// "memory" storage driver.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/m3rciful/shopbot/internal/order"
)

// Orders is a mutex-guarded order.Store.
type Orders struct {
	mu     sync.RWMutex
	nextID order.ID
	byID   map[order.ID]order.Order
}

var _ order.Store = (*Orders)(nil)

// NewOrders returns an empty ledger. IDs start at 1.
func NewOrders() *Orders {
	return &Orders{byID: make(map[order.ID]order.Order)}
}

func (s *Orders) Create(ctx context.Context, in order.NewOrder) (order.Order, error) {
	if err := ctx.Err(); err != nil {
		return order.Order{}, order.Storage(err, "create order")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	o := order.Order{
		ID:          s.nextID,
		RequesterID: in.RequesterID,
		Product:     in.Product,
		Status:      order.StatusPending,
		CreatedAt:   in.CreatedAt,
	}
	s.byID[o.ID] = o
	return o, nil
}

func (s *Orders) Get(_ context.Context, id order.ID) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.byID[id]
	if !ok {
		return order.Order{}, order.NotFound("order %d not found", id)
	}
	return clone(o), nil
}

func (s *Orders) LatestPendingFor(_ context.Context, requesterID int64) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  order.Order
		found bool
	)
	for _, o := range s.byID {
		if o.RequesterID != requesterID || o.Status != order.StatusPending {
			continue
		}
		if !found || newer(o, best) {
			best, found = o, true
		}
	}
	if !found {
		return order.Order{}, order.NotFound("no pending order for user %d", requesterID)
	}
	return clone(best), nil
}

func (s *Orders) ListPending(_ context.Context) ([]order.Order, error) {
	s.mu.RLock()
	out := make([]order.Order, 0, len(s.byID))
	for _, o := range s.byID {
		if o.Status == order.StatusPending {
			out = append(out, clone(o))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return newer(out[j], out[i]) })
	return out, nil
}

func (s *Orders) UpdateStatus(_ context.Context, change order.StatusChange) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.byID[change.ID]
	if !ok {
		return order.Order{}, order.NotFound("order %d not found", change.ID)
	}
	if o.Status != change.From {
		return order.Order{}, order.Conflict("order %d is already %s", change.ID, o.Status)
	}
	at := change.DecidedAt
	o.Status = change.To
	o.DecidedAt = &at
	o.DecidedBy = change.DecidedBy
	s.byID[o.ID] = o
	return clone(o), nil
}

func (s *Orders) Stats(_ context.Context) (order.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := order.Stats{Total: len(s.byID)}
	for _, o := range s.byID {
		if o.Status == order.StatusPending {
			st.Pending++
		}
	}
	return st, nil
}

// newer orders by creation time and breaks ties on id.
func newer(a, b order.Order) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func clone(o order.Order) order.Order {
	if o.DecidedAt != nil {
		at := *o.DecidedAt
		o.DecidedAt = &at
	}
	return o
}
