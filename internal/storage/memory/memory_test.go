package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/internal/order"
	"github.com/m3rciful/shopbot/internal/visitor"
)

func newOrder(requester int64, at time.Time) order.NewOrder {
	return order.NewOrder{
		RequesterID: requester,
		Product:     order.Product{Key: "a", Name: "A", Price: decimal.NewFromInt(10)},
		CreatedAt:   at,
	}
}

func TestOrdersConcurrentCreateAssignsUniqueIDs(t *testing.T) {
	s := NewOrders()
	const n = 64
	ids := make(chan order.ID, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := s.Create(context.Background(), newOrder(int64(i+1), time.Now()))
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			ids <- o.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[order.ID]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d ids, got %d", n, len(seen))
	}
}

func TestOrdersUpdateStatusIsConditional(t *testing.T) {
	s := NewOrders()
	ctx := context.Background()
	o, _ := s.Create(ctx, newOrder(1, time.Now()))

	change := order.StatusChange{ID: o.ID, From: order.StatusPending, To: order.StatusRejected, DecidedBy: 9, DecidedAt: time.Now()}
	if _, err := s.UpdateStatus(ctx, change); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	change.To = order.StatusApproved
	if _, err := s.UpdateStatus(ctx, change); !errors.Is(err, order.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	change.ID = 404
	if _, err := s.UpdateStatus(ctx, change); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrdersReturnCopies(t *testing.T) {
	s := NewOrders()
	ctx := context.Background()
	o, _ := s.Create(ctx, newOrder(1, time.Now()))
	updated, _ := s.UpdateStatus(ctx, order.StatusChange{ID: o.ID, From: order.StatusPending, To: order.StatusApproved, DecidedAt: time.Now()})

	*updated.DecidedAt = time.Time{}
	got, _ := s.Get(ctx, o.ID)
	if got.DecidedAt.IsZero() {
		t.Fatalf("store state leaked through returned pointer")
	}
}

func TestOrdersLatestPendingAndList(t *testing.T) {
	s := NewOrders()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first, _ := s.Create(ctx, newOrder(1, base))
	second, _ := s.Create(ctx, newOrder(1, base.Add(time.Minute)))
	other, _ := s.Create(ctx, newOrder(2, base.Add(2*time.Minute)))

	latest, err := s.LatestPendingFor(ctx, 1)
	if err != nil || latest.ID != second.ID {
		t.Fatalf("expected %d, got %d (%v)", second.ID, latest.ID, err)
	}

	list, _ := s.ListPending(ctx)
	if len(list) != 3 || list[0].ID != first.ID || list[2].ID != other.ID {
		t.Fatalf("unexpected order: %+v", list)
	}

	st, _ := s.Stats(ctx)
	if st.Pending != 3 || st.Total != 3 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestVisitorsRegister(t *testing.T) {
	s := NewVisitors()
	ctx := context.Background()
	first, _ := s.Register(ctx, visitor.Visitor{UserID: 5})
	again, _ := s.Register(ctx, visitor.Visitor{UserID: 5})
	if !first || again {
		t.Fatalf("expected first=true again=false, got %v %v", first, again)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Fatalf("expected 1 visitor, got %d", n)
	}
}
