package order_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/internal/order"
	"github.com/m3rciful/shopbot/internal/storage/memory"
)

const (
	adminID     int64 = 7
	requesterID int64 = 42
)

type sent struct {
	to  int64
	msg order.Message
}

type fakeGateway struct {
	mu    sync.Mutex
	sent  []sent
	err   error
	block bool
}

func (g *fakeGateway) SendMessage(ctx context.Context, to int64, msg order.Message) error {
	if g.block {
		<-ctx.Done()
		return ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.sent = append(g.sent, sent{to: to, msg: msg})
	return nil
}

func (g *fakeGateway) to(id int64) []order.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []order.Message
	for _, s := range g.sent {
		if s.to == id {
			out = append(out, s.msg)
		}
	}
	return out
}

type countingRecorder struct {
	mu       sync.Mutex
	created  int
	decided  map[order.Decision]int
	proofs   int
	failures []string
}

func (r *countingRecorder) OrderCreated() {
	r.mu.Lock()
	r.created++
	r.mu.Unlock()
}

func (r *countingRecorder) OrderDecided(d order.Decision) {
	r.mu.Lock()
	if r.decided == nil {
		r.decided = map[order.Decision]int{}
	}
	r.decided[d]++
	r.mu.Unlock()
}

func (r *countingRecorder) ProofForwarded() {
	r.mu.Lock()
	r.proofs++
	r.mu.Unlock()
}

func (r *countingRecorder) NotificationFailed(purpose string) {
	r.mu.Lock()
	r.failures = append(r.failures, purpose)
	r.mu.Unlock()
}

type fixture struct {
	wf       *order.Workflow
	store    *memory.Orders
	gateway  *fakeGateway
	recorder *countingRecorder
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := &fixture{
		store:    memory.NewOrders(),
		gateway:  &fakeGateway{},
		recorder: &countingRecorder{},
		clock:    &now,
	}
	wf, err := order.NewWorkflow(order.Options{
		Store:         f.store,
		Gateway:       f.gateway,
		AdminID:       adminID,
		Recorder:      f.recorder,
		NotifyTimeout: 50 * time.Millisecond,
		Now: func() time.Time {
			*f.clock = f.clock.Add(time.Second)
			return *f.clock
		},
	})
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	f.wf = wf
	return f
}

func planA() order.Product {
	return order.Product{
		Key:   "plan_a",
		Name:  "Plan A",
		Price: decimal.RequireFromString("10.00"),
		Link:  "https://example.com/a",
	}
}

func (f *fixture) create(t *testing.T, requester int64, p order.Product) order.Order {
	t.Helper()
	o, err := f.wf.CreateOrder(context.Background(), order.CreateRequest{
		RequesterID:   requester,
		RequesterName: "alice",
		Product:       p,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return o
}

func TestCreateOrderNotifiesAdmin(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, requesterID, planA())

	if o.ID <= 0 {
		t.Fatalf("expected positive id, got %d", o.ID)
	}
	if o.Status != order.StatusPending {
		t.Fatalf("expected pending, got %s", o.Status)
	}

	msgs := f.gateway.to(adminID)
	if len(msgs) != 1 {
		t.Fatalf("expected one admin notification, got %d", len(msgs))
	}
	text := msgs[0].Text
	for _, want := range []string{o.ID.String(), "alice", "42", "Plan A", "10.00€"} {
		if !strings.Contains(text, want) {
			t.Fatalf("admin notification %q missing %q", text, want)
		}
	}
	if len(msgs[0].Actions) != 2 {
		t.Fatalf("expected approve and reject actions, got %+v", msgs[0].Actions)
	}
	for _, a := range msgs[0].Actions {
		if a.OrderID != o.ID {
			t.Fatalf("action bound to %d, want %d", a.OrderID, o.ID)
		}
	}
	if f.recorder.created != 1 {
		t.Fatalf("expected created counter 1, got %d", f.recorder.created)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]order.CreateRequest{
		"no requester": {Product: planA()},
		"no name":      {RequesterID: requesterID, Product: order.Product{Price: decimal.NewFromInt(1)}},
		"negative":     {RequesterID: requesterID, Product: order.Product{Name: "x", Price: decimal.NewFromInt(-1)}},
	}
	for name, req := range cases {
		_, err := f.wf.CreateOrder(context.Background(), req)
		if !errors.Is(err, order.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if st, _ := f.wf.Stats(context.Background()); st.Total != 0 {
		t.Fatalf("expected empty ledger, got %+v", st)
	}
}

func TestCreateOrderAcceptsFreeProduct(t *testing.T) {
	f := newFixture(t)
	p := planA()
	p.Price = decimal.Zero
	o := f.create(t, requesterID, p)
	if !o.Product.Price.IsZero() {
		t.Fatalf("expected zero price, got %s", o.Product.Price)
	}
}

func TestCreateOrderIDsAreUniqueAndIncreasing(t *testing.T) {
	f := newFixture(t)
	var prev order.ID
	for i := 0; i < 5; i++ {
		o := f.create(t, requesterID, planA())
		if o.ID <= prev {
			t.Fatalf("id %d not greater than %d", o.ID, prev)
		}
		prev = o.ID
	}
}

func TestApproveDeliversLink(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, requesterID, planA())

	pending, err := f.wf.GetPendingOrderForRequester(context.Background(), requesterID)
	if err != nil {
		t.Fatalf("GetPendingOrderForRequester: %v", err)
	}
	if pending.ID != o.ID {
		t.Fatalf("expected pending %d, got %d", o.ID, pending.ID)
	}

	res, err := f.wf.Decide(context.Background(), o.ID, order.DecisionApprove, adminID)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if res.NotifyErr != nil {
		t.Fatalf("unexpected notify error: %v", res.NotifyErr)
	}
	if res.Order.Status != order.StatusApproved {
		t.Fatalf("expected approved, got %s", res.Order.Status)
	}
	if res.Order.DecidedBy != adminID || res.Order.DecidedAt == nil {
		t.Fatalf("expected decision metadata, got %+v", res.Order)
	}

	msgs := f.gateway.to(requesterID)
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "https://example.com/a") {
		t.Fatalf("expected approval with link, got %+v", msgs)
	}

	if _, err := f.wf.GetPendingOrderForRequester(context.Background(), requesterID); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected not found after approval, got %v", err)
	}
}

func TestApproveWithoutLinkSendsNote(t *testing.T) {
	f := newFixture(t)
	p := planA()
	p.Link = ""
	o := f.create(t, requesterID, p)

	if _, err := f.wf.Decide(context.Background(), o.ID, order.DecisionApprove, adminID); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	msgs := f.gateway.to(requesterID)
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "Support will contact you") {
		t.Fatalf("expected no-link approval text, got %+v", msgs)
	}
}

func TestRejectNotifiesRequester(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, requesterID, planA())

	res, err := f.wf.Decide(context.Background(), o.ID, order.DecisionReject, adminID)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if res.Order.Status != order.StatusRejected {
		t.Fatalf("expected rejected, got %s", res.Order.Status)
	}
	msgs := f.gateway.to(requesterID)
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "rejected") {
		t.Fatalf("expected rejection text, got %+v", msgs)
	}
	if strings.Contains(msgs[0].Text, "https://example.com/a") {
		t.Fatalf("rejection must not reveal the link: %q", msgs[0].Text)
	}
}

func TestDecideUnknownOrder(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, requesterID, planA())

	_, err := f.wf.Decide(context.Background(), 999, order.DecisionApprove, adminID)
	if !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(f.gateway.to(requesterID)) != 0 {
		t.Fatalf("no notification expected")
	}
	st, err := f.wf.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st != (order.Stats{Pending: 1, Total: 1}) {
		t.Fatalf("ledger changed: %+v", st)
	}
	list, _ := f.wf.ListPending(context.Background())
	if len(list) != 1 || list[0].ID != o.ID || list[0].Status != order.StatusPending {
		t.Fatalf("pending list changed: %+v", list)
	}
}

func TestPurchaseApprovalScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.wf.CreateOrder(ctx, order.CreateRequest{
		RequesterID: 42,
		Product:     order.Product{Name: "Plan A", Price: decimal.NewFromInt(10)},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.ID != 1 {
		t.Fatalf("first order id = %d, want 1", o.ID)
	}

	list, err := f.wf.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly one pending order, got %+v", list)
	}
	got := list[0]
	if got.ID != 1 || got.RequesterID != 42 || got.Product.Name != "Plan A" ||
		!got.Product.Price.Equal(decimal.NewFromInt(10)) || got.Status != order.StatusPending {
		t.Fatalf("unexpected pending order %+v", got)
	}

	if _, err := f.wf.Decide(ctx, 1, order.DecisionApprove, adminID); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if list, _ := f.wf.ListPending(ctx); len(list) != 0 {
		t.Fatalf("expected no pending orders after approval, got %+v", list)
	}
	final, err := f.wf.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != order.StatusApproved {
		t.Fatalf("expected approved, got %s", final.Status)
	}
}

func TestDecideByNonAdminLeavesOrderPending(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, requesterID, planA())

	_, err := f.wf.Decide(context.Background(), o.ID, order.DecisionApprove, requesterID)
	if !errors.Is(err, order.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	list, err := f.wf.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(list) != 1 || list[0].ID != o.ID || list[0].Status != order.StatusPending {
		t.Fatalf("expected order to stay pending, got %+v", list)
	}
	if len(f.gateway.to(requesterID)) != 0 {
		t.Fatalf("requester must not be notified")
	}
}

func TestDecideTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, requesterID, planA())

	if _, err := f.wf.Decide(context.Background(), o.ID, order.DecisionApprove, adminID); err != nil {
		t.Fatalf("first Decide: %v", err)
	}
	_, err := f.wf.Decide(context.Background(), o.ID, order.DecisionReject, adminID)
	if !errors.Is(err, order.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	got, _ := f.wf.Get(context.Background(), o.ID)
	if got.Status != order.StatusApproved {
		t.Fatalf("status changed after conflict: %s", got.Status)
	}
	if n := len(f.gateway.to(requesterID)); n != 1 {
		t.Fatalf("expected a single requester notification, got %d", n)
	}
}

func TestConcurrentDecisionsCommitOnce(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, requesterID, planA())

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		d := order.DecisionApprove
		if i%2 == 1 {
			d = order.DecisionReject
		}
		wg.Add(1)
		go func(d order.Decision) {
			defer wg.Done()
			_, err := f.wf.Decide(context.Background(), o.ID, d, adminID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, order.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(d)
	}
	wg.Wait()

	if successes != 1 || conflicts != workers-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d", workers-1, successes, conflicts)
	}
}

func TestPendingLookupReturnsMostRecent(t *testing.T) {
	f := newFixture(t)
	f.create(t, requesterID, planA())
	p := planA()
	p.Key, p.Name = "plan_b", "Plan B"
	latest := f.create(t, requesterID, p)

	got, err := f.wf.GetPendingOrderForRequester(context.Background(), requesterID)
	if err != nil {
		t.Fatalf("GetPendingOrderForRequester: %v", err)
	}
	if got.ID != latest.ID {
		t.Fatalf("expected most recent %d, got %d", latest.ID, got.ID)
	}
}

func TestPendingLookupNone(t *testing.T) {
	f := newFixture(t)
	_, err := f.wf.GetPendingOrderForRequester(context.Background(), requesterID)
	if !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListPendingOldestFirstAndStats(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, requesterID, planA())
	b := f.create(t, 43, planA())
	c := f.create(t, 44, planA())
	if _, err := f.wf.Decide(context.Background(), b.ID, order.DecisionReject, adminID); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	list, err := f.wf.ListPending(context.Background())
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != c.ID {
		t.Fatalf("unexpected pending list: %+v", list)
	}

	st, err := f.wf.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Pending != 2 || st.Total != 3 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = errors.New("chat not found")

	o, err := f.wf.CreateOrder(context.Background(), order.CreateRequest{RequesterID: requesterID, Product: planA()})
	if err != nil {
		t.Fatalf("CreateOrder should succeed despite notify failure: %v", err)
	}

	res, err := f.wf.Decide(context.Background(), o.ID, order.DecisionApprove, adminID)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !errors.Is(res.NotifyErr, order.ErrNotificationFailed) {
		t.Fatalf("expected notification failure in result, got %v", res.NotifyErr)
	}
	got, _ := f.wf.Get(context.Background(), o.ID)
	if got.Status != order.StatusApproved {
		t.Fatalf("decision must persist, got %s", got.Status)
	}
	if len(f.recorder.failures) != 2 {
		t.Fatalf("expected two recorded failures, got %v", f.recorder.failures)
	}
}

func TestNotificationTimeoutIsBounded(t *testing.T) {
	f := newFixture(t)
	f.gateway.block = true

	start := time.Now()
	o, err := f.wf.CreateOrder(context.Background(), order.CreateRequest{RequesterID: requesterID, Product: planA()})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("notification not bounded: %s", elapsed)
	}
	if got, _ := f.wf.Get(context.Background(), o.ID); got.Status != order.StatusPending {
		t.Fatalf("expected pending order, got %s", got.Status)
	}
}

func TestSubmitProofForwardsAttachment(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, requesterID, planA())

	proof := order.Attachment{Ref: "file-123", Kind: order.AttachmentPhoto}
	got, err := f.wf.SubmitProof(context.Background(), requesterID, proof)
	if err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	if got.ID != o.ID {
		t.Fatalf("proof matched order %d, want %d", got.ID, o.ID)
	}
	msgs := f.gateway.to(adminID)
	last := msgs[len(msgs)-1]
	if last.Attachment == nil || last.Attachment.Ref != "file-123" {
		t.Fatalf("expected forwarded attachment, got %+v", last)
	}
	if f.recorder.proofs != 1 {
		t.Fatalf("expected proof counter 1, got %d", f.recorder.proofs)
	}
}

func TestSubmitProofWithoutPendingOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.wf.SubmitProof(context.Background(), requesterID, order.Attachment{Ref: "file", Kind: order.AttachmentDocument})
	if !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitProofForwardFailure(t *testing.T) {
	f := newFixture(t)
	f.create(t, requesterID, planA())
	f.gateway.err = errors.New("blocked")

	_, err := f.wf.SubmitProof(context.Background(), requesterID, order.Attachment{Ref: "file", Kind: order.AttachmentPhoto})
	if !errors.Is(err, order.ErrNotificationFailed) {
		t.Fatalf("expected notification failure, got %v", err)
	}
}

func TestStoreFailureIsStorageError(t *testing.T) {
	gw := &fakeGateway{}
	wf, err := order.NewWorkflow(order.Options{
		Store:   failingStore{Store: memory.NewOrders()},
		Gateway: gw,
		AdminID: adminID,
	})
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	_, err = wf.CreateOrder(context.Background(), order.CreateRequest{RequesterID: requesterID, Product: planA()})
	if !errors.Is(err, order.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if msgs := gw.to(adminID); len(msgs) != 0 {
		t.Fatalf("admin must not be notified of a failed order: %+v", msgs)
	}
}

func TestFailedDecisionDoesNotNotifyRequester(t *testing.T) {
	store := memory.NewOrders()
	gw := &fakeGateway{}
	sink := &recordingSink{}
	wf, err := order.NewWorkflow(order.Options{
		Store:   failingUpdateStore{Store: store},
		Gateway: gw,
		AdminID: adminID,
		Events:  sink,
	})
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	o, err := wf.CreateOrder(context.Background(), order.CreateRequest{RequesterID: requesterID, Product: planA()})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	_, err = wf.Decide(context.Background(), o.ID, order.DecisionApprove, adminID)
	if !errors.Is(err, order.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if msgs := gw.to(requesterID); len(msgs) != 0 {
		t.Fatalf("requester must not be notified of a failed decision: %+v", msgs)
	}
	if sink.decided != 0 {
		t.Fatalf("no decided event expected, got %d", sink.decided)
	}
	if got, _ := store.Get(context.Background(), o.ID); got.Status != order.StatusPending {
		t.Fatalf("expected pending order, got %s", got.Status)
	}
}

func TestStalledEventSinkIsBounded(t *testing.T) {
	store := memory.NewOrders()
	wf, err := order.NewWorkflow(order.Options{
		Store:          store,
		Gateway:        &fakeGateway{},
		AdminID:        adminID,
		Events:         stalledSink{},
		NotifyTimeout:  time.Second,
		PublishTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		o, err := wf.CreateOrder(context.Background(), order.CreateRequest{RequesterID: requesterID, Product: planA()})
		if err == nil {
			_, err = wf.Decide(context.Background(), o.ID, order.DecisionReject, adminID)
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("order flow failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("order flow blocked on a stalled event sink")
	}
	if st, _ := store.Stats(context.Background()); st != (order.Stats{Pending: 0, Total: 1}) {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestNewWorkflowRequiresAdmin(t *testing.T) {
	_, err := order.NewWorkflow(order.Options{Store: memory.NewOrders(), Gateway: &fakeGateway{}})
	if err == nil {
		t.Fatalf("expected error without admin")
	}
}

type failingStore struct {
	order.Store
}

func (failingStore) Create(context.Context, order.NewOrder) (order.Order, error) {
	return order.Order{}, errors.New("disk full")
}

type failingUpdateStore struct {
	order.Store
}

func (failingUpdateStore) UpdateStatus(context.Context, order.StatusChange) (order.Order, error) {
	return order.Order{}, errors.New("connection reset")
}

type recordingSink struct {
	mu      sync.Mutex
	created int
	decided int
}

func (s *recordingSink) OrderCreated(context.Context, order.Order) error {
	s.mu.Lock()
	s.created++
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) OrderDecided(context.Context, order.Order) error {
	s.mu.Lock()
	s.decided++
	s.mu.Unlock()
	return nil
}

// stalledSink never returns before its context is done.
type stalledSink struct{}

func (stalledSink) OrderCreated(ctx context.Context, _ order.Order) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledSink) OrderDecided(ctx context.Context, _ order.Order) error {
	<-ctx.Done()
	return ctx.Err()
}
