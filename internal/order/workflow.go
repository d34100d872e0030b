package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/m3rciful/shopbot/core/logger"
)

const (
	component            = "service.orders"
	defaultNotifyTimeout = 5 * time.Second
)

var tracer = otel.Tracer("github.com/m3rciful/shopbot/internal/order")

// Options wires a Workflow.
type Options struct {
	Store   Store
	Gateway Gateway
	// Authorize decides who may approve or reject orders.
	Authorize Authorizer
	// AdminID receives new-order and proof-of-payment notifications.
	AdminID int64

	Events        EventSink
	Recorder      Recorder
	Texts         Texts
	NotifyTimeout time.Duration

	// PublishTimeout bounds an event publish; defaults to NotifyTimeout.
	PublishTimeout time.Duration
	Now            func() time.Time
}

// Workflow is the order ledger and approval workflow.
type Workflow struct {
	store          Store
	gateway        Gateway
	authorize      Authorizer
	adminID        int64
	events         EventSink
	recorder       Recorder
	texts          Texts
	notifyTimeout  time.Duration
	publishTimeout time.Duration
	now            func() time.Time
}

// NewWorkflow validates options and builds a Workflow.
func NewWorkflow(opts Options) (*Workflow, error) {
	if opts.Store == nil {
		return nil, errors.New("order: nil store")
	}
	if opts.Gateway == nil {
		return nil, errors.New("order: nil gateway")
	}
	if opts.Authorize == nil {
		if opts.AdminID == 0 {
			return nil, errors.New("order: admin id or authorizer required")
		}
		opts.Authorize = SingleAdmin(opts.AdminID)
	}
	if opts.Events == nil {
		opts.Events = nopSink{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = defaultNotifyTimeout
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = opts.NotifyTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Workflow{
		store:          opts.Store,
		gateway:        opts.Gateway,
		authorize:      opts.Authorize,
		adminID:        opts.AdminID,
		events:         opts.Events,
		recorder:       opts.Recorder,
		texts:          opts.Texts.withDefaults(),
		notifyTimeout:  opts.NotifyTimeout,
		publishTimeout: opts.PublishTimeout,
		now:            opts.Now,
	}, nil
}

// Texts exposes the notification texts, e.g. for price formatting.
func (w *Workflow) Texts() Texts {
	return w.texts
}

// IsAdmin reports whether principal may decide orders.
func (w *Workflow) IsAdmin(principal int64) bool {
	return w.authorize(principal)
}

// CreateRequest describes a purchase intent.
type CreateRequest struct {
	RequesterID int64
	// RequesterName is only used in the administrator notification.
	RequesterName string
	Product       Product
}

func (r CreateRequest) validate() error {
	if r.RequesterID == 0 {
		return Validation("requester id is required")
	}
	if strings.TrimSpace(r.Product.Name) == "" {
		return Validation("product name is required")
	}
	if r.Product.Price.IsNegative() {
		return Validation("product price must not be negative")
	}
	return nil
}

// CreateOrder records a pending order and then notifies the administrator.
// A notification failure is logged and does not fail the call.
func (w *Workflow) CreateOrder(ctx context.Context, req CreateRequest) (Order, error) {
	ctx, span := tracer.Start(ctx, "Workflow.CreateOrder", trace.WithAttributes(
		attribute.Int64("order.requester_id", req.RequesterID),
		attribute.String("order.product", req.Product.Name),
	))
	defer span.End()

	if err := req.validate(); err != nil {
		span.SetStatus(codes.Error, "validation")
		return Order{}, err
	}

	start := time.Now()
	o, err := w.store.Create(ctx, NewOrder{
		RequesterID: req.RequesterID,
		Product:     req.Product,
		CreatedAt:   w.now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store create")
		logger.Error(ctx, component, "order.create",
			slog.String("status", "fail"),
			slog.Int64("requester_id", req.RequesterID),
			slog.String("product", req.Product.Key),
			slog.String("err", err.Error()),
		)
		return Order{}, asStorage(err, "create order")
	}
	span.SetAttributes(attribute.Int64("order.id", int64(o.ID)))
	ctx = logger.WithOrderID(ctx, int64(o.ID))
	w.recorder.OrderCreated()

	logger.Info(ctx, component, "order.create",
		slog.String("status", "ok"),
		slog.Int64("order_id", int64(o.ID)),
		slog.Int64("requester_id", o.RequesterID),
		slog.String("product", o.Product.Key),
		slog.String("price", o.Product.Price.String()),
		slog.Duration("duration", logger.Took(start)),
	)

	if err := w.notify(ctx, w.adminID, w.texts.newOrder(o, req.RequesterName), "admin.new_order"); err != nil {
		span.AddEvent("admin notification failed")
	}
	w.publish(ctx, "order.created", o, w.events.OrderCreated)
	return o, nil
}

// Get returns a single order.
func (w *Workflow) Get(ctx context.Context, id ID) (Order, error) {
	ctx, span := tracer.Start(ctx, "Workflow.Get", trace.WithAttributes(attribute.Int64("order.id", int64(id))))
	defer span.End()

	if id <= 0 {
		return Order{}, Validation("order id is required")
	}
	o, err := w.store.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "store get")
		return Order{}, passThrough(err, "get order %d", id)
	}
	return o, nil
}

// GetPendingOrderForRequester returns the requester's most recent pending
// order.
func (w *Workflow) GetPendingOrderForRequester(ctx context.Context, requesterID int64) (Order, error) {
	ctx, span := tracer.Start(ctx, "Workflow.GetPendingOrderForRequester", trace.WithAttributes(
		attribute.Int64("order.requester_id", requesterID),
	))
	defer span.End()

	if requesterID == 0 {
		return Order{}, Validation("requester id is required")
	}
	o, err := w.store.LatestPendingFor(ctx, requesterID)
	if err != nil {
		span.SetStatus(codes.Error, "store lookup")
		return Order{}, passThrough(err, "pending order of %d", requesterID)
	}
	return o, nil
}

// ListPending returns every pending order, oldest first.
func (w *Workflow) ListPending(ctx context.Context) ([]Order, error) {
	ctx, span := tracer.Start(ctx, "Workflow.ListPending")
	defer span.End()

	list, err := w.store.ListPending(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store list")
		return nil, asStorage(err, "list pending orders")
	}
	span.SetAttributes(attribute.Int("order.count", len(list)))
	return list, nil
}

// Stats returns ledger counters.
func (w *Workflow) Stats(ctx context.Context) (Stats, error) {
	st, err := w.store.Stats(ctx)
	if err != nil {
		return Stats{}, asStorage(err, "order stats")
	}
	return st, nil
}

// SubmitProof forwards a proof of payment for the requester's pending order
// to the administrator. No state changes; a forwarding failure is returned as
// a NotificationFailed error so the requester can retry.
func (w *Workflow) SubmitProof(ctx context.Context, requesterID int64, proof Attachment) (Order, error) {
	ctx, span := tracer.Start(ctx, "Workflow.SubmitProof", trace.WithAttributes(
		attribute.Int64("order.requester_id", requesterID),
	))
	defer span.End()

	if strings.TrimSpace(proof.Ref) == "" {
		return Order{}, Validation("attachment reference is required")
	}
	o, err := w.GetPendingOrderForRequester(ctx, requesterID)
	if err != nil {
		return Order{}, err
	}
	ctx = logger.WithOrderID(ctx, int64(o.ID))
	if err := w.notify(ctx, w.adminID, w.texts.proofReceived(o, proof), "admin.proof"); err != nil {
		span.SetStatus(codes.Error, "forward proof")
		return o, err
	}
	w.recorder.ProofForwarded()
	logger.Info(ctx, component, "order.proof",
		slog.String("status", "ok"),
		slog.Int64("order_id", int64(o.ID)),
		slog.Int64("requester_id", requesterID),
		slog.String("kind", string(proof.Kind)),
	)
	return o, nil
}

// Result is the outcome of Decide.
type Result struct {
	Order Order
	// NotifyErr is set when the requester could not be notified. The
	// decision itself is committed regardless.
	NotifyErr error
}

// Decide moves a pending order to approved or rejected. Only principals
// accepted by the authorizer may decide; deciding an already decided order
// fails with a Conflict error and leaves it unchanged.
func (w *Workflow) Decide(ctx context.Context, id ID, decision Decision, deciderID int64) (Result, error) {
	ctx, span := tracer.Start(ctx, "Workflow.Decide", trace.WithAttributes(
		attribute.Int64("order.id", int64(id)),
		attribute.String("order.decision", string(decision)),
		attribute.Int64("order.decider_id", deciderID),
	))
	defer span.End()

	if !w.authorize(deciderID) {
		span.SetStatus(codes.Error, "unauthorized")
		logger.Warn(ctx, component, "order.decide",
			slog.String("status", "fail"),
			slog.Int64("order_id", int64(id)),
			slog.Int64("decider_id", deciderID),
			slog.String("err_code", string(KindUnauthorized)),
		)
		return Result{}, Unauthorized("user %d may not decide orders", deciderID)
	}
	target, ok := decision.Target()
	if !ok {
		return Result{}, Validation("unknown decision %q", decision)
	}
	if id <= 0 {
		return Result{}, Validation("order id is required")
	}
	ctx = logger.WithOrderID(ctx, int64(id))

	current, err := w.store.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "store get")
		return Result{}, passThrough(err, "decide order %d", id)
	}
	if current.Status.Terminal() {
		span.SetStatus(codes.Error, "conflict")
		return Result{}, Conflict("order %d is already %s", id, current.Status)
	}

	updated, err := w.store.UpdateStatus(ctx, StatusChange{
		ID:        id,
		From:      StatusPending,
		To:        target,
		DecidedBy: deciderID,
		DecidedAt: w.now().UTC(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store update")
		logger.Warn(ctx, component, "order.decide",
			slog.String("status", "fail"),
			slog.Int64("order_id", int64(id)),
			slog.String("decision", string(decision)),
			slog.String("err", err.Error()),
		)
		return Result{}, passThrough(err, "decide order %d", id)
	}
	w.recorder.OrderDecided(decision)

	logger.Info(ctx, component, "order.decide",
		slog.String("status", "ok"),
		slog.Int64("order_id", int64(updated.ID)),
		slog.Int64("requester_id", updated.RequesterID),
		slog.String("decision", string(decision)),
	)

	res := Result{Order: updated}
	if err := w.notify(ctx, updated.RequesterID, w.texts.decided(updated), "requester.decision"); err != nil {
		res.NotifyErr = err
	}
	w.publish(ctx, "order.decided", updated, w.events.OrderDecided)
	return res, nil
}

// notify sends msg and waits at most notifyTimeout for the gateway. ctx
// carries the order id for the failure log.
func (w *Workflow) notify(ctx context.Context, recipient int64, msg Message, purpose string) error {
	if recipient == 0 {
		return nil
	}
	nctx, cancel := context.WithTimeout(ctx, w.notifyTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.gateway.SendMessage(nctx, recipient, msg)
	}()

	var err error
	select {
	case err = <-done:
	case <-nctx.Done():
		err = nctx.Err()
	}
	if err == nil {
		return nil
	}

	w.recorder.NotificationFailed(purpose)
	logger.Warn(ctx, component, "notify",
		slog.String("status", "fail"),
		slog.String("purpose", purpose),
		slog.Int64("recipient_id", recipient),
		slog.String("err", err.Error()),
		slog.String("err_code", string(KindNotificationFailed)),
	)
	return NotificationFailed(err, "notify %s", purpose)
}

// publish hands o to the event sink and waits at most publishTimeout.
func (w *Workflow) publish(ctx context.Context, event string, o Order, fn func(context.Context, Order) error) {
	pctx, cancel := context.WithTimeout(ctx, w.publishTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(pctx, o)
	}()

	var err error
	select {
	case err = <-done:
	case <-pctx.Done():
		err = pctx.Err()
	}
	if err != nil {
		logger.Warn(ctx, component, "event.publish",
			slog.String("status", "fail"),
			slog.String("name", event),
			slog.String("err", err.Error()),
		)
	}
}

// passThrough keeps categorised store errors and wraps the rest as storage
// failures.
func passThrough(err error, format string, args ...any) error {
	if KindOf(err) != "" && KindOf(err) != KindStorage {
		return err
	}
	return asStorage(err, format, args...)
}

func asStorage(err error, format string, args ...any) error {
	if KindOf(err) == KindStorage {
		return err
	}
	return Storage(err, "%s", fmt.Sprintf(format, args...))
}
