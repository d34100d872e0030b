// Package postgres implements the order and visitor stores on PostgreSQL
// through sqlx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/m3rciful/shopbot/internal/order"
)

var tracer = otel.Tracer("github.com/m3rciful/shopbot/internal/storage/postgres")

const orderColumns = `id, requester_id, product_key, product_name, price, link, status, created_at, decided_at, decided_by`

type orderRow struct {
	ID          int64           `db:"id"`
	RequesterID int64           `db:"requester_id"`
	ProductKey  string          `db:"product_key"`
	ProductName string          `db:"product_name"`
	Price       decimal.Decimal `db:"price"`
	Link        string          `db:"link"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	DecidedAt   sql.NullTime    `db:"decided_at"`
	DecidedBy   sql.NullInt64   `db:"decided_by"`
}

func (r orderRow) toOrder() order.Order {
	o := order.Order{
		ID:          order.ID(r.ID),
		RequesterID: r.RequesterID,
		Product: order.Product{
			Key:   r.ProductKey,
			Name:  r.ProductName,
			Price: r.Price,
			Link:  r.Link,
		},
		Status:    order.Status(r.Status),
		CreatedAt: r.CreatedAt.UTC(),
		DecidedBy: r.DecidedBy.Int64,
	}
	if r.DecidedAt.Valid {
		at := r.DecidedAt.Time.UTC()
		o.DecidedAt = &at
	}
	return o
}

// Orders is the sqlx-backed order.Store.
type Orders struct {
	db *sqlx.DB
}

var _ order.Store = (*Orders)(nil)

// NewOrders wraps an open connection pool.
func NewOrders(db *sqlx.DB) *Orders {
	return &Orders{db: db}
}

// Create inserts a pending order in a single statement.
func (s *Orders) Create(ctx context.Context, in order.NewOrder) (order.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderStore.Create", trace.WithAttributes(
		attribute.Int64("order.requester_id", in.RequesterID),
	))
	defer span.End()

	const query = `
INSERT INTO orders (requester_id, product_key, product_name, price, link, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + orderColumns

	var row orderRow
	err := s.db.GetContext(ctx, &row, query,
		in.RequesterID, in.Product.Key, in.Product.Name, in.Product.Price, in.Product.Link,
		string(order.StatusPending), in.CreatedAt,
	)
	if err != nil {
		return order.Order{}, fail(span, "insert failed", order.Storage(err, "insert order"))
	}
	return row.toOrder(), nil
}

func (s *Orders) Get(ctx context.Context, id order.ID) (order.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderStore.Get", trace.WithAttributes(attribute.Int64("order.id", int64(id))))
	defer span.End()

	const query = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var row orderRow
	err := s.db.GetContext(ctx, &row, query, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return order.Order{}, order.NotFound("order %d not found", id)
	}
	if err != nil {
		return order.Order{}, fail(span, "select failed", order.Storage(err, "select order %d", id))
	}
	return row.toOrder(), nil
}

func (s *Orders) LatestPendingFor(ctx context.Context, requesterID int64) (order.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderStore.LatestPendingFor", trace.WithAttributes(
		attribute.Int64("order.requester_id", requesterID),
	))
	defer span.End()

	const query = `
SELECT ` + orderColumns + `
FROM orders
WHERE requester_id = $1 AND status = 'pending'
ORDER BY created_at DESC, id DESC
LIMIT 1`

	var row orderRow
	err := s.db.GetContext(ctx, &row, query, requesterID)
	if errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, order.NotFound("no pending order for user %d", requesterID)
	}
	if err != nil {
		return order.Order{}, fail(span, "select failed", order.Storage(err, "select pending order"))
	}
	return row.toOrder(), nil
}

func (s *Orders) ListPending(ctx context.Context) ([]order.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderStore.ListPending")
	defer span.End()

	const query = `
SELECT ` + orderColumns + `
FROM orders
WHERE status = 'pending'
ORDER BY created_at ASC, id ASC`

	var rows []orderRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fail(span, "select failed", order.Storage(err, "list pending orders"))
	}
	out := make([]order.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toOrder())
	}
	return out, nil
}

// UpdateStatus performs the compare-and-set in one UPDATE. When no row
// matches, a follow-up read distinguishes unknown ids from conflicts.
func (s *Orders) UpdateStatus(ctx context.Context, change order.StatusChange) (order.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderStore.UpdateStatus", trace.WithAttributes(
		attribute.Int64("order.id", int64(change.ID)),
		attribute.String("order.from", string(change.From)),
		attribute.String("order.to", string(change.To)),
	))
	defer span.End()

	const query = `
UPDATE orders
SET status = $1, decided_at = $2, decided_by = $3
WHERE id = $4 AND status = $5
RETURNING ` + orderColumns

	var row orderRow
	err := s.db.GetContext(ctx, &row, query,
		string(change.To), change.DecidedAt, change.DecidedBy, int64(change.ID), string(change.From),
	)
	if err == nil {
		return row.toOrder(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return order.Order{}, fail(span, "update failed", order.Storage(err, "update order %d", change.ID))
	}

	current, getErr := s.Get(ctx, change.ID)
	if getErr != nil {
		return order.Order{}, getErr
	}
	span.SetStatus(codes.Error, "conflict")
	return order.Order{}, order.Conflict("order %d is already %s", change.ID, current.Status)
}

func (s *Orders) Stats(ctx context.Context) (order.Stats, error) {
	ctx, span := tracer.Start(ctx, "OrderStore.Stats")
	defer span.End()

	const query = `
SELECT
    COUNT(*) FILTER (WHERE status = 'pending') AS pending,
    COUNT(*) AS total
FROM orders`

	var row struct {
		Pending int `db:"pending"`
		Total   int `db:"total"`
	}
	if err := s.db.GetContext(ctx, &row, query); err != nil {
		return order.Stats{}, fail(span, "count failed", order.Storage(err, "count orders"))
	}
	return order.Stats{Pending: row.Pending, Total: row.Total}, nil
}

func fail(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}
