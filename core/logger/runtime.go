package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	metaKey ctxKey = iota
	loggerKey
)

// requestMeta identifies the update and order a log line belongs to. It is
// stored by value so every With* call yields an independent copy.
type requestMeta struct {
	rid      string
	updateID int
	userID   int64
	chatID   int64
	handler  string
	orderID  int64
}

func metaFrom(ctx context.Context) requestMeta {
	if ctx == nil {
		return requestMeta{}
	}
	m, _ := ctx.Value(metaKey).(requestMeta)
	return m
}

func withMeta(ctx context.Context, fn func(*requestMeta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	fn(&m)
	return context.WithValue(ctx, metaKey, m)
}

// WithLogger stores log in ctx for FromContext.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in ctx or the base logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID attaches the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *requestMeta) { m.rid = rid })
}

// WithUpdateMeta attaches the Telegram update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *requestMeta) {
		m.updateID = updateID
		m.userID = userID
		m.chatID = chatID
	})
}

// WithHandler records the route name serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *requestMeta) { m.handler = handler })
}

// WithOrderID tags every later line logged with ctx with order_id.
func WithOrderID(ctx context.Context, id int64) context.Context {
	if id <= 0 {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *requestMeta) { m.orderID = id })
}

func RIDFrom(ctx context.Context) string     { return metaFrom(ctx).rid }
func HandlerFrom(ctx context.Context) string { return metaFrom(ctx).handler }
func UserIDFrom(ctx context.Context) int64   { return metaFrom(ctx).userID }
func ChatIDFrom(ctx context.Context) int64   { return metaFrom(ctx).chatID }
func UpdateIDFrom(ctx context.Context) int   { return metaFrom(ctx).updateID }
func OrderIDFrom(ctx context.Context) int64  { return metaFrom(ctx).orderID }

// TraceIDFrom returns the trace id of the active OpenTelemetry span.
func TraceIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanIDFrom returns the span id of the active OpenTelemetry span.
func SpanIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}

// contextFields copies request metadata into fields without overriding
// attributes set explicitly on the record.
func contextFields(ctx context.Context, fields fieldSet) {
	if ctx == nil {
		return
	}
	m := metaFrom(ctx)
	fields.setDefault("rid", m.rid)
	fields.setDefault("trace_id", TraceIDFrom(ctx))
	fields.setDefault("span_id", SpanIDFrom(ctx))
	fields.setDefault("handler", m.handler)
	if m.userID != 0 {
		fields.setDefault("user_id", m.userID)
	}
	if m.updateID != 0 {
		fields.setDefault("update_id", int64(m.updateID))
	}
	if m.chatID != 0 {
		fields.setDefault("chat_id", m.chatID)
	}
	if m.orderID != 0 {
		fields.setDefault("order_id", m.orderID)
	}
}

// Sanitize drops control and format runes except tab and newline.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes s and keeps at most max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(Sanitize(s))
	if len(r) <= max {
		return string(r)
	}
	return string(r[:max])
}

// BuildRID returns a correlation id in the form update:chat:user.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites each numeric segment of a BuildRID value in base36
// joined by dots. Other inputs are returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
