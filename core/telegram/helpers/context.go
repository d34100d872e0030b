package helpers

import (
	"context"

	"github.com/m3rciful/shopbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// ctxKey holds the request context of an update in tele.Context storage.
const ctxKey = "request_ctx"

// Peers returns the chat and user of the update; zero when absent.
func Peers(c tele.Context) (chatID, userID int64) {
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	return chatID, userID
}

// RequestContext is the logging context of the update in c under rid.
func RequestContext(c tele.Context, rid string) context.Context {
	chatID, userID := Peers(c)
	updateID := c.Update().ID
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}
	ctx := logger.WithRID(logger.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	return logger.WithLogger(ctx, logger.Component("tg"))
}

// StoreContext keeps ctx on c for later handlers of the same update.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxKey, ctx)
	}
}

// ContextFrom returns the context stored on c.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the stored request context, creating it on first use.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	rid, _ := c.Get("rid").(string)
	ctx := RequestContext(c, rid)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the request context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}

// WithOrder tags the request context with the order being handled, so
// sender lines of the same update carry order_id.
func WithOrder(c tele.Context, id int64) context.Context {
	ctx := BuildContext(c)
	if id <= 0 {
		return ctx
	}
	ctx = logger.WithOrderID(ctx, id)
	StoreContext(c, ctx)
	return ctx
}
