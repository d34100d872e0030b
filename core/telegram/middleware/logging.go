package middleware

import (
	"log/slog"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LoggerMiddleware opens the request context of an update and logs its
// receipt. Routes wrap it again below the global chain; the inner
// application finds the stored context and only passes the update on.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := tghelpers.ContextFrom(c); ok {
			return next(c)
		}
		chatID, userID := tghelpers.Peers(c)
		rid := logger.BuildRID(c.Update().ID, chatID, userID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())
		ctx := tghelpers.RequestContext(c, rid)
		tghelpers.StoreContext(c, ctx)

		logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", receiptAttrs(c)...)
		return next(c)
	}
}

// receiptAttrs describes what arrived: the sender, the update kind and its
// payload. Ids come from the request context.
func receiptAttrs(c tele.Context) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("update_kind", UpdateKind(upd)),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	switch {
	case upd.Callback != nil:
		key, payload := callbacks.ParseCallbackData(upd.Callback)
		attrs = appendNonEmpty(attrs, "cb_key", logger.SanitizeLimit(key, 128))
		attrs = appendNonEmpty(attrs, "payload", logger.SanitizeLimit(payload, 256))
	case upd.Message != nil:
		msg := upd.Message
		switch {
		case msg.Photo != nil:
			attrs = append(attrs, slog.String("kind", "photo"))
		case msg.Document != nil:
			attrs = append(attrs, slog.String("kind", "document"))
		}
		attrs = appendNonEmpty(attrs, "payload", logger.SanitizeLimit(c.Text(), 256))
	}
	return attrs
}

func appendNonEmpty(attrs []slog.Attr, key, v string) []slog.Attr {
	if v == "" {
		return attrs
	}
	return append(attrs, slog.String(key, v))
}
