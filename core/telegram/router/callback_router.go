package router

import (
	"log/slog"

	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	"github.com/m3rciful/shopbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	// NotFound answers keys without a handler when the registry has no
	// fallback of its own.
	NotFound tele.HandlerFunc
}

// CallbackRoute dispatches every callback query by its unique key.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		key, _ := callbacks.ParseCallbackData(cb)
		name := "callback." + normalizeHandlerName(key)
		keyAttr := slog.String("cb_key", key)

		if h, ok := reg.GetCallback(key); ok && h != nil {
			return handleWithSummary(c, name, updateStart(c), func() error { return h(c) }, keyAttr)
		}
		fallback := reg.CallbackNotFound()
		if fallback == nil {
			fallback = opts.NotFound
		}
		return handleWithSummary(c, name, updateStart(c), func() error {
			if fallback == nil {
				return c.Respond()
			}
			return fallback(c)
		}, keyAttr, slog.String("reason", "not_found"))
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
