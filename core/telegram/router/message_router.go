package router

import (
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// FSM defines the minimal interface for an FSM manager.
type FSM interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions controls fallback behaviour for text, photo and document updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
	// Media handles photos and documents that no FSM step consumed.
	Media tele.HandlerFunc
}

// TextRoutes builds handlers for text, photo and document routing.
// Users with an active FSM state are always routed to the FSM first.
func TextRoutes(fsmMgr FSM, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := updateStart(c)
		text := c.Text()

		if inFSM(fsmMgr, c) {
			return handleWithSummary(c, "fsm", start, func() error {
				return fsmMgr.ManagerHandler(c)
			})
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil && !cmd.AdminOnly {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, func() error {
					return cmd.Guarded()(c)
				})
			}
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}

		logSkipped(c, "unknown_text", start)
		return nil
	}

	mediaHandler := func(kind string) tele.HandlerFunc {
		return func(c tele.Context) error {
			start := updateStart(c)
			if inFSM(fsmMgr, c) {
				return handleWithSummary(c, "fsm_"+kind, start, func() error {
					return fsmMgr.ManagerHandler(c)
				})
			}
			if opts.Media != nil {
				return handleWithSummary(c, kind, start, func() error {
					return opts.Media(c)
				})
			}
			logSkipped(c, "unexpected_"+kind, start)
			return nil
		}
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(handler)},
		{Endpoint: tele.OnDocument, Handler: wrap(mediaHandler("document"))},
		{Endpoint: tele.OnPhoto, Handler: wrap(mediaHandler("photo"))},
	}
}

func inFSM(fsmMgr FSM, c tele.Context) bool {
	if fsmMgr == nil || c.Sender() == nil {
		return false
	}
	return fsmMgr.InProgress(c.Sender().ID)
}
