package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// refusal is implemented by errors that answer a user mistake, such as a
// decision on an order that was already decided. They are logged as
// rejected rather than failed.
type refusal interface{ Refused() bool }

type coder interface{ Code() string }

// handleWithSummary runs fn as handler name and logs one handler.handled
// line with its outcome.
func handleWithSummary(c tele.Context, name string, start time.Time, fn func() error, extras ...slog.Attr) error {
	tghelpers.WithHandler(c, name)
	err := fn()
	status, outcome, level := summarize(err)
	logSummary(c, name, start, status, outcome, level, err, extras...)
	return err
}

// logSkipped records an update no handler took.
func logSkipped(c tele.Context, name string, start time.Time) {
	logSummary(c, name, start, "skip", "ok", slog.LevelInfo, nil)
}

// summarize maps a handler error to the status, outcome and level of its
// summary line.
func summarize(err error) (status, outcome string, level slog.Level) {
	var r refusal
	switch {
	case err == nil:
		return "ok", "ok", slog.LevelInfo
	case errors.As(err, &r) && r.Refused():
		return "ok", "rejected", slog.LevelInfo
	}
	return "fail", "fail", slog.LevelWarn
}

func logSummary(c tele.Context, name string, start time.Time, status, outcome string, level slog.Level, err error, extras ...slog.Attr) {
	ctx := tghelpers.WithHandler(c, name)
	msgs, kb := middleware.GetCounters(c)
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.Took(start)),
	}, extras...)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	logger.LogEvent(ctx, logger.Component("tg"), level, "handler.handled", attrs...)
}

// updateStart returns the receipt time recorded by LoggerMiddleware.
func updateStart(c tele.Context) time.Time {
	if ts, ok := c.Get("update_start").(time.Time); ok {
		return ts
	}
	return time.Now()
}

func normalizeHandlerName(name string) string {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	if name == "" {
		return "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// deriveErrorCode prefers a Code() found anywhere in the wrap chain and
// falls back to the concrete type name.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	code := ""
	var c coder
	if errors.As(err, &c) {
		code = strings.TrimSpace(c.Code())
	}
	if code == "" {
		t := reflect.TypeOf(err)
		for t != nil && t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t == nil || t.Name() == "" {
			return "UNKNOWN_ERROR"
		}
		code = t.Name()
	}
	return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
}
