package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/shopbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of the same user.
	Interval time.Duration
	// Exclude lists update kinds (see UpdateKind) that are never limited.
	Exclude map[string]struct{}
	// Exempt users, such as the administrator working through the
	// pending queue, are never limited.
	Exempt    func(userID int64) bool
	OnLimited tele.HandlerFunc
}

// pruneEvery bounds the size of the last-seen table between sweeps.
const pruneEvery = 1024

type limiter struct {
	interval time.Duration
	mu       sync.Mutex
	lastSeen map[int64]time.Time
}

// allow records an update of user at now and reports whether it keeps the
// minimum interval to the previous one.
func (l *limiter) allow(user int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastSeen[user]; ok && now.Sub(last) < l.interval {
		return false
	}
	if len(l.lastSeen) >= pruneEvery {
		for id, seen := range l.lastSeen {
			if now.Sub(seen) >= l.interval {
				delete(l.lastSeen, id)
			}
		}
	}
	l.lastSeen[user] = now
	return true
}

// RateLimitMiddleware drops updates that arrive faster than opts.Interval
// per user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	lim := &limiter{interval: opts.Interval, lastSeen: make(map[int64]time.Time)}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			switch {
			case user == nil || opts.Interval <= 0:
				return next(c)
			case opts.Exempt != nil && opts.Exempt(user.ID):
				return next(c)
			}
			kind := UpdateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if lim.allow(user.ID, time.Now()) {
				return next(c)
			}

			attrs := []slog.Attr{slog.Int64("user_id", user.ID), slog.String("kind", kind)}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs, slog.Int64("chat_id", chat.ID))
			}
			logger.Warn(logger.Background(), "tg", "tg.rate_limit", attrs...)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
