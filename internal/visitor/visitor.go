// Package visitor records users who opened the bot.
package visitor

import (
	"context"
	"time"
)

// Visitor is a user seen by /start.
type Visitor struct {
	UserID    int64
	Username  string
	FirstName string
	SeenAt    time.Time
}

// Store remembers visitors.
type Store interface {
	// Register records v and reports whether this was the first visit.
	Register(ctx context.Context, v Visitor) (first bool, err error)
	// Count returns the number of distinct visitors.
	Count(ctx context.Context) (int, error)
}
