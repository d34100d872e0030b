package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/shopbot/internal/visitor"
)

// Visitors stores /start visitors in the visitors table.
type Visitors struct {
	db *sqlx.DB
}

var _ visitor.Store = (*Visitors)(nil)

func NewVisitors(db *sqlx.DB) *Visitors {
	return &Visitors{db: db}
}

// Register inserts the visitor once; ON CONFLICT makes repeat visits a no-op.
func (s *Visitors) Register(ctx context.Context, v visitor.Visitor) (bool, error) {
	const query = `
INSERT INTO visitors (user_id, username, first_name, first_seen)
VALUES (:user_id, :username, :first_name, :first_seen)
ON CONFLICT (user_id) DO NOTHING`

	if v.SeenAt.IsZero() {
		v.SeenAt = time.Now().UTC()
	}
	res, err := s.db.NamedExecContext(ctx, query, map[string]any{
		"user_id":    v.UserID,
		"username":   v.Username,
		"first_name": v.FirstName,
		"first_seen": v.SeenAt,
	})
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Visitors) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM visitors`)
	return n, err
}
