package memory

import (
	"context"
	"sync"

	"github.com/m3rciful/shopbot/internal/visitor"
)

// Visitors is an in-process visitor.Store.
type Visitors struct {
	mu   sync.Mutex
	seen map[int64]visitor.Visitor
}

var _ visitor.Store = (*Visitors)(nil)

func NewVisitors() *Visitors {
	return &Visitors{seen: make(map[int64]visitor.Visitor)}
}

func (s *Visitors) Register(_ context.Context, v visitor.Visitor) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[v.UserID]; ok {
		return false, nil
	}
	s.seen[v.UserID] = v
	return true, nil
}

func (s *Visitors) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen), nil
}
