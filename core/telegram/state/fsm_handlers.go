package state

import (
	"sync"

	tele "gopkg.in/telebot.v4"
)

// handlers maps states to their handlers.
type handlers struct {
	mu sync.RWMutex
	m  map[State]tele.HandlerFunc
}

func (h *handlers) set(st State, fn tele.HandlerFunc) {
	if fn == nil || st == StateIdle {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.m == nil {
		h.m = make(map[State]tele.HandlerFunc)
	}
	h.m[st] = fn
}

func (h *handlers) get(st State) (tele.HandlerFunc, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	fn, ok := h.m[st]
	return fn, ok
}
