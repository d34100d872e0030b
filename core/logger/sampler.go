package logger

import (
	"strconv"
	"strings"
	"sync"
)

// exemptEvents are debug events that always pass sampling: anything about
// an order is rare and needed to reconstruct a purchase.
var exemptEvents = []string{"order.", "proof.", "notify", "event.publish"}

// eventSampler lets through numerator out of every denominator debug events,
// except exempt ones.
type eventSampler struct {
	mu      sync.Mutex
	num     int
	den     int
	seen    int
	exempt  []string
	forceOn bool
}

func newEventSampler(num, den int) *eventSampler {
	s := &eventSampler{exempt: exemptEvents}
	s.Set(num, den)
	return s
}

// Set changes the ratio. A non-positive part disables sampling.
func (s *eventSampler) Set(num, den int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if num <= 0 || den <= 0 {
		num, den = 0, 0
	}
	s.num, s.den, s.seen = min(num, den), den, 0
}

// Force makes every event pass, e.g. while tracing a problem.
func (s *eventSampler) Force(on bool) {
	s.mu.Lock()
	s.forceOn = on
	s.mu.Unlock()
}

// Allow reports whether event should be logged.
func (s *eventSampler) Allow(event string) bool {
	for _, p := range s.exempt {
		if strings.HasPrefix(event, p) {
			return true
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forceOn || s.den == 0 {
		return true
	}
	s.seen = s.seen%s.den + 1
	return s.seen <= s.num
}

// parseRatio reads "n/d" or "d" (meaning 1/d). ok is false for input that
// is neither; "0" parses as disabled.
func parseRatio(raw string) (num, den int, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0, false
	}
	left, right, hasSlash := strings.Cut(raw, "/")
	if !hasSlash {
		d, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, false
		}
		if d <= 0 {
			return 0, 0, true
		}
		return 1, d, true
	}
	n, err1 := strconv.Atoi(strings.TrimSpace(left))
	d, err2 := strconv.Atoi(strings.TrimSpace(right))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return n, d, true
}
