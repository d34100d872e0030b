package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		kind  string
		retry bool
		after time.Duration
	}{
		{"nil", nil, "", false, 0},
		{"flood", tele.FloodError{RetryAfter: 3}, "flood", true, 3 * time.Second},
		{"blocked", &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}, "http_4xx", false, 0},
		{"bad gateway", fmt.Errorf("send: %w", &tele.Error{Code: 502}), "http_5xx", true, 0},
		{"deadline", context.DeadlineExceeded, "timeout", true, 0},
		{"cancelled", context.Canceled, "cancelled", false, 0},
		{"dial", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")}, "dial", true, 0},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.telegram.org"}, "dns", false, 0},
		{"other", errors.New("boom"), "unknown", false, 0},
	}
	for _, tc := range cases {
		f := Classify(tc.err)
		if f.Kind != tc.kind || f.Retry != tc.retry || f.After != tc.after {
			t.Fatalf("%s: got %+v", tc.name, f)
		}
		if ShouldRetry(tc.err) != tc.retry {
			t.Fatalf("%s: ShouldRetry disagrees with Classify", tc.name)
		}
	}
}
