package router

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
)

type codedErr struct{ code string }

func (e *codedErr) Error() string { return "coded" }
func (e *codedErr) Code() string  { return e.code }

type plainErr struct{}

func (plainErr) Error() string { return "plain" }

func TestDeriveErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&codedErr{code: "not_found"}, "NOT_FOUND"},
		{fmt.Errorf("decide: %w", &codedErr{code: "conflict"}), "CONFLICT"},
		{plainErr{}, "PLAINERR"},
		{errors.New("x"), "ERRORSTRING"},
	}
	for _, tc := range cases {
		if got := deriveErrorCode(tc.err); got != tc.want {
			t.Fatalf("deriveErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestNormalizeHandlerName(t *testing.T) {
	if got := normalizeHandlerName("/Pending Orders"); got != "pending_orders" {
		t.Fatalf("got %q", got)
	}
	if got := normalizeHandlerName("  "); got != "unknown" {
		t.Fatalf("got %q", got)
	}
}

type refusedErr struct{ refused bool }

func (e refusedErr) Error() string { return "refused" }
func (e refusedErr) Refused() bool { return e.refused }

func TestSummarize(t *testing.T) {
	cases := []struct {
		err             error
		status, outcome string
		level           slog.Level
	}{
		{nil, "ok", "ok", slog.LevelInfo},
		{fmt.Errorf("decide: %w", refusedErr{refused: true}), "ok", "rejected", slog.LevelInfo},
		{refusedErr{}, "fail", "fail", slog.LevelWarn},
		{errors.New("db down"), "fail", "fail", slog.LevelWarn},
	}
	for _, tc := range cases {
		status, outcome, level := summarize(tc.err)
		if status != tc.status || outcome != tc.outcome || level != tc.level {
			t.Fatalf("summarize(%v) = %s/%s/%s", tc.err, status, outcome, level)
		}
	}
}
