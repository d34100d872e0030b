package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

// floodWait carries a FloodError with a printable message.
type floodWait struct{ after int }

func (f floodWait) Error() string { return "telegram: Too Many Requests" }
func (f floodWait) Unwrap() error { return tele.FloodError{RetryAfter: f.after} }

func dialErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	defer d.Close()

	var calls atomic.Int32
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error {
		if calls.Add(1) < 3 {
			return dialErr()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestDoReturnsPermanentError(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	defer d.Close()

	permanent := &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}
	var calls atomic.Int32
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls.Add(1)
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("permanent errors must not be retried, got %d attempts", calls.Load())
	}
	if d.ErrorCount() != 1 {
		t.Fatalf("expected error count 1, got %d", d.ErrorCount())
	}
}

func TestDoHonoursCancelledContext(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Do(ctx, "send.text", "sendMessage", func() error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEnqueueRunsAndCloseDrains(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2, QueueSize: 8})

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if err := d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	d.Close()
	if ran.Load() != 5 {
		t.Fatalf("expected 5 jobs to run, got %d", ran.Load())
	}
	if err := d.Enqueue(context.Background(), "send.text", "", func() error { return nil }); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestDoWaitsForFloodRetryAfter(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 1, RetryBackoff: time.Millisecond, MaxDuration: 3 * time.Second})
	defer d.Close()

	var calls atomic.Int32
	start := time.Now()
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error {
		if calls.Add(1) == 1 {
			return floodWait{after: 1}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after the flood wait, got %v", err)
	}
	if waited := time.Since(start); waited < time.Second {
		t.Fatalf("retry_after not honoured, waited %s", waited)
	}
}

func TestDoGivesUpOnLongFloodWait(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond, MaxFloodWait: time.Second})
	defer d.Close()

	var calls atomic.Int32
	err := d.Do(context.Background(), "send.text", "sendMessage", func() error {
		calls.Add(1)
		return floodWait{after: 30}
	})
	if err == nil || calls.Load() != 1 {
		t.Fatalf("expected a single attempt and an error, got %d attempts, err %v", calls.Load(), err)
	}
}
