package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// MaxFloodWait caps how long a job honours a 429 retry_after before
	// giving up.
	MaxFloodWait time.Duration
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes outbound Telegram calls with retries, either queued
// (Enqueue) or inline (Do).
type Dispatcher struct {
	opts Options
	jobs chan job
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	errs atomic.Uint64
}

// NewDispatcher starts a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}
	if opts.MaxFloodWait <= 0 {
		opts.MaxFloodWait = opts.MaxDuration
	}

	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}

	return d
}

// Enqueue schedules the provided function for asynchronous execution.
// The run closure must be idempotent if retries are desired.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}

	j := job{
		ctx:      ctx,
		action:   action,
		endpoint: endpoint,
		run:      run,
	}

	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Do runs the call synchronously with the dispatcher's retry policy and
// returns the last error. It honours ctx cancellation between attempts.
func (d *Dispatcher) Do(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	return d.execute(job{ctx: ctx, action: action, endpoint: endpoint, run: run})
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops workers and waits for them to finish processing queued jobs.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.stop)
		close(d.jobs)
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		_ = d.execute(j)
	}
}

// execute runs j until it succeeds, fails permanently, exhausts its
// attempts or runs out of MaxDuration. Request metadata (rid, chat, order)
// reaches the log lines through ctx.
func (d *Dispatcher) execute(j job) error {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	base := []slog.Attr{slog.String("action", j.action), slog.String("endpoint", j.endpoint)}
	logger.Debug(ctx, component, "send.start", base...)

	var (
		err     error
		attempt int
		failure netutil.Failure
	)
	for attempt = 1; attempt <= attempts; attempt++ {
		if err = runCtx.Err(); err != nil {
			failure = netutil.Classify(err)
			break
		}
		if err = j.run(); err == nil {
			level := logger.Debug
			if attempt > 1 {
				level = logger.Info
			}
			level(ctx, component, "send.success", append(base,
				slog.Int("attempts", attempt),
				slog.Duration("duration", logger.Took(start)),
			)...)
			return nil
		}

		failure = netutil.Classify(err)
		if !failure.Retry || attempt == attempts {
			break
		}
		delay := d.opts.RetryBackoff * time.Duration(attempt)
		if failure.After > 0 {
			if failure.After > d.opts.MaxFloodWait {
				break
			}
			delay = failure.After
		}
		logger.Debug(ctx, component, "send.retry", append(base,
			slog.Int("attempt", attempt),
			slog.String("cause", failure.Kind),
			slog.Duration("backoff", delay),
		)...)
		if !sleep(runCtx, delay) {
			err = runCtx.Err()
			failure = netutil.Classify(err)
			break
		}
	}

	d.errs.Add(1)
	logger.Error(ctx, component, "send.fail", append(base,
		slog.String("err", err.Error()),
		slog.String("err_code", failure.Kind),
		slog.Bool("retryable", failure.Retry),
		slog.Int("attempts", min(attempt, attempts)),
		slog.Duration("duration", logger.Took(start)),
	)...)
	return err
}

const component = "tg.sender"

// sleep waits for d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
