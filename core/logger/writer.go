package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// sink is one output of the async writer. A sink that failed once is
// skipped afterwards so a broken log file never silences stdout.
type sink struct {
	buf *bufio.Writer
	err error
}

// asyncWriter copies log lines to every sink from a single goroutine.
type asyncWriter struct {
	lines   chan []byte
	flushes chan chan error
	stopped chan struct{}

	gate   sync.RWMutex
	closed bool

	mu    sync.Mutex
	sinks []*sink
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	w := &asyncWriter{
		lines:   make(chan []byte, 256),
		flushes: make(chan chan error),
		stopped: make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, &sink{buf: bufio.NewWriterSize(out, bufSize)})
		}
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.stopped)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.flush()
				return
			}
			w.write(line)
		case ack := <-w.flushes:
			ack <- w.flush()
		}
	}
}

// Write queues a copy of p. It blocks when the queue is full rather than
// drop a line, and fails only once every sink has failed.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := w.deadErr(); err != nil {
		return err
	}
	w.gate.RLock()
	defer w.gate.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush waits until queued lines reach the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return <-ack
	case <-w.stopped:
		return w.sinkErrs()
	}
}

// Close drains the queue and returns the sink errors seen so far.
func (w *asyncWriter) Close() error {
	w.gate.Lock()
	if !w.closed {
		w.closed = true
		close(w.lines)
	}
	w.gate.Unlock()
	<-w.stopped
	return w.sinkErrs()
}

func (w *asyncWriter) write(line []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if s.err != nil {
			continue
		}
		if _, err := s.buf.Write(line); err != nil {
			s.err = err
			continue
		}
		s.err = s.buf.Flush()
	}
}

func (w *asyncWriter) flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if s.err == nil {
			s.err = s.buf.Flush()
		}
	}
	return w.joinLocked()
}

func (w *asyncWriter) sinkErrs() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.joinLocked()
}

func (w *asyncWriter) joinLocked() error {
	var errs []error
	for _, s := range w.sinks {
		if s.err != nil {
			errs = append(errs, s.err)
		}
	}
	return errors.Join(errs...)
}

// deadErr is non-nil when no sink can take output any more.
func (w *asyncWriter) deadErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.sinks) == 0 {
		return nil
	}
	for _, s := range w.sinks {
		if s.err == nil {
			return nil
		}
	}
	return w.joinLocked()
}
