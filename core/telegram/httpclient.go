package telegram

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/netutil"
)

const (
	defaultDialTimeout       = 5 * time.Second
	defaultTLSHandshake      = 5 * time.Second
	defaultIdleConnTimeout   = 30 * time.Second
	defaultResponseTimeout   = 5 * time.Second
	defaultClientTimeout     = 30 * time.Second
	defaultKeepAliveInterval = 30 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryBackoff      = 2 * time.Second
)

var errNoReplay = errors.New("telegram: request body cannot be replayed")

// readOnlyMethods are Bot API calls that may be repeated after the request
// possibly reached Telegram. Anything else, such as sendMessage, is only
// retried when the connection was never established, so a buyer is not
// sent the same message twice.
var readOnlyMethods = map[string]struct{}{
	"getUpdates": {},
	"getMe":      {},
	"getFile":    {},
	"getChat":    {},
}

// BuildHTTPClient returns an HTTP client tuned for Telegram API calls.
// longPoll is the getUpdates wait; header and overall timeouts are extended
// past it so idle polls are not cut short.
func BuildHTTPClient(longPoll time.Duration) *http.Client {
	longPoll = max(longPoll, 0)
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAliveInterval}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: defaultResponseTimeout + longPoll,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout: defaultClientTimeout + longPoll,
		Transport: &retryTransport{
			base:       transport,
			maxRetries: defaultRetryAttempts,
			backoff:    defaultRetryBackoff,
		},
	}
}

// retryTransport repeats Bot API requests that failed below HTTP.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

// canRetry reports whether a failed call of method may be sent again.
func canRetry(method string, f netutil.Failure) bool {
	if !f.Retry {
		return false
	}
	if _, ok := readOnlyMethods[method]; ok {
		return true
	}
	return f.Kind == "dial"
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	ctx := req.Context()
	method := path.Base(req.URL.Path)

	for attempt := 1; ; attempt++ {
		resp, err := base.RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		failure := netutil.Classify(err)
		if attempt > t.maxRetries || !canRetry(method, failure) {
			return nil, err
		}
		next, rerr := rewind(req)
		if rerr != nil {
			return nil, err
		}
		delay := t.backoff * time.Duration(attempt)
		logger.Debug(ctx, "tg.http", "http.retry",
			slog.String("endpoint", method),
			slog.String("cause", failure.Kind),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
		)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		req = next
	}
}

// rewind clones req with a fresh body for another attempt.
func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return next, nil
	}
	if req.GetBody == nil {
		return nil, errNoReplay
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	next.Body = body
	return next, nil
}
