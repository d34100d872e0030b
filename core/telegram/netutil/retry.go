// Package netutil classifies Bot API call failures for the retry loops of
// the HTTP client and the sender.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Failure describes how a failed call should be treated.
type Failure struct {
	// Kind is a short label for logs: timeout, dial, dns, tls, flood,
	// http_5xx, http_4xx or unknown.
	Kind string
	// Retry is true for transient failures.
	Retry bool
	// After is the wait Telegram asked for, zero when it did not.
	After time.Duration
}

// Classify inspects err. A nil error yields the zero Failure.
func Classify(err error) Failure {
	if err == nil {
		return Failure{}
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return Failure{Kind: "flood", Retry: true, After: time.Duration(flood.RetryAfter) * time.Second}
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return byStatus(apiErr.Code)
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return byStatus(http.StatusBadRequest)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Failure{Kind: "timeout", Retry: true}
	}
	if errors.Is(err, context.Canceled) {
		return Failure{Kind: "cancelled"}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Failure{Kind: "dns", Retry: dnsErr.IsTimeout || dnsErr.IsTemporary}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case opErr.Timeout():
			return Failure{Kind: "timeout", Retry: true}
		case opErr.Op == "dial":
			return Failure{Kind: "dial", Retry: true}
		}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return Failure{Kind: "timeout", Retry: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Failure{Kind: "timeout", Retry: true}
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return Failure{Kind: "tls"}
	}
	return Failure{Kind: "unknown"}
}

func byStatus(code int) Failure {
	switch {
	case code == http.StatusTooManyRequests:
		return Failure{Kind: "flood", Retry: true}
	case code >= 500:
		return Failure{Kind: "http_5xx", Retry: true}
	case code >= 400:
		return Failure{Kind: "http_4xx"}
	}
	return Failure{Kind: "unknown"}
}

// ShouldRetry reports whether err is transient.
func ShouldRetry(err error) bool {
	return Classify(err).Retry
}
