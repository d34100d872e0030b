package telegram

import (
	"errors"
	"net"
	"net/http"
	"os"
	"slices"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"

	tele "gopkg.in/telebot.v4"
)

func TestBuildPoller(t *testing.T) {
	p, err := BuildPoller(PollerOptions{RunMode: "LongPoll"})
	if err != nil {
		t.Fatalf("long poller: %v", err)
	}
	lp, ok := p.(*tele.LongPoller)
	if !ok || lp.Timeout != 10*time.Second {
		t.Fatalf("expected 10s long poller, got %#v", p)
	}
	if !slices.Equal(lp.AllowedUpdates, ShopUpdates) {
		t.Fatalf("allowed updates = %v", lp.AllowedUpdates)
	}

	p, err = BuildPoller(PollerOptions{
		RunMode: coreconfig.RunModeWebhook,
		Webhook: WebhookOptions{Listen: "0.0.0.0", Port: 8443, URL: "https://bot.example.com/hook", SecretToken: "s3cret"},
	})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	wh, ok := p.(*tele.Webhook)
	if !ok || wh.Listen != "0.0.0.0:8443" || wh.Endpoint.PublicURL != "https://bot.example.com/hook" {
		t.Fatalf("unexpected webhook poller %#v", p)
	}
	if wh.SecretToken != "s3cret" || !slices.Equal(wh.AllowedUpdates, ShopUpdates) {
		t.Fatalf("webhook secret or updates not set: %#v", wh)
	}

	if _, err := BuildPoller(PollerOptions{RunMode: coreconfig.RunModeWebhook}); err == nil {
		t.Fatal("expected an error for a webhook without URL")
	}
}

func TestBuildHTTPClientOutlastsLongPoll(t *testing.T) {
	client := BuildHTTPClient(25 * time.Second)
	if client.Timeout <= 25*time.Second {
		t.Fatalf("client timeout %s must exceed the long poll", client.Timeout)
	}
	rt, ok := client.Transport.(*retryTransport)
	if !ok {
		t.Fatalf("expected retry transport, got %T", client.Transport)
	}
	tr, ok := rt.base.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", rt.base)
	}
	if tr.ResponseHeaderTimeout <= 25*time.Second {
		t.Fatalf("header timeout %s must exceed the long poll", tr.ResponseHeaderTimeout)
	}

	plain := BuildHTTPClient(0)
	if plain.Timeout != defaultClientTimeout {
		t.Fatalf("expected default timeout, got %s", plain.Timeout)
	}
}

type scriptedTransport struct {
	errs  []error
	calls int
}

func (s *scriptedTransport) RoundTrip(*http.Request) (*http.Response, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func TestRetryTransportKeepsSendsAtMostOnce(t *testing.T) {
	timeout := &net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded}
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	cases := []struct {
		method string
		err    error
		calls  int
		ok     bool
	}{
		{"sendMessage", refused, 2, true},
		{"sendMessage", timeout, 1, false},
		{"getUpdates", timeout, 2, true},
		{"sendMessage", errors.New("boom"), 1, false},
	}
	for _, tc := range cases {
		st := &scriptedTransport{errs: []error{tc.err}}
		rt := &retryTransport{base: st, maxRetries: 2}
		req, _ := http.NewRequest(http.MethodPost, "https://api.telegram.org/botTOKEN/"+tc.method, nil)
		resp, err := rt.RoundTrip(req)
		if (err == nil) != tc.ok || st.calls != tc.calls {
			t.Fatalf("%s after %v: calls=%d err=%v", tc.method, tc.err, st.calls, err)
		}
		if resp != nil {
			resp.Body.Close()
		}
	}
}
