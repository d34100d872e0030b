package logger

import "strings"

// Level names written to the level field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

const redacted = "[redacted]"

// vocab is a closed set of values for one field. Values outside the set are
// either kept verbatim or dropped, depending on strict.
type vocab struct {
	values map[string]string
	strict bool
}

func newVocab(strict bool, values ...string) vocab {
	v := vocab{values: make(map[string]string, len(values)), strict: strict}
	for _, s := range values {
		v.values[s] = s
	}
	return v
}

func (v vocab) alias(from, to string) vocab {
	v.values[from] = to
	return v
}

// normalize returns the canonical value and whether the field is kept.
func (v vocab) normalize(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	if canon, ok := v.values[s]; ok {
		return canon, true
	}
	return s, !v.strict
}

// enumerations lists the fields whose values are normalized before output.
var enumerations = map[string]vocab{
	"status": newVocab(false, "ok", "fail", "skip", "retry", "rate_limited", "cancelled").
		alias("error", "fail").
		alias("canceled", "cancelled"),
	"outcome": newVocab(true, "ok", "fail", "rejected", "cancelled", "rate_limited"),
	"decision": newVocab(true, "approve", "reject").
		alias("approved", "approve").
		alias("rejected", "reject"),
	"order_status": newVocab(true, "pending", "approved", "rejected"),
	"kind":         newVocab(false, "photo", "document"),
}

// sensitiveKeys never reach the output in clear text. A fulfillment link is
// what the customer pays for.
var sensitiveKeys = map[string]struct{}{
	"link":             {},
	"fulfillment_link": {},
	"token":            {},
	"bot_token":        {},
	"secret_token":     {},
	"password":         {},
	"secret":           {},
}

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	}
	return strings.ToUpper(level)
}

// defaultKeyOrder puts the envelope first, then the order being worked on,
// then the Telegram update it came from, then transport and error details.
var defaultKeyOrder = []string{
	// envelope
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "trace_id", "span_id", "ts_unix_nano",

	// order ledger
	"order_id", "order_status", "decision", "requester_id", "decider_id",
	"recipient_id", "product", "price", "purpose", "kind",
	"pending_count", "orders_total", "visitors_total",

	// telegram update
	"update_id", "user_id", "chat_id", "chat_type", "handler",
	"operation", "op", "cb_key", "outcome", "duration_ms",
	"messages", "kb", "count", "payload", "lang", "username",

	// transport and infra
	"mode", "listen", "public_url", "http_code", "db", "host", "port",
	"driver", "topic", "brokers",

	// failure details
	"err", "err_code", "cause", "retryable", "attempts", "backoff_ms",
	"rate_limited", "collapsed", "repeats",
}
