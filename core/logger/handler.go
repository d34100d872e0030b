package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

// botTokenRE matches Bot API tokens as they appear in request URLs carried
// by transport errors.
var botTokenRE = regexp.MustCompile(`bot\d{5,}:[A-Za-z0-9_-]{20,}`)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
	// sampler thins debug records; nil keeps all of them.
	sampler *eventSampler
	// errWriter, when set, also receives every WARN and ERROR line.
	errWriter *asyncWriter
}

type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	groups []string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return fmt.Errorf("logger: writer not initialized")
	}

	fields := make(fieldSet, 16)
	for _, a := range h.attrs {
		h.collect(fields, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.collect(fields, a)
		return true
	})
	contextFields(ctx, fields)

	event := fields.str("event")
	if event == "" {
		event = r.Message
		if event == "" {
			event = "unknown"
		}
		fields["event"] = event
	}
	if r.Level < slog.LevelInfo && h.cfg.sampler != nil && !h.cfg.sampler.Allow(event) {
		return nil
	}
	fields.setDefault("component", "app")

	ts := r.Time.UTC()
	fields["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	fields["level"] = normalizeLevel(r.Level.String())

	isJSON := h.cfg.format == formatJSON
	if isJSON {
		fields["ts_unix_nano"] = ts.UnixNano()
	}
	if rid := fields.str("rid"); rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if isJSON {
				fields.setDefault("rid_full", rid)
			}
			fields["rid"] = compact
		}
	}

	fields.normalize()
	fields.redact()

	var line []byte
	keys := fields.orderedKeys(h.cfg.keyOrder)
	if isJSON {
		var err error
		if line, err = encodeJSON(fields, keys); err != nil {
			return err
		}
	} else {
		line = encodeKV(fields, keys)
	}
	line = append(line, '\n')
	if err := h.cfg.writer.Write(line); err != nil {
		return err
	}
	if h.cfg.errWriter != nil && r.Level >= slog.LevelWarn {
		return h.cfg.errWriter.Write(line)
	}
	return nil
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func (h *structuredHandler) collect(fields fieldSet, attr slog.Attr) {
	prefix := strings.Join(h.groups, ".")
	walkAttr(prefix, attr, func(key string, v slog.Value) {
		if k, val, ok := attrValue(key, v); ok {
			fields[k] = val
		}
	})
}

// walkAttr flattens groups into dotted keys.
func walkAttr(prefix string, attr slog.Attr, fn func(string, slog.Value)) {
	key := attr.Key
	switch {
	case key == "":
		key = prefix
	case prefix != "":
		key = prefix + "." + key
	}
	v := attr.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			walkAttr(key, child, fn)
		}
		return
	}
	if key != "" {
		fn(key, v)
	}
}

// attrValue converts a slog value into a JSON-friendly value. Durations are
// written as whole milliseconds under a *_ms key.
func attrValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	case string:
		return key, strings.TrimSpace(x), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	default:
		return key + "_ms"
	}
}

// fieldSet holds the flattened fields of one record.
type fieldSet map[string]any

// setDefault stores v under key unless the key is present or v is empty.
func (f fieldSet) setDefault(key string, v any) {
	if _, ok := f[key]; ok {
		return
	}
	if s, ok := v.(string); ok && s == "" {
		return
	}
	f[key] = v
}

func (f fieldSet) str(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// normalize maps enumerated fields to their canonical values and drops
// empty strings.
func (f fieldSet) normalize() {
	for key, voc := range enumerations {
		raw, ok := f[key].(string)
		if !ok {
			continue
		}
		if canon, keep := voc.normalize(raw); keep {
			f[key] = canon
		} else {
			delete(f, key)
		}
	}
	for k, v := range f {
		if s, ok := v.(string); ok && s == "" {
			delete(f, k)
		}
	}
}

// redact hides sensitive values and scrubs bot tokens out of free text.
func (f fieldSet) redact() {
	for k, v := range f {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if _, secret := sensitiveKeys[leafKey(k)]; secret {
			f[k] = redacted
			continue
		}
		if strings.Contains(s, "bot") {
			f[k] = botTokenRE.ReplaceAllString(s, "bot"+redacted)
		}
	}
}

func leafKey(k string) string {
	if i := strings.LastIndexByte(k, '.'); i >= 0 {
		return k[i+1:]
	}
	return k
}

// orderedKeys lists keys from order first, then the rest alphabetically.
func (f fieldSet) orderedKeys(order []string) []string {
	keys := make([]string, 0, len(f))
	seen := make(map[string]struct{}, len(order))
	for _, k := range order {
		if _, ok := f[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	rest := make([]string, 0, len(f)-len(keys))
	for k := range f {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func encodeJSON(f fieldSet, keys []string) ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, '{')
	for i, k := range keys {
		data, err := json.Marshal(f[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, k)
		buf = append(buf, ':')
		buf = append(buf, data...)
	}
	return append(buf, '}'), nil
}

func encodeKV(f fieldSet, keys []string) []byte {
	buf := make([]byte, 0, 256)
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = appendKVValue(buf, f[k])
	}
	return buf
}

func appendKVValue(buf []byte, v any) []byte {
	switch x := v.(type) {
	case bool:
		return strconv.AppendBool(buf, x)
	case int64:
		return strconv.AppendInt(buf, x, 10)
	case float64:
		return strconv.AppendFloat(buf, x, 'g', -1, 64)
	}
	s := fmt.Sprint(v)
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0 {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}
