package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/shopbot/core/buildinfo"
	coreconfig "github.com/m3rciful/shopbot/core/config"
)

var (
	initOnce   sync.Once
	shutdownMu sync.Mutex
	shutdowned bool

	logWriter  *asyncWriter
	errWriter  *asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	debugSampler = newEventSampler(1, 50)

	// L is the base logger. It discards output until InitLogger runs.
	L *slog.Logger

	// DB logs database connectivity.
	DB *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// MIG logs schema migrations.
	MIG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
	// SVCOrders logs the order workflow.
	SVCOrders *slog.Logger
	// SVCCatalog logs catalog loading.
	SVCCatalog *slog.Logger
	// Events logs lifecycle event publishing.
	Events *slog.Logger
	// HTTP logs the status server.
	HTTP *slog.Logger
)

func init() {
	L = slog.New(slog.DiscardHandler)
	wireComponents()
}

// InitLogger configures the global structured logger. It may be called only once.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		levelVar.Set(selectLevel(cfg))
		debugSampler.Set(parseDebugSample(cfg))
		debugSampler.Force(detectTraceFlag())

		sinks, err := openSinks(cfg)
		if err != nil {
			initErr = err
			return
		}
		logClosers = sinks.closers
		logWriter = newAsyncWriter(sinks.main, 64*1024)
		if sinks.errors != nil {
			errWriter = newAsyncWriter([]io.Writer{sinks.errors}, 16*1024)
		}

		L = slog.New(newStructuredHandler(handlerConfig{
			level:     &levelVar,
			writer:    logWriter,
			format:    selectFormat(cfg),
			keyOrder:  selectKeyOrder(cfg),
			sampler:   debugSampler,
			errWriter: errWriter,
		}))
		slog.SetDefault(L)

		wireComponents()
		logStartup(cfg)
	})
	return initErr
}

func wireComponents() {
	DB = L.With("component", "db")
	TG = L.With("component", "tg")
	MIG = L.With("component", "db.migrate")
	TWire = L.With("component", "tg.wire")
	SVCOrders = L.With("component", "service.orders")
	SVCCatalog = L.With("component", "service.catalog")
	Events = L.With("component", "events")
	HTTP = L.With("component", "http")
}

func logStartup(cfg *coreconfig.Config) {
	if L == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("component", "app"),
		slog.String("event", "startup"),
		slog.String("go_version", runtime.Version()),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
	}
	if cfg != nil {
		attrs = append(attrs,
			slog.String("cfg_profile", selectProfile(cfg)),
		)
	}
	L.LogAttrs(context.Background(), slog.LevelInfo, "startup", attrs...)
}

// Shutdown flushes buffered log output and closes opened sinks.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdowned {
		return nil
	}
	shutdowned = true

	var errs []error
	for _, w := range []*asyncWriter{logWriter, errWriter} {
		if w != nil {
			errs = append(errs, w.Flush(), w.Close())
		}
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

var formats = map[string]logFormat{
	"json":   formatJSON,
	"kv":     formatKV,
	"text":   formatKV,
	"pretty": formatKV,
}

// selectFormat honours logging.format and otherwise picks kv for the debug
// and dev profiles, JSON elsewhere.
func selectFormat(cfg *coreconfig.Config) logFormat {
	if cfg == nil {
		return formatJSON
	}
	if f, ok := formats[strings.ToLower(strings.TrimSpace(cfg.Logging.Format))]; ok {
		return f
	}
	switch selectProfile(cfg) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

// selectKeyOrder reads logging.keys_order, a comma separated key list.
func selectKeyOrder(cfg *coreconfig.Config) []string {
	var order []string
	if cfg != nil && strings.TrimSpace(cfg.Logging.KeysOrder) != "default" {
		order = strings.FieldsFunc(cfg.Logging.KeysOrder, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
	}
	if len(order) == 0 {
		return slices.Clone(defaultKeyOrder)
	}
	return order
}

// selectLevel parses logging.level; unknown values mean INFO.
func selectLevel(cfg *coreconfig.Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	raw := strings.TrimSpace(cfg.Logging.Level)
	if strings.EqualFold(raw, "warning") {
		raw = "warn"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

type sinkSet struct {
	main    []io.Writer
	errors  io.Writer
	closers []io.Closer
}

// openSinks returns stdout plus the bot log file, and the errors log file
// when one is configured under logging.dir.
func openSinks(cfg *coreconfig.Config) (sinkSet, error) {
	set := sinkSet{main: []io.Writer{os.Stdout}}
	if cfg == nil {
		return set, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	botFile := strings.TrimSpace(cfg.Logging.BotFile)
	errFile := strings.TrimSpace(cfg.Logging.ErrorsFile)
	if dir == "" || (botFile == "" && errFile == "") {
		return set, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return set, fmt.Errorf("logger: create %s: %w", dir, err)
	}
	open := func(name string) (*os.File, error) {
		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logger: open %s: %w", name, err)
		}
		set.closers = append(set.closers, f)
		return f, nil
	}
	if botFile != "" {
		f, err := open(botFile)
		if err != nil {
			return set, err
		}
		set.main = append(set.main, f)
	}
	if errFile != "" && errFile != botFile {
		f, err := open(errFile)
		if err != nil {
			return set, err
		}
		set.errors = f
	}
	return set, nil
}

func selectProfile(cfg *coreconfig.Config) string {
	if cfg == nil {
		return ""
	}
	if profile := strings.TrimSpace(cfg.Logging.Profile); profile != "" {
		return strings.ToLower(profile)
	}
	return "prod"
}

// Background returns a fresh root context for call sites without one.
func Background() context.Context {
	return context.Background()
}

// LogEvent logs attrs with the event attribute first.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		logg = L
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component constructs a logger scoped to the provided component attribute.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return L
	}
	return L.With("component", trimmed)
}

// Event logs with component scope resolved automatically.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := Component(component)
	if logg == nil {
		logg = FromContext(ctx)
		if logg != nil && strings.TrimSpace(component) != "" {
			logg = logg.With("component", strings.TrimSpace(component))
		}
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// parseDebugSample reads logging.debug_sample; unset or invalid values fall
// back to 1/50 and "0" disables sampling.
func parseDebugSample(cfg *coreconfig.Config) (int, int) {
	if cfg == nil {
		return 1, 50
	}
	num, den, ok := parseRatio(cfg.Logging.DebugSample)
	if !ok {
		return 1, 50
	}
	if num == 0 && den == 0 {
		return 0, 0
	}
	if num <= 0 || den <= 0 {
		return 1, 50
	}
	return num, den
}

func detectTraceFlag() bool {
	for _, key := range []string{"TRACE", "LOG_TRACE"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "on", "yes":
			return true
		}
	}
	return false
}
