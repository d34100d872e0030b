// Package app wires configuration, storage, the order workflow and the
// Telegram gateway into a runnable bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/shopbot/core/bootstrap"
	"github.com/m3rciful/shopbot/core/buildinfo"
	corecmd "github.com/m3rciful/shopbot/core/cmd"
	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/logger"
	coretelegram "github.com/m3rciful/shopbot/core/telegram"
	tgsender "github.com/m3rciful/shopbot/core/telegram/sender"
	"github.com/m3rciful/shopbot/internal/bot"
	"github.com/m3rciful/shopbot/internal/catalog"
	"github.com/m3rciful/shopbot/internal/events"
	"github.com/m3rciful/shopbot/internal/httpapi"
	"github.com/m3rciful/shopbot/internal/observability"
	"github.com/m3rciful/shopbot/internal/order"
	"github.com/m3rciful/shopbot/internal/payment"
	"github.com/m3rciful/shopbot/internal/storage/memory"
	"github.com/m3rciful/shopbot/internal/storage/postgres"
	redisstore "github.com/m3rciful/shopbot/internal/storage/redis"
	"github.com/m3rciful/shopbot/internal/visitor"

	tele "gopkg.in/telebot.v4"
)

const component = "app"

// Options override infrastructure constructors, mainly in tests.
type Options struct {
	NewBot     func(*coreconfig.Config) (*tele.Bot, error)
	LoggerInit func(*coreconfig.Config) error
}

// App owns every long-lived dependency of the bot process.
type App struct {
	cfg      *Config
	infra    *bootstrap.Result
	bot      *tele.Bot
	disp     *tgsender.Dispatcher
	registry *coretelegram.Registry
	workflow *order.Workflow
	handlers *bot.Handlers
	metrics  *observability.Metrics
	http     *httpapi.Server

	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

var _ corecmd.TelegramApp = (*App)(nil)

// LoadConfig adapts Load to the core runner.
func LoadConfig(path string) (corecmd.ConfigCarrier, error) {
	return Load(path)
}

// Bootstrap adapts New to the core runner.
func Bootstrap(ctx context.Context, carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	return New(ctx, cfg, Options{})
}

// New initializes logging, storage, the workflow and the Telegram handlers.
// On error everything acquired so far is released.
func New(ctx context.Context, cfg *Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if opts.NewBot == nil {
		opts.NewBot = coretelegram.NewBot
	}

	a := &App{cfg: cfg, registry: coretelegram.NewRegistry()}
	built := false
	defer func() {
		if !built {
			_ = a.Close()
		}
	}()

	var err error
	a.infra, err = bootstrap.Run(ctx, bootstrap.Options{
		Config:       &cfg.Config,
		Database:     cfg.Database,
		SkipDatabase: !cfg.UsesDatabase(),
		LoggerInit:   opts.LoggerInit,
	})
	if err != nil {
		return nil, err
	}
	a.onClose("database", a.infra.Close)

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Observability, buildinfo.Version)
	if err != nil {
		return nil, err
	}
	a.onClose("tracing", func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(sctx)
	})
	a.metrics = observability.NewMetrics()

	orders, visitors, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "service.catalog", "catalog.load",
		slog.String("status", "ok"),
		slog.String("path", cfg.Catalog.Path),
		slog.Int("products", cat.Len()),
	)

	pub, err := events.NewPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}
	a.onClose("events", pub.Close)

	a.bot, err = opts.NewBot(&cfg.Config)
	if err != nil {
		return nil, err
	}
	a.disp = tgsender.NewDispatcher(tgsender.Options{})
	a.onClose("dispatcher", func() error { a.disp.Close(); return nil })

	a.workflow, err = order.NewWorkflow(order.Options{
		Store:          orders,
		Gateway:        bot.NewGateway(a.bot, a.disp),
		AdminID:        cfg.Telegram.AdminID,
		Events:         events.NewSink(pub),
		Recorder:       a.metrics,
		Texts:          order.Texts{Currency: cfg.Orders.Currency},
		NotifyTimeout:  cfg.Orders.NotifyTimeout,
		PublishTimeout: cfg.Events.WriteTimeout,
	})
	if err != nil {
		return nil, err
	}

	a.handlers, err = bot.New(bot.Deps{
		Orders:       a.workflow,
		Catalog:      cat,
		Payments:     payment.NewBuilder(cfg.Payment),
		Visitors:     visitors,
		PendingLimit: cfg.Orders.PendingLimit,
		MenuColumns:  cfg.Catalog.MenuColumns,
	})
	if err != nil {
		return nil, err
	}
	if err := a.handlers.Register(a.registry); err != nil {
		return nil, err
	}

	if cfg.HTTP.Listen != "" {
		a.http = httpapi.New(httpapi.Options{
			Listen:  cfg.HTTP.Listen,
			Service: cfg.Observability.ServiceName,
			Version: buildinfo.Version,
			Metrics: a.metrics.Handler(),
			Ready:   a.ready,
		})
	}

	logger.Info(ctx, component, "bootstrap",
		slog.String("status", "ok"),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("visitors", cfg.Visitors.Driver),
		slog.Bool("http", a.http != nil),
	)
	built = true
	return a, nil
}

func (a *App) openStores(ctx context.Context) (order.Store, visitor.Store, error) {
	var orders order.Store
	switch a.cfg.Storage.Driver {
	case DriverPostgres:
		orders = postgres.NewOrders(a.infra.DB)
	default:
		orders = memory.NewOrders()
	}

	var visitors visitor.Store
	switch a.cfg.Visitors.Driver {
	case DriverPostgres:
		visitors = postgres.NewVisitors(a.infra.DB)
	case DriverRedis:
		rv, err := redisstore.Open(ctx, a.cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		a.onClose("redis", rv.Close)
		visitors = rv
	default:
		visitors = memory.NewVisitors()
	}
	return orders, visitors, nil
}

func (a *App) ready(ctx context.Context) error {
	if a.infra == nil || a.infra.DB == nil {
		return nil
	}
	return a.infra.DB.PingContext(ctx)
}

// Workflow exposes the order workflow.
func (a *App) Workflow() *order.Workflow { return a.workflow }

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	if a.handlers == nil {
		return coretelegram.RunOptions{}, errors.New("app: not initialized")
	}
	return coretelegram.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    a.registry,
		Bot:         a.bot,
		Dispatcher:  a.disp,
		Middlewares: coretelegram.DefaultMiddlewares(&a.cfg.Config, a.handlers.OnRateLimited, a.metrics),
		Routes:      a.handlers.Routes(a.registry),
		OnStart: func(ctx context.Context, _ coretelegram.Runtime) error {
			if a.http == nil {
				return nil
			}
			return a.http.Start(ctx)
		},
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			if a.http == nil {
				return nil
			}
			return a.http.Shutdown(ctx)
		},
	}, nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
