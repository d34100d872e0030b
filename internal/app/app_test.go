package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coretelegram "github.com/m3rciful/shopbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

const catalogYAML = `
products:
  - key: plan_a
    name: Plan A
    price: "10"
    link: https://example.com/a
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func memoryConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		Config: coreconfig.Config{
			Telegram: coreconfig.TelegramConfig{Token: "123:abc", AdminID: 7},
		},
		Storage: StorageConfig{Driver: DriverMemory},
		Catalog: CatalogConfig{Path: writeFile(t, t.TempDir(), "catalog.yaml", catalogYAML)},
	}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return cfg
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
telegram:
  token: "123:abc"
  admin_id: 7
database:
  name: shop
payment:
  paypal_user: shop
orders:
  notify_timeout: 3s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.RunMode != coreconfig.RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
	if cfg.Storage.Driver != DriverPostgres || cfg.Visitors.Driver != DriverPostgres {
		t.Fatalf("drivers = %q/%q", cfg.Storage.Driver, cfg.Visitors.Driver)
	}
	if cfg.Database.Host != "localhost" || cfg.Database.MigrationsDir != "migrations" {
		t.Fatalf("database defaults not applied: %#v", cfg.Database)
	}
	if cfg.Orders.NotifyTimeout != 3*time.Second || cfg.Orders.PendingLimit != 20 {
		t.Fatalf("orders = %#v", cfg.Orders)
	}
	if cfg.Events.WriteTimeout != 2*time.Second {
		t.Fatalf("events write timeout = %v", cfg.Events.WriteTimeout)
	}
	if cfg.Payment.PayPalUser != "shop" || cfg.Catalog.Path != "catalog.yaml" {
		t.Fatalf("unexpected config %#v", cfg)
	}
	if cfg.CoreConfig().Telegram.AdminID != 7 {
		t.Fatalf("core config not exposed")
	}
}

func TestNormalizeRejectsInvalidSettings(t *testing.T) {
	base := func() *Config {
		return &Config{Config: coreconfig.Config{
			Telegram: coreconfig.TelegramConfig{Token: "t", AdminID: 1},
		}}
	}
	cases := map[string]func(*Config){
		"unknown storage":   func(c *Config) { c.Storage.Driver = "mongo" },
		"postgres w/o name": func(c *Config) { c.Storage.Driver = DriverPostgres },
		"redis w/o addr":    func(c *Config) { c.Storage.Driver = DriverMemory; c.Visitors.Driver = DriverRedis },
		"negative timeout":  func(c *Config) { c.Storage.Driver = DriverMemory; c.Orders.NotifyTimeout = -time.Second },
		"negative publish":  func(c *Config) { c.Storage.Driver = DriverMemory; c.Events.WriteTimeout = -time.Second },
		"kafka w/o brokers": func(c *Config) { c.Storage.Driver = DriverMemory; c.Events.Enabled = true; c.Events.Driver = "kafka" },
		"missing admin":     func(c *Config) { c.Storage.Driver = DriverMemory; c.Telegram.AdminID = 0 },
		"unknown visitors":  func(c *Config) { c.Storage.Driver = DriverMemory; c.Visitors.Driver = "file" },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if err := Normalize(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	ok := base()
	ok.Storage.Driver = DriverMemory
	if err := Normalize(ok); err != nil {
		t.Fatalf("memory config: %v", err)
	}
	if ok.Visitors.Driver != DriverMemory || ok.UsesDatabase() {
		t.Fatalf("visitors must follow the storage driver: %#v", ok.Visitors)
	}
}

func offlineBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	return tele.NewBot(tele.Settings{Token: cfg.Telegram.Token, Offline: true})
}

func noLogger(*coreconfig.Config) error { return nil }

func TestNewWiresTelegramRuntime(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.HTTP.Listen = "127.0.0.1:0"

	a, err := New(context.Background(), cfg, Options{NewBot: offlineBot, LoggerInit: noLogger})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}()

	opts, err := a.TelegramRunOptions()
	if err != nil {
		t.Fatalf("run options: %v", err)
	}
	if opts.Bot == nil || opts.Dispatcher == nil || opts.Registry == nil {
		t.Fatalf("runtime pieces missing: %#v", opts)
	}
	if len(opts.Routes) == 0 || len(opts.Middlewares) == 0 {
		t.Fatalf("routes=%d middlewares=%d", len(opts.Routes), len(opts.Middlewares))
	}
	if _, _, ok := opts.Registry.LookupCommand("/start"); !ok {
		t.Fatalf("/start not registered")
	}
	if _, ok := opts.Registry.GetCallback("decide"); !ok {
		t.Fatalf("decide callback not registered")
	}

	if err := opts.OnStart(context.Background(), coretelegram.Runtime{}); err != nil {
		t.Fatalf("start http: %v", err)
	}
	if err := opts.OnStop(context.Background(), coretelegram.Runtime{}); err != nil {
		t.Fatalf("stop http: %v", err)
	}

	if a.Workflow() == nil || !a.Workflow().IsAdmin(7) {
		t.Fatalf("workflow not wired to the admin")
	}
}

func TestNewFailsOnMissingCatalog(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(context.Background(), cfg, Options{NewBot: offlineBot, LoggerInit: noLogger})
	if err == nil || !strings.Contains(err.Error(), "catalog") {
		t.Fatalf("expected catalog error, got %v", err)
	}
}

func TestOpenLedgerNeedsPostgres(t *testing.T) {
	if _, _, err := OpenLedger(context.Background(), memoryConfig(t)); err == nil {
		t.Fatalf("memory storage has no persistent ledger")
	}
	if _, err := OpenMigrator(context.Background(), memoryConfig(t)); err == nil {
		t.Fatalf("memory storage has nothing to migrate")
	}
}
