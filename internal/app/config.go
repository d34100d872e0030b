package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/internal/events"
	"github.com/m3rciful/shopbot/internal/observability"
	"github.com/m3rciful/shopbot/internal/payment"
	redisstore "github.com/m3rciful/shopbot/internal/storage/redis"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

// StorageConfig selects the order ledger backend.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
}

// VisitorsConfig selects the visitor store. It defaults to the storage driver.
type VisitorsConfig struct {
	Driver string `yaml:"driver" envconfig:"VISITORS_DRIVER"`
}

// CatalogConfig points at the product file.
type CatalogConfig struct {
	Path string `yaml:"path" envconfig:"CATALOG_PATH"`
	// MenuColumns is the number of product buttons per menu row.
	MenuColumns int `yaml:"menu_columns" envconfig:"CATALOG_MENU_COLUMNS"`
}

// OrdersConfig tunes the approval workflow.
type OrdersConfig struct {
	// NotifyTimeout bounds each notification sent by the workflow.
	NotifyTimeout time.Duration `yaml:"notify_timeout" envconfig:"ORDERS_NOTIFY_TIMEOUT"`
	Currency      string        `yaml:"currency" envconfig:"ORDERS_CURRENCY"`
	// PendingLimit caps the orders listed by /pending.
	PendingLimit int `yaml:"pending_limit" envconfig:"ORDERS_PENDING_LIMIT"`
}

// HTTPConfig configures the status server; an empty Listen disables it.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HTTP_LISTEN"`
}

// Config is the full configuration of the shop bot.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database      coredatabase.Config  `yaml:"database"`
	Storage       StorageConfig        `yaml:"storage"`
	Visitors      VisitorsConfig       `yaml:"visitors"`
	Redis         redisstore.Config    `yaml:"redis"`
	Catalog       CatalogConfig        `yaml:"catalog"`
	Payment       payment.Config       `yaml:"payment"`
	Orders        OrdersConfig         `yaml:"orders"`
	Events        events.Config        `yaml:"events"`
	HTTP          HTTPConfig           `yaml:"http"`
	Observability observability.Config `yaml:"observability"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// UsesDatabase reports whether any store needs PostgreSQL.
func (c *Config) UsesDatabase() bool {
	return c.Storage.Driver == DriverPostgres || c.Visitors.Driver == DriverPostgres
}

// Load reads path, overlays the environment and normalizes the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and applies defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	cfg.Storage.Driver = lower(cfg.Storage.Driver, DriverPostgres)
	switch cfg.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: postgres, memory", cfg.Storage.Driver)
	}

	cfg.Visitors.Driver = lower(cfg.Visitors.Driver, cfg.Storage.Driver)
	switch cfg.Visitors.Driver {
	case DriverPostgres, DriverMemory:
	case DriverRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required when visitors.driver is 'redis'")
		}
	default:
		return fmt.Errorf("invalid visitors.driver %q; allowed: postgres, redis, memory", cfg.Visitors.Driver)
	}

	if cfg.UsesDatabase() {
		if strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.name is required for the postgres driver")
		}
		cfg.Database.Normalize()
	}

	if strings.TrimSpace(cfg.Catalog.Path) == "" {
		cfg.Catalog.Path = "catalog.yaml"
	}
	if cfg.Catalog.MenuColumns <= 0 {
		cfg.Catalog.MenuColumns = 1
	}

	if cfg.Orders.NotifyTimeout < 0 {
		return fmt.Errorf("orders.notify_timeout must be >= 0")
	}
	if cfg.Orders.NotifyTimeout == 0 {
		cfg.Orders.NotifyTimeout = 5 * time.Second
	}
	if strings.TrimSpace(cfg.Orders.Currency) == "" {
		cfg.Orders.Currency = "€"
	}
	if cfg.Orders.PendingLimit <= 0 {
		cfg.Orders.PendingLimit = 20
	}

	cfg.Events.Driver = lower(cfg.Events.Driver, "noop")
	if cfg.Events.WriteTimeout < 0 {
		return fmt.Errorf("events.write_timeout must be >= 0")
	}
	if cfg.Events.WriteTimeout == 0 {
		cfg.Events.WriteTimeout = 2 * time.Second
	}
	if cfg.Events.Enabled && cfg.Events.Driver == "kafka" {
		if len(cfg.Events.Brokers) == 0 || strings.TrimSpace(cfg.Events.Topic) == "" {
			return fmt.Errorf("events.brokers and events.topic are required for the kafka driver")
		}
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "shopbot"
	}
	return nil
}

func lower(v, def string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return def
	}
	return v
}
