package app

import (
	"context"
	"fmt"

	"github.com/m3rciful/shopbot/core/bootstrap"
	coredatabase "github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/internal/order"
	"github.com/m3rciful/shopbot/internal/storage/postgres"
)

// OpenLedger connects to the persistent order store for offline inspection.
// The returned close function releases the connection pool.
func OpenLedger(ctx context.Context, cfg *Config) (order.Store, func() error, error) {
	if cfg.Storage.Driver != DriverPostgres {
		return nil, nil, fmt.Errorf("app: storage driver %q keeps no persistent ledger", cfg.Storage.Driver)
	}
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:         &cfg.Config,
		Database:       cfg.Database,
		SkipMigrations: true,
	})
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewOrders(res.DB), res.Close, nil
}

// OpenMigrator returns a migrator for the configured database.
func OpenMigrator(ctx context.Context, cfg *Config) (*coredatabase.Migrator, error) {
	if !cfg.UsesDatabase() {
		return nil, fmt.Errorf("app: no store uses postgres; nothing to migrate")
	}
	return coredatabase.NewMigrator(ctx, cfg.Database)
}
