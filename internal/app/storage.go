package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/canteen-orders/internal/domain/order"
	"github.com/xenking/canteen-orders/internal/handler"
	"github.com/xenking/canteen-orders/internal/storage/file"
	"github.com/xenking/canteen-orders/internal/storage/postgres"
	"github.com/xenking/canteen-orders/internal/storage/sqlite"
)

// Storage is an opened order slot with its backend-specific extras.
type Storage struct {
	Slot order.Slot
	// Ping checks the backend connection; nil for the file driver.
	Ping func(ctx context.Context) error
	// Revenue sums completed orders in the backend; nil unless postgres.
	Revenue handler.RevenueFunc
	Close   func()
}

// OpenStorage opens the slot selected by cfg.Driver.
func OpenStorage(ctx context.Context, lg *zap.Logger, cfg StorageConfig) (*Storage, error) {
	switch cfg.Driver {
	case DriverFile:
		lg.Info("Using file storage", zap.String("path", cfg.Path))
		return &Storage{Slot: file.NewSlot(cfg.Path), Close: func() {}}, nil

	case DriverSQLite:
		lg.Info("Using sqlite storage", zap.String("path", cfg.SQLitePath), zap.String("slot", cfg.Slot))
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slot := sqlite.NewSlot(db, cfg.Slot)
		return &Storage{
			Slot: slot,
			Ping: slot.Ping,
			Close: func() {
				if err := slot.Close(); err != nil {
					lg.Warn("Close sqlite", zap.Error(err))
				}
			},
		}, nil

	case DriverPostgres:
		lg.Info("Using postgres storage", zap.String("slot", cfg.Slot))
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		slot := postgres.NewSlot(pool, cfg.Slot)
		return &Storage{
			Slot:    slot,
			Ping:    pool.Ping,
			Revenue: slot.CompletedRevenue,
			Close:   pool.Close,
		}, nil
	}
	return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
}
