package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/canteen-orders/internal/domain/notify"
	"github.com/xenking/canteen-orders/internal/domain/order"
)

func loadTestConfig(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	for k, v := range env {
		t.Setenv(k, v)
	}
	return LoadConfig(SkipFlags(), WithFiles())
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadTestConfig(t, nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, "data/orders.json", cfg.Storage.Path)
	assert.Equal(t, "canteen_orders", cfg.Storage.Slot)
	assert.Equal(t, 5*time.Second, cfg.Notify.Duration)
	assert.Equal(t, "canteen.orders", cfg.AMQP.Exchange)
	assert.Empty(t, cfg.AMQP.URL)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestLoadConfig_Env(t *testing.T) {
	cfg, err := loadTestConfig(t, map[string]string{
		"CANTEEN_STORAGE_DRIVER":  "sqlite",
		"CANTEEN_NOTIFY_DURATION": "2s",
		"CANTEEN_STAFF_PEPPER":    "salt",
		"PORT":                    "9090",
	})
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 2*time.Second, cfg.Notify.Duration)
	assert.Equal(t, "salt", cfg.Staff.Pepper)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfig_Postgres(t *testing.T) {
	_, err := loadTestConfig(t, map[string]string{"CANTEEN_STORAGE_DRIVER": "postgres"})
	require.Error(t, err)

	cfg, err := loadTestConfig(t, map[string]string{
		"CANTEEN_STORAGE_DRIVER": "postgres",
		"DATABASE_URL":           "postgres://localhost/canteen",
	})
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/canteen", cfg.Storage.DatabaseURL)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Storage: StorageConfig{Driver: DriverFile, Path: "orders.json"},
		Notify:  NotifyConfig{Duration: time.Second},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "redis" }},
		{name: "file without path", mutate: func(c *Config) { c.Storage.Path = "" }},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Driver = DriverSQLite }},
		{name: "zero duration", mutate: func(c *Config) { c.Notify.Duration = 0 }},
		{name: "rate limit without window", mutate: func(c *Config) { c.RateLimit = RateLimitConfig{Max: 10} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, cfg := range []StorageConfig{
		{Driver: DriverFile, Path: filepath.Join(dir, "orders.json.gz")},
		{Driver: DriverSQLite, SQLitePath: filepath.Join(dir, "canteen.db"), Slot: "test"},
	} {
		t.Run(cfg.Driver, func(t *testing.T) {
			s, err := OpenStorage(ctx, zap.NewNop(), cfg)
			require.NoError(t, err)
			defer s.Close()

			if s.Ping != nil {
				require.NoError(t, s.Ping(ctx))
			}
			assert.Nil(t, s.Revenue)

			store := order.NewStore(s.Slot)
			require.NoError(t, store.Load(ctx))
			_, err = store.AddOrder(ctx, order.Draft{StudentID: "s1", Total: decimal.NewFromInt(10), PaymentMethod: order.PaymentCash})
			require.NoError(t, err)

			reopened := order.NewStore(s.Slot)
			require.NoError(t, reopened.Load(ctx))
			assert.Len(t, reopened.GetAllOrders(), 1)
		})
	}

	_, err := OpenStorage(ctx, zap.NewNop(), StorageConfig{Driver: "redis"})
	require.Error(t, err)
}

func TestMetrics(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	m.OnOrderEvent(context.Background(), order.Event{Type: order.EventCreated, Order: order.Order{PaymentMethod: order.PaymentCash}})
	m.OnOrderEvent(context.Background(), order.Event{Type: order.EventStatusChanged, Previous: order.StatusPending, Order: order.Order{Status: order.StatusAccepted}})
	m.OnNotify(notify.Notification{Pending: 2, Previous: 1})
}
