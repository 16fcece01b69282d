package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the complete application configuration, loadable from
// environment variables (CANTEEN_ prefix), a .env file, flags, or YAML
// config files.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage   StorageConfig
	Staff     StaffConfig
	Notify    NotifyConfig
	AMQP      AMQPConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// StorageConfig selects where the order collection is persisted.
type StorageConfig struct {
	Driver      string `default:"file" usage:"Order slot backend: file, sqlite or postgres"`
	Path        string `default:"data/orders.json" usage:"File slot path; a .gz suffix enables compression"`
	SQLitePath  string `default:"data/canteen.db" usage:"SQLite database file" flag:"sqlite-path"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CANTEEN_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Slot        string `default:"canteen_orders" usage:"Slot name for the sqlite and postgres drivers"`
}

// StaffConfig authenticates staff API calls.
type StaffConfig struct {
	KeyHashes []string `usage:"Hex HMAC-SHA256 hashes of staff API keys" flag:"staff-key-hashes"`
	Pepper    string   `usage:"HMAC pepper for staff API key hashing" flag:"staff-pepper"`
}

// NotifyConfig controls the new-order notification.
type NotifyConfig struct {
	Duration time.Duration `default:"5s" usage:"How long a new-order notification stays visible"`
	Bell     bool          `default:"false" usage:"Ring the terminal bell on new orders"`
}

// AMQPConfig enables publishing order events to RabbitMQ.
type AMQPConfig struct {
	URL      string `usage:"AMQP broker URL; empty disables event publishing"`
	Exchange string `default:"canteen.orders" usage:"Topic exchange for order events"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window; 0 disables limiting"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadOption adjusts how configuration is loaded.
type LoadOption func(*aconfig.Config)

// SkipFlags leaves command line parsing to the caller.
func SkipFlags() LoadOption {
	return func(c *aconfig.Config) { c.SkipFlags = true }
}

// WithFiles replaces the YAML files searched for configuration.
func WithFiles(files ...string) LoadOption {
	return func(c *aconfig.Config) { c.Files = files }
}

// LoadConfig loads .env, then configuration from environment variables, YAML
// config files and flags, and applies platform-specific defaults.
func LoadConfig(opts ...LoadOption) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	ac := aconfig.Config{
		EnvPrefix: "CANTEEN",
		Files:     []string{"config.yaml", "/etc/canteen/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	}
	for _, o := range opts {
		o(&ac)
	}

	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverFile:
		if c.Storage.Path == "" {
			return errors.New("file storage requires a path")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite storage requires a database path")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set CANTEEN_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.RateLimit.Max > 0 && c.RateLimit.Window <= 0 {
		return errors.Errorf("rate limit window must be positive, got %s", c.RateLimit.Window)
	}
	if c.Notify.Duration <= 0 {
		return errors.Errorf("notification duration must be positive, got %s", c.Notify.Duration)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CANTEEN_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.Storage.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
