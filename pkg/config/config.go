package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/jdziat/simple-delay/pkg/security"
	"github.com/jdziat/simple-delay/pkg/storage"
	"github.com/jdziat/simple-delay/pkg/worker"
)

// Prefix is prepended to every variable name.
const Prefix = "DELAY_"

// Storage backends.
const (
	StorageGorm  = "gorm"
	StorageRedis = "redis"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the process configuration of a delay worker.
type Config struct {
	Storage       string         `env:"STORAGE" envDefault:"gorm"`
	Database      DatabaseConfig `envPrefix:"DB_"`
	Redis         RedisConfig    `envPrefix:"REDIS_"`
	Mongo         MongoConfig    `envPrefix:"MONGODB_"`
	Worker        WorkerConfig
	Tracing       bool       `env:"TRACING" envDefault:"false"`
	StrictStrings bool       `env:"STRICT_STRINGS" envDefault:"false"`
	LogLevel      slog.Level `env:"LOG_LEVEL" envDefault:"info"`
}

// DatabaseConfig selects the SQL database used for job storage and AR/DM
// record references.
type DatabaseConfig struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"delay.db"`
	Pool   storage.PoolConfig
}

// RedisConfig describes the Redis connection used by RedisStorage.
type RedisConfig struct {
	URL            string        `env:"URL"`
	KeyPrefix      string        `env:"KEY_PREFIX" envDefault:"delay"`
	RetryAttempts  int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"30s"`
}

// MongoConfig describes the MongoDB database holding MG records. MG
// references are disabled when URL is empty.
type MongoConfig struct {
	URL            string        `env:"URL"`
	Database       string        `env:"DATABASE"`
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
	MaxPoolSize    uint64        `env:"MAX_POOL_SIZE" envDefault:"100"`
	RetryAttempts  int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"RETRY_INTERVAL" envDefault:"2s"`
}

// Enabled reports whether MG references are configured.
func (c MongoConfig) Enabled() bool { return c.URL != "" }

// WorkerConfig configures the worker loop.
type WorkerConfig struct {
	ID                string         `env:"WORKER_ID"`
	Queues            map[string]int `env:"QUEUES" envDefault:"default:10,retries:2" envKeyValSeparator:":"`
	PollInterval      time.Duration  `env:"POLL_INTERVAL" envDefault:"100ms"`
	HeartbeatInterval time.Duration  `env:"HEARTBEAT_INTERVAL" envDefault:"2m"`
	Scheduler         bool           `env:"SCHEDULER" envDefault:"false"`
}

// Concurrency is the number of calls the worker runs at once across all
// queues.
func (c WorkerConfig) Concurrency() int {
	total := 0
	for _, n := range c.Queues {
		total += security.ClampConcurrency(n)
	}
	return total
}

// Options converts c into worker options.
func (c WorkerConfig) Options() []worker.WorkerOption {
	names := make([]string, 0, len(c.Queues))
	for name := range c.Queues {
		names = append(names, name)
	}
	sort.Strings(names)

	opts := make([]worker.WorkerOption, 0, len(names)+4)
	for _, name := range names {
		opts = append(opts, worker.WorkerQueue(name, worker.Concurrency(c.Queues[name])))
	}
	opts = append(opts,
		worker.PollInterval(c.PollInterval),
		worker.HeartbeatInterval(c.HeartbeatInterval),
		worker.WithScheduler(c.Scheduler),
	)
	if c.ID != "" {
		opts = append(opts, worker.WithWorkerID(c.ID))
	}
	return opts
}

// Load reads the named .env files, or ./.env if none are named and it
// exists, then parses DELAY_* variables. Variables already present in the
// environment win over file entries.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		// Ignore errors - the .env file might not exist and that's ok
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, errors.Join(ErrLoadingEnvFile, err)
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustLoad works like Load but panics on error.
func MustLoad(files ...string) Config {
	cfg, err := Load(files...)
	if err != nil {
		panic(fmt.Sprintf("Failed to load required configuration: %v", err))
	}
	return cfg
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageGorm:
	case StorageRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("%w: %sREDIS_URL is required for redis storage", ErrInvalidConfig, Prefix)
		}
	default:
		return fmt.Errorf("%w: storage %q", ErrInvalidConfig, c.Storage)
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Database.Driver)
	}

	if c.Mongo.Enabled() && c.Mongo.Database == "" {
		return fmt.Errorf("%w: %sMONGODB_DATABASE is required with %sMONGODB_URL", ErrInvalidConfig, Prefix, Prefix)
	}

	if len(c.Worker.Queues) == 0 {
		return fmt.Errorf("%w: no queues", ErrInvalidConfig)
	}
	for name, n := range c.Worker.Queues {
		if err := security.ValidateQueueName(name); err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}
		if n <= 0 {
			return fmt.Errorf("%w: queue %q concurrency must be positive", ErrInvalidConfig, name)
		}
	}
	return nil
}
