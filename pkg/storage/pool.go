package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PoolConfig sizes the database/sql pool behind a GormStorage. The env tags
// let it be embedded in process configuration with a prefix.
type PoolConfig struct {
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"1m"`
}

// DefaultPoolConfig returns the pool used when nothing else is configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: time.Minute,
	}
}

// WorkerPoolConfig sizes a pool for a worker running concurrency calls at
// once. Every running call holds a connection for its heartbeat and final
// status write, and the poller and scheduler need a few more.
func WorkerPoolConfig(concurrency int) PoolConfig {
	cfg := DefaultPoolConfig()
	if concurrency <= 0 {
		return cfg
	}
	cfg.MaxOpenConns = concurrency + 5
	cfg.MaxIdleConns = cfg.MaxOpenConns / 2
	if cfg.MaxIdleConns < 2 {
		cfg.MaxIdleConns = 2
	}
	return cfg
}

// PoolOption overrides a single pool setting.
type PoolOption func(*PoolConfig)

// MaxOpenConns caps open connections. Zero means unlimited.
func MaxOpenConns(n int) PoolOption {
	return func(c *PoolConfig) { c.MaxOpenConns = n }
}

// MaxIdleConns caps idle connections.
func MaxIdleConns(n int) PoolOption {
	return func(c *PoolConfig) { c.MaxIdleConns = n }
}

// ConnMaxLifetime closes connections older than d.
func ConnMaxLifetime(d time.Duration) PoolOption {
	return func(c *PoolConfig) { c.ConnMaxLifetime = d }
}

// ConnMaxIdleTime closes connections idle longer than d.
func ConnMaxIdleTime(d time.Duration) PoolOption {
	return func(c *PoolConfig) { c.ConnMaxIdleTime = d }
}

// Apply configures the pool of db. Idle connections are clamped to the
// open limit.
func (c PoolConfig) Apply(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("delay: get underlying *sql.DB: %w", err)
	}

	idle := c.MaxIdleConns
	if c.MaxOpenConns > 0 && idle > c.MaxOpenConns {
		idle = c.MaxOpenConns
	}
	sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	sqlDB.SetMaxIdleConns(idle)
	sqlDB.SetConnMaxLifetime(c.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(c.ConnMaxIdleTime)
	return nil
}

// NewGormStorageWithPool configures the pool of db from cfg and opts, then
// wraps it in a GormStorage.
//
//	s, err := storage.NewGormStorageWithPool(db, storage.WorkerPoolConfig(12),
//	    storage.ConnMaxLifetime(time.Minute),
//	)
func NewGormStorageWithPool(db *gorm.DB, cfg PoolConfig, opts ...PoolOption) (*GormStorage, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Apply(db); err != nil {
		return nil, err
	}
	return NewGormStorage(db), nil
}
