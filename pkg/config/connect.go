package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-delay/pkg/core"
	"github.com/jdziat/simple-delay/pkg/storage"
)

// OpenDatabase opens the SQL database named by cfg and sizes its pool.
// SQLite gets a single connection since it serializes writers anyway.
func OpenDatabase(cfg DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	pool := cfg.Pool
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", cfg.Driver, err)
	}
	if err := pool.Apply(db); err != nil {
		return nil, err
	}
	return db, nil
}

// ConnectRedis parses cfg.URL and pings the server until it answers,
// retrying up to cfg.RetryAttempts times within cfg.ConnectTimeout.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisURL, err)
	}

	for range max(cfg.RetryAttempts, 1) {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, ErrRedisNotReady
}

// ConnectMongo connects to cfg.URL and returns cfg.Database, retrying the
// initial ping like ConnectRedis.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	for range max(cfg.RetryAttempts, 1) {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.URL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetMaxPoolSize(cfg.MaxPoolSize),
		)
		if err == nil {
			if err := client.Ping(ctx, nil); err == nil {
				return client.Database(cfg.Database), nil
			}
			_ = client.Disconnect(context.Background())
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrMongoNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, ErrMongoNotReady
}

// OpenStorage builds the job storage cfg selects. GORM storage reuses db;
// Redis storage connects on its own.
func OpenStorage(ctx context.Context, cfg Config, db *gorm.DB) (core.Storage, error) {
	switch cfg.Storage {
	case StorageRedis:
		client, err := ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return storage.NewRedisStorage(client, storage.WithKeyPrefix(cfg.Redis.KeyPrefix)), nil
	case StorageGorm:
		if db == nil {
			return nil, fmt.Errorf("%w: gorm storage needs a database", ErrInvalidConfig)
		}
		return storage.NewGormStorage(db), nil
	}
	return nil, fmt.Errorf("%w: storage %q", ErrInvalidConfig, cfg.Storage)
}
