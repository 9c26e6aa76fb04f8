package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-delay/pkg/config"
	"github.com/jdziat/simple-delay/pkg/worker"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.StorageGorm, cfg.Storage)
	assert.Equal(t, config.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "delay.db", cfg.Database.DSN)
	assert.Equal(t, 25, cfg.Database.Pool.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.Database.Pool.ConnMaxLifetime)
	assert.Equal(t, "delay", cfg.Redis.KeyPrefix)
	assert.False(t, cfg.Mongo.Enabled())
	assert.Equal(t, map[string]int{"default": 10, "retries": 2}, cfg.Worker.Queues)
	assert.Equal(t, 100*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, 2*time.Minute, cfg.Worker.HeartbeatInterval)
	assert.False(t, cfg.Tracing)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DELAY_STORAGE", "redis")
	t.Setenv("DELAY_REDIS_URL", "redis://localhost:6379/3")
	t.Setenv("DELAY_DB_DRIVER", "postgres")
	t.Setenv("DELAY_DB_DSN", "postgres://localhost/app")
	t.Setenv("DELAY_DB_MAX_OPEN_CONNS", "40")
	t.Setenv("DELAY_MONGODB_URL", "mongodb://localhost:27017")
	t.Setenv("DELAY_MONGODB_DATABASE", "app")
	t.Setenv("DELAY_QUEUES", "mail:4,reports:1")
	t.Setenv("DELAY_POLL_INTERVAL", "1s")
	t.Setenv("DELAY_SCHEDULER", "true")
	t.Setenv("DELAY_TRACING", "true")
	t.Setenv("DELAY_LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.StorageRedis, cfg.Storage)
	assert.Equal(t, "redis://localhost:6379/3", cfg.Redis.URL)
	assert.Equal(t, config.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 40, cfg.Database.Pool.MaxOpenConns)
	assert.True(t, cfg.Mongo.Enabled())
	assert.Equal(t, "app", cfg.Mongo.Database)
	assert.Equal(t, map[string]int{"mail": 4, "reports": 1}, cfg.Worker.Queues)
	assert.Equal(t, time.Second, cfg.Worker.PollInterval)
	assert.True(t, cfg.Worker.Scheduler)
	assert.True(t, cfg.Tracing)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.env")
	require.NoError(t, os.WriteFile(path, []byte("DELAY_DB_DSN=from-file.db\nDELAY_POLL_INTERVAL=250ms\n"), 0o600))
	t.Setenv("DELAY_POLL_INTERVAL", "2s")
	t.Cleanup(func() { os.Unsetenv("DELAY_DB_DSN") })

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file.db", cfg.Database.DSN)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval, "environment wins over file")
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.ErrorIs(t, err, config.ErrLoadingEnvFile)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("DELAY_POLL_INTERVAL", "soon")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrParsingConfig)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want error
	}{
		{"unknown storage", map[string]string{"DELAY_STORAGE": "s3"}, config.ErrInvalidConfig},
		{"redis without url", map[string]string{"DELAY_STORAGE": "redis"}, config.ErrInvalidConfig},
		{"unknown driver", map[string]string{"DELAY_DB_DRIVER": "oracle"}, config.ErrUnsupportedDriver},
		{"mongo without database", map[string]string{"DELAY_MONGODB_URL": "mongodb://x"}, config.ErrInvalidConfig},
		{"bad queue name", map[string]string{"DELAY_QUEUES": "9lives:1"}, config.ErrInvalidConfig},
		{"zero concurrency", map[string]string{"DELAY_QUEUES": "default:0"}, config.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMustLoad_Panics(t *testing.T) {
	t.Setenv("DELAY_STORAGE", "s3")
	assert.Panics(t, func() { config.MustLoad() })
}

func TestWorkerConfig_Concurrency(t *testing.T) {
	c := config.WorkerConfig{Queues: map[string]int{"default": 10, "retries": 2, "bulk": 5000}}
	assert.Equal(t, 10+2+1000, c.Concurrency())
}

func TestWorkerConfig_Options(t *testing.T) {
	c := config.WorkerConfig{
		ID:                "worker-a",
		Queues:            map[string]int{"default": 6, "retries": 1},
		PollInterval:      time.Second,
		HeartbeatInterval: time.Minute,
		Scheduler:         true,
	}

	var wc worker.WorkerConfig
	for _, opt := range c.Options() {
		opt.ApplyWorker(&wc)
	}

	assert.Equal(t, map[string]int{"default": 6, "retries": 1}, wc.Queues)
	assert.Equal(t, time.Second, wc.PollInterval)
	assert.Equal(t, time.Minute, wc.HeartbeatInterval)
	assert.True(t, wc.EnableScheduler)
	assert.Equal(t, "worker-a", wc.WorkerID)
}
