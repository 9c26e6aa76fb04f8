package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-delay/pkg/core"
)

// openTestDB returns PostgreSQL when TEST_DATABASE_URL is set and a private
// in-memory SQLite database otherwise.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	silent := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		db, err := gorm.Open(sqlite.Open(":memory:"), silent)
		require.NoError(t, err, "open in-memory sqlite")
		// Every pooled connection to :memory: is its own database.
		require.NoError(t, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}.Apply(db))
		return db
	}

	db, err := gorm.Open(postgres.Open(dsn), silent)
	require.NoError(t, err, "open postgres test db")
	require.NoError(t, PoolConfig{MaxOpenConns: 4, MaxIdleConns: 1}.Apply(db))

	truncateJobs(t, db)
	t.Cleanup(func() {
		truncateJobs(t, db)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// truncateJobs empties the deferred call table shared by every Postgres test.
func truncateJobs(t *testing.T, db *gorm.DB) {
	t.Helper()
	if !db.Migrator().HasTable(&core.Job{}) {
		return
	}
	require.NoError(t, db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&core.Job{}).Error)
}
