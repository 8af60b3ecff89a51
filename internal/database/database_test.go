package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/vidbrief/internal/config"
	"github.com/jmylchreest/vidbrief/internal/models"
)

func testConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             ":memory:",
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		LogLevel:        "silent",
	}
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(testConfig(), nil, &Options{PrepareStmt: false})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_SQLite(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, "sqlite", db.Driver())

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["max_open_connections"])
}

func TestNew_InvalidDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Driver = "oracle"
	db, err := New(cfg, nil, nil)
	assert.Nil(t, db)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestDB_Migrate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx))

	run := &models.PipelineRun{Trigger: models.RunTriggerCLI, Status: models.RunStatusRunning, StartedAt: time.Now()}
	require.NoError(t, db.WithContext(ctx).Create(run).Error)
	assert.False(t, run.ID.IsZero())
}

func TestDB_SchemaMigrator(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	pending, err := db.SchemaMigrator().Pending(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	require.NoError(t, db.Migrate(ctx))

	statuses, err := db.SchemaMigrator().Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, len(pending))
	for _, s := range statuses {
		assert.True(t, s.Applied, s.Version)
		assert.NotNil(t, s.AppliedAt)
	}

	pending, err = db.SchemaMigrator().Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDB_Transaction(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	errForced := errors.New("forced rollback")
	err := db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&models.PipelineRun{Trigger: models.RunTriggerAPI, StartedAt: time.Now()}).Error; err != nil {
			return err
		}
		return errForced
	})
	assert.ErrorIs(t, err, errForced)

	var count int64
	require.NoError(t, db.Model(&models.PipelineRun{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDB_Close(t *testing.T) {
	db, err := New(testConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.Error(t, db.Ping(context.Background()))
}

func TestPoolSize(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.DatabaseConfig
		wantOpen int
		wantIdle int
	}{
		{"sqlite memory", config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"}, 1, 1},
		{"sqlite shared memory", config.DatabaseConfig{Driver: "sqlite", DSN: "file:x?mode=memory&cache=shared"}, 1, 1},
		{"sqlite file", config.DatabaseConfig{Driver: "sqlite", DSN: "vidbrief.db"}, 4, 2},
		{"postgres", config.DatabaseConfig{Driver: "postgres", MaxOpenConns: 20, MaxIdleConns: 5}, 20, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open, idle := poolSize(tt.cfg)
			assert.Equal(t, tt.wantOpen, open)
			assert.Equal(t, tt.wantIdle, idle)
		})
	}
}

func TestGormLogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  logger.LogLevel
	}{
		{"silent", logger.Silent},
		{"error", logger.Error},
		{"warn", logger.Warn},
		{"info", logger.Info},
		{"", logger.Warn},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gormLogLevel(tt.level), tt.level)
	}
}
