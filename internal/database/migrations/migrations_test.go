package migrations

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/vidbrief/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestAllMigrations_Ordered(t *testing.T) {
	all := AllMigrations()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Version, all[i].Version)
	}
	for _, m := range all {
		assert.NotEmpty(t, m.Description)
		assert.NotNil(t, m.Up)
		assert.NotNil(t, m.Down, "migration %s should support rollback", m.Version)
	}
}

func TestMigrator_Up(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	m := NewMigrator(db, nil)
	m.RegisterAll(AllMigrations())
	require.NoError(t, m.Up(ctx))

	assert.True(t, db.Migrator().HasTable(&models.PipelineRun{}))
	assert.True(t, db.Migrator().HasTable(&models.RunItem{}))
	assert.True(t, db.Migrator().HasTable(&models.VideoSummary{}))
	assert.True(t, db.Migrator().HasIndex(&models.VideoSummary{}, "idx_video_summaries_created_at"))

	// Idempotent.
	require.NoError(t, m.Up(ctx))

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, len(AllMigrations()))
	for _, s := range statuses {
		assert.True(t, s.Applied)
		assert.NotNil(t, s.AppliedAt)
	}
}

func TestMigrator_Down(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	m := NewMigrator(db, nil)
	m.RegisterAll(AllMigrations())
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Down(ctx))
	assert.False(t, db.Migrator().HasIndex(&models.VideoSummary{}, "idx_video_summaries_created_at"))
	assert.True(t, db.Migrator().HasTable(&models.VideoSummary{}))

	require.NoError(t, m.Down(ctx))
	assert.False(t, db.Migrator().HasTable(&models.VideoSummary{}))

	// Nothing left to roll back.
	require.NoError(t, m.Down(ctx))

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, len(AllMigrations()))
}

func TestMigrator_FailedMigrationIsNotRecorded(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	m := NewMigrator(db, nil)
	m.RegisterAll([]Migration{{
		Version:     "900",
		Description: "broken",
		Up:          func(tx *gorm.DB) error { return tx.Exec("NOT VALID SQL").Error },
	}})
	assert.Error(t, m.Up(ctx))

	pending, err := m.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
