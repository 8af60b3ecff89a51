package migrations

import (
	"gorm.io/gorm"

	"github.com/jmylchreest/vidbrief/internal/models"
)

// AllMigrations returns the schema history in order:
//   - 001: pipeline_runs, run_items and video_summaries tables
//   - 002: recency indexes used by the list endpoints
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002RecencyIndexes(),
	}
}

func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create pipeline run and video summary tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.PipelineRun{},
				&models.RunItem{},
				&models.VideoSummary{},
			)
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(
				&models.VideoSummary{},
				&models.RunItem{},
				&models.PipelineRun{},
			)
		},
	}
}

func migration002RecencyIndexes() Migration {
	return Migration{
		Version:     "002",
		Description: "Add created_at indexes for recent runs and summaries",
		Up: func(tx *gorm.DB) error {
			if err := createIndex(tx, &models.PipelineRun{}, "pipeline_runs", "idx_pipeline_runs_created_at"); err != nil {
				return err
			}
			return createIndex(tx, &models.VideoSummary{}, "video_summaries", "idx_video_summaries_created_at")
		},
		Down: func(tx *gorm.DB) error {
			if err := tx.Migrator().DropIndex(&models.PipelineRun{}, "idx_pipeline_runs_created_at"); err != nil {
				return err
			}
			return tx.Migrator().DropIndex(&models.VideoSummary{}, "idx_video_summaries_created_at")
		},
	}
}

// createIndex adds a created_at index unless it exists. MySQL has no
// CREATE INDEX IF NOT EXISTS, so the check goes through the migrator.
func createIndex(tx *gorm.DB, model any, table, name string) error {
	if tx.Migrator().HasIndex(model, name) {
		return nil
	}
	return tx.Exec("CREATE INDEX " + name + " ON " + table + " (created_at)").Error
}
