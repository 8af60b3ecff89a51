package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/vidbrief/internal/models"
)

// runRepo implements RunRepository using GORM.
type runRepo struct {
	db *gorm.DB
}

// NewRunRepository creates a RunRepository.
func NewRunRepository(db *gorm.DB) *runRepo {
	return &runRepo{db: db}
}

func (r *runRepo) Create(ctx context.Context, run *models.PipelineRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validating run: %w", err)
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if err := r.db.WithContext(ctx).Omit("Items").Create(run).Error; err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

func (r *runRepo) Update(ctx context.Context, run *models.PipelineRun) error {
	if err := r.db.WithContext(ctx).Omit("Items").Save(run).Error; err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	return nil
}

func (r *runRepo) AddItem(ctx context.Context, item *models.RunItem) error {
	if item.RunID.IsZero() {
		return models.ErrRunIDRequired
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("adding run item: %w", err)
	}
	return nil
}

func (r *runRepo) GetByID(ctx context.Context, id models.ULID) (*models.PipelineRun, error) {
	var run models.PipelineRun
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting run by ID: %w", err)
	}
	return &run, nil
}

func (r *runRepo) ListRecent(ctx context.Context, limit int) ([]*models.PipelineRun, error) {
	var runs []*models.PipelineRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC, id DESC").
		Limit(normalizeLimit(limit)).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func (r *runRepo) MarkAbandoned(ctx context.Context, reason string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PipelineRun{}).
		Where("status = ?", models.RunStatusRunning).
		Updates(map[string]any{
			"status":      models.RunStatusFailed,
			"error":       reason,
			"finished_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("marking abandoned runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
