package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jmylchreest/vidbrief/internal/models"
)

// summaryRepo implements SummaryRepository using GORM.
type summaryRepo struct {
	db *gorm.DB
}

// NewSummaryRepository creates a SummaryRepository.
func NewSummaryRepository(db *gorm.DB) *summaryRepo {
	return &summaryRepo{db: db}
}

func (r *summaryRepo) Create(ctx context.Context, summary *models.VideoSummary) error {
	if err := summary.Validate(); err != nil {
		return fmt.Errorf("validating summary: %w", err)
	}
	if err := r.db.WithContext(ctx).Create(summary).Error; err != nil {
		return fmt.Errorf("creating summary: %w", err)
	}
	return nil
}

func (r *summaryRepo) GetByID(ctx context.Context, id models.ULID) (*models.VideoSummary, error) {
	var summary models.VideoSummary
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&summary).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting summary by ID: %w", err)
	}
	return &summary, nil
}

func (r *summaryRepo) ListRecent(ctx context.Context, limit int) ([]*models.VideoSummary, error) {
	var summaries []*models.VideoSummary
	err := r.db.WithContext(ctx).
		Omit("raw_response").
		Order("created_at DESC, id DESC").
		Limit(normalizeLimit(limit)).
		Find(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("listing summaries: %w", err)
	}
	return summaries, nil
}

func (r *summaryRepo) ListByRun(ctx context.Context, runID models.ULID) ([]*models.VideoSummary, error) {
	var summaries []*models.VideoSummary
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at ASC").Find(&summaries).Error; err != nil {
		return nil, fmt.Errorf("listing summaries by run: %w", err)
	}
	return summaries, nil
}
