// Package repository defines data access for vidbrief records.
// All database access goes through these interfaces so the pipeline can be
// tested without a database.
package repository

import (
	"context"

	"github.com/jmylchreest/vidbrief/internal/models"
)

// SummaryRepository persists video summaries.
type SummaryRepository interface {
	// Create stores a new summary.
	Create(ctx context.Context, summary *models.VideoSummary) error
	// GetByID returns the summary, or nil if it does not exist.
	GetByID(ctx context.Context, id models.ULID) (*models.VideoSummary, error)
	// ListRecent returns up to limit summaries, newest first.
	ListRecent(ctx context.Context, limit int) ([]*models.VideoSummary, error)
	// ListByRun returns the summaries produced by one run.
	ListByRun(ctx context.Context, runID models.ULID) ([]*models.VideoSummary, error)
}

// RunRepository persists pipeline runs and their items.
type RunRepository interface {
	// Create stores a new run.
	Create(ctx context.Context, run *models.PipelineRun) error
	// Update saves the run's status and counters.
	Update(ctx context.Context, run *models.PipelineRun) error
	// AddItem records one processed inbox item.
	AddItem(ctx context.Context, item *models.RunItem) error
	// GetByID returns the run with its items, or nil if it does not exist.
	GetByID(ctx context.Context, id models.ULID) (*models.PipelineRun, error)
	// ListRecent returns up to limit runs, newest first, without items.
	ListRecent(ctx context.Context, limit int) ([]*models.PipelineRun, error)
	// MarkAbandoned fails runs left in the running state by a previous process.
	MarkAbandoned(ctx context.Context, reason string) (int64, error)
}

// DefaultListLimit caps list queries when the caller passes a non-positive limit.
const DefaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultListLimit
	}
	return limit
}
