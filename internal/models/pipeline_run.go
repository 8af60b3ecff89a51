package models

import (
	"time"
)

// RunTrigger records what started a pipeline run.
type RunTrigger string

const (
	RunTriggerCLI      RunTrigger = "cli"
	RunTriggerAPI      RunTrigger = "api"
	RunTriggerWebhook  RunTrigger = "webhook"
	RunTriggerSchedule RunTrigger = "schedule"
)

// Valid reports whether t is a known trigger.
func (t RunTrigger) Valid() bool {
	switch t {
	case RunTriggerCLI, RunTriggerAPI, RunTriggerWebhook, RunTriggerSchedule:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is in progress.
	RunStatusRunning RunStatus = "running"
	// RunStatusSucceeded indicates every item was processed.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusPartial indicates some items failed.
	RunStatusPartial RunStatus = "partial"
	// RunStatusFailed indicates no item succeeded or the run aborted.
	RunStatusFailed RunStatus = "failed"
	// RunStatusEmpty indicates the inbox had nothing to process.
	RunStatusEmpty RunStatus = "empty"
)

// PipelineRun records one pass over the inbox.
type PipelineRun struct {
	BaseModel

	Trigger    RunTrigger `gorm:"size:20;not null" json:"trigger"`
	Status     RunStatus  `gorm:"size:20;not null;default:'running';index" json:"status"`
	StartedAt  time.Time  `gorm:"index" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	ItemsFound     int `json:"items_found"`
	ItemsProcessed int `json:"items_processed"`
	ItemsSkipped   int `json:"items_skipped"`
	ItemsFailed    int `json:"items_failed"`

	Error string `gorm:"size:4096" json:"error,omitempty"`

	Items []RunItem `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// TableName returns the table name for PipelineRun.
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// Validate checks required fields.
func (r *PipelineRun) Validate() error {
	if !r.Trigger.Valid() {
		return ErrInvalidTrigger
	}
	return nil
}

// IsFinished reports whether the run has reached a terminal status.
func (r *PipelineRun) IsFinished() bool {
	return r.Status != RunStatusRunning
}

// Duration returns the run's wall time, or zero while it is running.
func (r *PipelineRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Finish sets the terminal status from the item counts.
func (r *PipelineRun) Finish(at time.Time) {
	r.FinishedAt = &at
	switch {
	case r.Error != "":
		r.Status = RunStatusFailed
	case r.ItemsFound == 0:
		r.Status = RunStatusEmpty
	case r.ItemsFailed == 0:
		r.Status = RunStatusSucceeded
	case r.ItemsProcessed > 0:
		r.Status = RunStatusPartial
	default:
		r.Status = RunStatusFailed
	}
}

// ItemOutcome is the result of processing one inbox item.
type ItemOutcome string

const (
	ItemOutcomeProcessed ItemOutcome = "processed"
	ItemOutcomeSkipped   ItemOutcome = "skipped"
	ItemOutcomeFailed    ItemOutcome = "failed"
)

// TranscodeAction records what happened to the video bytes.
type TranscodeAction string

const (
	// TranscodeActionNone means the source already fit under the ceiling.
	TranscodeActionNone TranscodeAction = "none"
	// TranscodeActionCompressed means a transcoded file was uploaded.
	TranscodeActionCompressed TranscodeAction = "compressed"
	// TranscodeActionOriginal means compression failed and the source was uploaded.
	TranscodeActionOriginal TranscodeAction = "original"
	// TranscodeActionFailed means compression failed and the item was left in the inbox.
	TranscodeActionFailed TranscodeAction = "failed"
)

// RunItem records one inbox item within a run.
type RunItem struct {
	BaseModel

	RunID        ULID            `gorm:"type:varchar(26);index;not null" json:"run_id"`
	Name         string          `gorm:"size:512;not null" json:"name"`
	Outcome      ItemOutcome     `gorm:"size:20;not null" json:"outcome"`
	Transcode    TranscodeAction `gorm:"size:20" json:"transcode"`
	Attempts     int             `json:"attempts"`
	OriginalSize int64           `json:"original_size"`
	FinalSize    int64           `json:"final_size"`
	SummaryID    *ULID           `gorm:"type:varchar(26)" json:"summary_id,omitempty"`
	ErrorKind    string          `gorm:"size:50" json:"error_kind,omitempty"`
	Error        string          `gorm:"size:4096" json:"error,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
}

// TableName returns the table name for RunItem.
func (RunItem) TableName() string {
	return "run_items"
}
