package handlers

import (
	"time"

	"github.com/jmylchreest/vidbrief/internal/models"
)

// RunResponse represents a pipeline run in API responses.
type RunResponse struct {
	ID             models.ULID       `json:"id"`
	Trigger        models.RunTrigger `json:"trigger"`
	Status         models.RunStatus  `json:"status"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     *time.Time        `json:"finished_at,omitempty"`
	DurationMs     int64             `json:"duration_ms,omitempty"`
	ItemsFound     int               `json:"items_found"`
	ItemsProcessed int               `json:"items_processed"`
	ItemsSkipped   int               `json:"items_skipped"`
	ItemsFailed    int               `json:"items_failed"`
	Error          string            `json:"error,omitempty"`
	Items          []RunItemResponse `json:"items,omitempty"`
}

// RunItemResponse represents one processed inbox item.
type RunItemResponse struct {
	Name         string                 `json:"name"`
	Outcome      models.ItemOutcome     `json:"outcome"`
	Transcode    models.TranscodeAction `json:"transcode"`
	Attempts     int                    `json:"attempts"`
	OriginalSize int64                  `json:"original_size"`
	FinalSize    int64                  `json:"final_size"`
	SummaryID    *models.ULID           `json:"summary_id,omitempty"`
	ErrorKind    string                 `json:"error_kind,omitempty"`
	Error        string                 `json:"error,omitempty"`
	DurationMs   int64                  `json:"duration_ms"`
}

// RunFromModel converts a model to a response.
func RunFromModel(r *models.PipelineRun) RunResponse {
	resp := RunResponse{
		ID:             r.ID,
		Trigger:        r.Trigger,
		Status:         r.Status,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		ItemsFound:     r.ItemsFound,
		ItemsProcessed: r.ItemsProcessed,
		ItemsSkipped:   r.ItemsSkipped,
		ItemsFailed:    r.ItemsFailed,
		Error:          r.Error,
	}
	if r.IsFinished() {
		resp.DurationMs = r.Duration().Milliseconds()
	}
	for _, item := range r.Items {
		resp.Items = append(resp.Items, RunItemResponse{
			Name:         item.Name,
			Outcome:      item.Outcome,
			Transcode:    item.Transcode,
			Attempts:     item.Attempts,
			OriginalSize: item.OriginalSize,
			FinalSize:    item.FinalSize,
			SummaryID:    item.SummaryID,
			ErrorKind:    item.ErrorKind,
			Error:        item.Error,
			DurationMs:   item.DurationMs,
		})
	}
	return resp
}

// SummaryResponse represents a video summary in API responses.
type SummaryResponse struct {
	ID           models.ULID `json:"id"`
	CreatedAt    time.Time   `json:"created_at"`
	RunID        models.ULID `json:"run_id"`
	SourceName   string      `json:"source_name"`
	ObjectURI    string      `json:"object_uri"`
	Title        string      `json:"title"`
	KeyPoints    string      `json:"key_points"`
	Summary      string      `json:"summary"`
	Tags         []string    `json:"tags"`
	MimeType     string      `json:"mime_type,omitempty"`
	Transcoded   bool        `json:"transcoded"`
	OriginalSize int64       `json:"original_size"`
	FinalSize    int64       `json:"final_size"`
}

// SummaryFromModel converts a model to a response.
func SummaryFromModel(s *models.VideoSummary) SummaryResponse {
	return SummaryResponse{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		RunID:        s.RunID,
		SourceName:   s.SourceName,
		ObjectURI:    s.ObjectURI,
		Title:        s.Title,
		KeyPoints:    s.KeyPoints,
		Summary:      s.Summary,
		Tags:         s.TagList(),
		MimeType:     s.MimeType,
		Transcoded:   s.Transcoded,
		OriginalSize: s.OriginalSize,
		FinalSize:    s.FinalSize,
	}
}
