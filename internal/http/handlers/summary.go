package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/vidbrief/internal/models"
	"github.com/jmylchreest/vidbrief/internal/repository"
)

// SummaryHandler serves stored video summaries.
type SummaryHandler struct {
	summaries repository.SummaryRepository
	auth      APIKeyAuth
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(summaries repository.SummaryRepository, auth APIKeyAuth) *SummaryHandler {
	return &SummaryHandler{summaries: summaries, auth: auth}
}

// Register registers the summary routes with the API.
func (h *SummaryHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSummaries",
		Method:      "GET",
		Path:        "/api/v1/summaries",
		Summary:     "List summaries",
		Description: "Returns recent video summaries, newest first",
		Tags:        []string{"Summaries"},
		Security:    apiKeySecurity,
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getSummary",
		Method:      "GET",
		Path:        "/api/v1/summaries/{id}",
		Summary:     "Get summary",
		Tags:        []string{"Summaries"},
		Security:    apiKeySecurity,
	}, h.GetByID)
}

// ListSummariesInput is the input for listing summaries.
type ListSummariesInput struct {
	AuthInput
	Limit int    `query:"limit" default:"20" minimum:"1" maximum:"500" doc:"Maximum summaries to return"`
	RunID string `query:"run_id" doc:"Only summaries produced by this run"`
}

// ListSummariesOutput is the output for listing summaries.
type ListSummariesOutput struct {
	Body struct {
		Summaries []SummaryResponse `json:"summaries"`
	}
}

// List returns recent summaries, or those of one run.
func (h *SummaryHandler) List(ctx context.Context, input *ListSummariesInput) (*ListSummariesOutput, error) {
	if err := h.auth.Check(input.APIKey); err != nil {
		return nil, err
	}

	var (
		summaries []*models.VideoSummary
		err       error
	)
	if input.RunID != "" {
		runID, parseErr := models.ParseULID(input.RunID)
		if parseErr != nil {
			return nil, huma.Error400BadRequest("invalid run ID format", parseErr)
		}
		summaries, err = h.summaries.ListByRun(ctx, runID)
	} else {
		summaries, err = h.summaries.ListRecent(ctx, input.Limit)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list summaries", err)
	}

	out := &ListSummariesOutput{}
	out.Body.Summaries = make([]SummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		out.Body.Summaries = append(out.Body.Summaries, SummaryFromModel(s))
	}
	return out, nil
}

// GetSummaryInput is the input for getting a summary.
type GetSummaryInput struct {
	AuthInput
	ID string `path:"id" doc:"Summary ID (ULID)"`
}

// GetSummaryOutput is the output for getting a summary.
type GetSummaryOutput struct {
	Body SummaryResponse
}

// GetByID returns one summary.
func (h *SummaryHandler) GetByID(ctx context.Context, input *GetSummaryInput) (*GetSummaryOutput, error) {
	if err := h.auth.Check(input.APIKey); err != nil {
		return nil, err
	}

	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid summary ID format", err)
	}
	s, err := h.summaries.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get summary", err)
	}
	if s == nil {
		return nil, huma.Error404NotFound("summary not found")
	}
	return &GetSummaryOutput{Body: SummaryFromModel(s)}, nil
}
