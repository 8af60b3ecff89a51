package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/vidbrief/internal/models"
	"github.com/jmylchreest/vidbrief/internal/observability"
	"github.com/jmylchreest/vidbrief/internal/pipeline"
	"github.com/jmylchreest/vidbrief/internal/repository"
)

// PipelineRunner is the part of pipeline.Runner the handlers use.
type PipelineRunner interface {
	TryRun(ctx context.Context, trigger models.RunTrigger) (*pipeline.RunReport, error)
	Go(trigger models.RunTrigger) error
	Request(trigger models.RunTrigger) bool
	Running() bool
}

// RunHandler triggers and lists pipeline runs.
type RunHandler struct {
	runner PipelineRunner
	runs   repository.RunRepository
	auth   APIKeyAuth
}

// NewRunHandler creates a new run handler.
func NewRunHandler(runner PipelineRunner, runs repository.RunRepository, auth APIKeyAuth) *RunHandler {
	return &RunHandler{runner: runner, runs: runs, auth: auth}
}

// Register registers the run routes with the API.
func (h *RunHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "triggerRun",
		Method:      "POST",
		Path:        "/api/v1/runs",
		Summary:     "Run the pipeline",
		Description: "Processes the inbox and returns the run report once the run finishes",
		Tags:        []string{"Runs"},
		Security:    apiKeySecurity,
	}, h.Trigger)

	huma.Register(api, huma.Operation{
		OperationID:   "triggerRunAsync",
		Method:        "POST",
		Path:          "/api/v1/runs/async",
		Summary:       "Start a pipeline run",
		Description:   "Starts processing the inbox in the background",
		Tags:          []string{"Runs"},
		Security:      apiKeySecurity,
		DefaultStatus: http.StatusAccepted,
	}, h.TriggerAsync)

	huma.Register(api, huma.Operation{
		OperationID: "listRuns",
		Method:      "GET",
		Path:        "/api/v1/runs",
		Summary:     "List runs",
		Description: "Returns recent pipeline runs, newest first",
		Tags:        []string{"Runs"},
		Security:    apiKeySecurity,
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getRun",
		Method:      "GET",
		Path:        "/api/v1/runs/{id}",
		Summary:     "Get run",
		Description: "Returns a pipeline run with its items",
		Tags:        []string{"Runs"},
		Security:    apiKeySecurity,
	}, h.GetByID)
}

// AuthInput carries the api-key header.
type AuthInput struct {
	APIKey string `header:"api-key" doc:"Shared API key"`
}

// TriggerRunInput is the input for triggering a run.
type TriggerRunInput struct {
	AuthInput
}

// TriggerRunOutput is the output for triggering a run.
type TriggerRunOutput struct {
	Body *pipeline.RunReport
}

// Trigger runs the pipeline synchronously. The run continues if the client
// disconnects.
func (h *RunHandler) Trigger(ctx context.Context, input *TriggerRunInput) (*TriggerRunOutput, error) {
	if err := h.auth.Check(input.APIKey); err != nil {
		return nil, err
	}

	report, err := h.runner.TryRun(context.WithoutCancel(ctx), models.RunTriggerAPI)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		return nil, huma.Error409Conflict("a pipeline run is already in progress")
	}
	if err != nil && report == nil {
		return nil, huma.Error500InternalServerError("pipeline run failed", err)
	}
	// A run that aborted still has a report with status failed and the error.
	if err != nil {
		observability.WithError(observability.LoggerFromContext(ctx), err).WarnContext(ctx, "requested run aborted",
			slog.String("run_id", report.RunID.String()))
	}
	return &TriggerRunOutput{Body: report}, nil
}

// TriggerAsyncOutput is the output for starting a background run.
type TriggerAsyncOutput struct {
	Body struct {
		Status string `json:"status" example:"accepted"`
	}
}

// TriggerAsync starts a run in the background.
func (h *RunHandler) TriggerAsync(ctx context.Context, input *TriggerRunInput) (*TriggerAsyncOutput, error) {
	if err := h.auth.Check(input.APIKey); err != nil {
		return nil, err
	}
	if err := h.runner.Go(models.RunTriggerAPI); err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			return nil, huma.Error409Conflict("a pipeline run is already in progress")
		}
		return nil, huma.Error500InternalServerError("starting run", err)
	}
	out := &TriggerAsyncOutput{}
	out.Body.Status = "accepted"
	return out, nil
}

// ListRunsInput is the input for listing runs.
type ListRunsInput struct {
	AuthInput
	Limit int `query:"limit" default:"20" minimum:"1" maximum:"500" doc:"Maximum runs to return"`
}

// ListRunsOutput is the output for listing runs.
type ListRunsOutput struct {
	Body struct {
		Running bool          `json:"running"`
		Runs    []RunResponse `json:"runs"`
	}
}

// List returns recent runs.
func (h *RunHandler) List(ctx context.Context, input *ListRunsInput) (*ListRunsOutput, error) {
	if err := h.auth.Check(input.APIKey); err != nil {
		return nil, err
	}

	runs, err := h.runs.ListRecent(ctx, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list runs", err)
	}

	out := &ListRunsOutput{}
	out.Body.Running = h.runner.Running()
	out.Body.Runs = make([]RunResponse, 0, len(runs))
	for _, r := range runs {
		out.Body.Runs = append(out.Body.Runs, RunFromModel(r))
	}
	return out, nil
}

// GetRunInput is the input for getting a run.
type GetRunInput struct {
	AuthInput
	ID string `path:"id" doc:"Run ID (ULID)"`
}

// GetRunOutput is the output for getting a run.
type GetRunOutput struct {
	Body RunResponse
}

// GetByID returns a run with its items.
func (h *RunHandler) GetByID(ctx context.Context, input *GetRunInput) (*GetRunOutput, error) {
	if err := h.auth.Check(input.APIKey); err != nil {
		return nil, err
	}

	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid run ID format", err)
	}
	run, err := h.runs.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get run", err)
	}
	if run == nil {
		return nil, huma.Error404NotFound("run not found")
	}
	return &GetRunOutput{Body: RunFromModel(run)}, nil
}
