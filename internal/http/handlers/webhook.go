package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/vidbrief/internal/models"
	"github.com/jmylchreest/vidbrief/internal/observability"
)

// WebhookHandler answers the Dropbox webhook.
type WebhookHandler struct {
	runner PipelineRunner
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(runner PipelineRunner) *WebhookHandler {
	return &WebhookHandler{runner: runner}
}

// Register registers the webhook routes with the API.
func (h *WebhookHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "verifyDropboxWebhook",
		Method:      "GET",
		Path:        "/webhook/dropbox",
		Summary:     "Dropbox webhook verification",
		Description: "Echoes the challenge parameter as plain text",
		Tags:        []string{"Webhooks"},
	}, h.Challenge)

	huma.Register(api, huma.Operation{
		OperationID: "notifyDropboxWebhook",
		Method:      "POST",
		Path:        "/webhook/dropbox",
		Summary:     "Dropbox change notification",
		Description: "Starts a background pipeline run",
		Tags:        []string{"Webhooks"},
	}, h.Notify)
}

// ChallengeInput is the input for webhook verification.
type ChallengeInput struct {
	Challenge string `query:"challenge"`
}

// ChallengeOutput echoes the challenge.
type ChallengeOutput struct {
	ContentType string `header:"Content-Type"`
	NoSniff     string `header:"X-Content-Type-Options"`
	Body        []byte
}

// Challenge echoes the challenge query parameter.
func (h *WebhookHandler) Challenge(_ context.Context, input *ChallengeInput) (*ChallengeOutput, error) {
	return &ChallengeOutput{
		ContentType: "text/plain",
		NoSniff:     "nosniff",
		Body:        []byte(input.Challenge),
	}, nil
}

// NotifyOutput acknowledges a change notification.
type NotifyOutput struct {
	Body struct {
		Started bool `json:"started" doc:"False when the change was queued behind an active run"`
	}
}

// Notify starts a background run, or queues one behind an active run.
func (h *WebhookHandler) Notify(ctx context.Context, _ *struct{}) (*NotifyOutput, error) {
	out := &NotifyOutput{}
	out.Body.Started = h.runner.Request(models.RunTriggerWebhook)
	if !out.Body.Started {
		observability.LoggerFromContext(ctx).InfoContext(ctx, "webhook received while a run is in progress, queued a follow-up run")
	}
	return out, nil
}
