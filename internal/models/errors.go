package models

import (
	"errors"
	"fmt"
)

// ErrValidation is a field-level validation failure.
type ErrValidation struct {
	Field   string
	Message string
}

func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

var (
	// ErrSourceNameRequired indicates a summary without its inbox item name.
	ErrSourceNameRequired = errors.New("source_name is required")

	// ErrRunIDRequired indicates a record not attached to a pipeline run.
	ErrRunIDRequired = errors.New("run_id is required")

	// ErrInvalidTrigger indicates an unknown run trigger.
	ErrInvalidTrigger = errors.New("invalid trigger: must be one of cli, api, webhook, schedule")
)
