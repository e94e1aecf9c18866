// Package apperrors defines the error taxonomy shared across the pipeline.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation covers malformed or oversized input rejected before a job exists.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates an unknown job or case identifier.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition indicates an illegal job status change.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrJobBusy indicates a job already has an active run.
	ErrJobBusy = errors.New("job busy")

	// ErrMalformedModelOutput indicates the model payload failed structural validation.
	ErrMalformedModelOutput = errors.New("malformed model output")

	// Collaborator failure kinds carried inside a StageError.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrEmbeddingFailed    = errors.New("embedding failed")
	ErrIndexUnavailable   = errors.New("vector index unavailable")
	ErrModelUnavailable   = errors.New("model unavailable")
)

// StageError marks a collaborator failure that exhausted its retries and is
// fatal for the job run. It preserves the originating error kind.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps a collaborator error with the stage it occurred in.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
