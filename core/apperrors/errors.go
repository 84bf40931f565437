// Package apperrors defines the error taxonomy shared by the training,
// streaming and inference paths.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	// ErrDatasetNotFound indicates no upload was given and no default dataset is available.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrDataError indicates malformed or empty training input.
	ErrDataError = errors.New("invalid training data")

	// ErrModelUnavailable indicates no model has been published yet.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrPredictionError indicates the published model could not produce a prediction.
	ErrPredictionError = errors.New("prediction failed")

	// ErrInvalidTransition indicates a status change on a job that is already terminal.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTimeout indicates a subscriber waited too long for the first progress event.
	ErrTimeout = errors.New("timed out waiting for progress")

	// ErrNotFound indicates an unknown job id or a missing artifact.
	ErrNotFound = errors.New("not found")
)

// Error wraps a sentinel with the operation and identifier it concerns.
type Error struct {
	// Op is the operation that failed (e.g. "submit", "transform").
	Op string

	// ID is the job id or artifact name, if applicable.
	ID string

	// Err is the sentinel or underlying error.
	Err error

	// Detail is a human-readable description appended to Err.
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Err.Error()
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.ID, msg)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error for op wrapping err with a formatted detail.
func New(op string, err error, format string, args ...any) error {
	return &Error{Op: op, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing job or artifact identified by id.
func NotFound(op, id string) error {
	return &Error{Op: op, ID: id, Err: ErrNotFound}
}

// DataError reports malformed or empty training input.
func DataError(format string, args ...any) error {
	return &Error{Err: ErrDataError, Detail: fmt.Sprintf(format, args...)}
}

// Code maps err onto a stable machine-readable code for API responses.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDatasetNotFound):
		return "DATASET_NOT_FOUND"
	case errors.Is(err, ErrModelUnavailable):
		return "MODEL_UNAVAILABLE"
	case errors.Is(err, ErrPredictionError):
		return "PREDICTION_ERROR"
	case errors.Is(err, ErrDataError):
		return "DATA_ERROR"
	case errors.Is(err, ErrTimeout):
		return "TIMEOUT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	}
	return "INTERNAL"
}
