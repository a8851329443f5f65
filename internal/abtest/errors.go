package abtest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation matches any *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound matches any *NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState matches any *InvalidStateError.
	ErrInvalidState = errors.New("invalid state")
	// ErrBackend matches any *BackendError.
	ErrBackend = errors.New("backend error")
)

// Issue captures a validation problem with a field.
type Issue struct {
	Field   string
	Message string
}

// ValidationError aggregates validation issues found before any side effect.
type ValidationError struct {
	Issues []Issue
}

// Error renders validation issues as a multi-line string.
func (err *ValidationError) Error() string {
	if err == nil || len(err.Issues) == 0 {
		return "validation failed"
	}
	lines := make([]string, 0, len(err.Issues))
	for _, issue := range err.Issues {
		lines = append(lines, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return strings.Join(lines, "\n")
}

// Is matches ErrValidation.
func (err *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports an unknown test, variant or input id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (err *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", err.Kind, err.ID)
}

// Is matches ErrNotFound.
func (err *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InvalidStateError reports an operation not legal for the current status.
type InvalidStateError struct {
	TestID string
	Status Status
	Op     string
}

func (err *InvalidStateError) Error() string {
	return fmt.Sprintf("test %q: cannot %s while %s", err.TestID, err.Op, err.Status)
}

// Is matches ErrInvalidState.
func (err *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// BackendError is a sample-scoped generation failure. It carries enough
// context to replay the sample in isolation.
type BackendError struct {
	TestID      string
	VariantID   string
	InputID     string
	SampleIndex int
	Kind        string
	Err         error
}

func (err *BackendError) Error() string {
	return fmt.Sprintf("test %q variant %q input %q sample %d: %v", err.TestID, err.VariantID, err.InputID, err.SampleIndex, err.Err)
}

// Unwrap exposes the underlying backend error.
func (err *BackendError) Unwrap() error {
	return err.Err
}

// Is matches ErrBackend.
func (err *BackendError) Is(target error) bool {
	return target == ErrBackend
}

// SampleError converts the failure into its recorded form.
func (err *BackendError) SampleError() SampleError {
	message := ""
	if err.Err != nil {
		message = err.Err.Error()
	}
	return SampleError{
		TestID:      err.TestID,
		VariantID:   err.VariantID,
		InputID:     err.InputID,
		SampleIndex: err.SampleIndex,
		Kind:        err.Kind,
		Message:     message,
	}
}
