package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Failure taxonomy for the pipeline. The distinctions drive behavior:
// transient service failures are retried with backoff, everything else in
// the extraction path is terminal after one attempt, persistence failures
// are fatal for the current document only, and a budget refusal is fatal
// for the whole batch before it starts.
var (
	ErrTransientService    = errors.New("transient service failure")
	ErrPermanentExtraction = errors.New("permanent extraction failure")
	ErrPersistence         = errors.New("persistence failure")
	ErrBudgetExceeded      = errors.New("daily cost limit reached")
	ErrInvalidInput        = errors.New("invalid input")
)

// NewAppError constructs an AppError wrapping cause.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapError annotates err with message, preserving the chain.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Transient reports whether err belongs to the retryable failure class.
func Transient(err error) bool {
	return errors.Is(err, ErrTransientService)
}
