// Package portalerr defines the error taxonomy shared by the remote client and
// the provisioning engine.
package portalerr

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is wrapped by errors for remote or persisted resources
	// that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is wrapped by errors for remote resources whose
	// creation failed because they exist already.
	ErrAlreadyExists = errors.New("already exists")
	// ErrLockContention is returned when another provisioning pipeline
	// owns the team key.
	ErrLockContention = errors.New("provisioning for team already in progress")
	// ErrBlocked is returned for teams whose remote state requires manual
	// intervention.
	ErrBlocked = errors.New("team is blocked, manual intervention required")
)

// RetryableError is a transient error, the operation can be retried.
type RetryableError struct {
	// Err is the wrapped original error
	Err error
	// After is the earliest point in time that the operation can be retried
	After time.Time
}

func NewRetryableError(originalErr error, retryAfter time.Time) *RetryableError {
	return &RetryableError{
		Err:   originalErr,
		After: retryAfter,
	}
}

func NewRetryableAnytimeError(originalErr error) *RetryableError {
	return &RetryableError{
		Err: originalErr,
	}
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

func (e *RetryableError) Error() string {
	if e.After.IsZero() {
		return fmt.Sprintf("retryable error: %s", e.Err)
	}

	return fmt.Sprintf("retryable error (after %s): %s", e.After, e.Err)
}

// PermanentError is an error that must not be retried, e.g. bad credentials
// or an invalid resource name.
type PermanentError struct {
	Err error
}

func NewPermanentError(originalErr error) *PermanentError {
	return &PermanentError{Err: originalErr}
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error: %s", e.Err)
}

// ValidationError is returned when a request is rejected before any remote
// call was made.
type ValidationError struct {
	Msg string
}

func NewValidationError(format string, a ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, a...)}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Msg
}

// IsRetryable returns true if err wraps a RetryableError.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// IsPermanent returns true if err wraps a PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// IsValidation returns true if err wraps a ValidationError.
func IsValidation(err error) bool {
	var valErr *ValidationError
	return errors.As(err, &valErr)
}
