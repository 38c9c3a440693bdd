package entity

import "errors"

var (
	// ErrNotFound is returned when a job, receipt or rule does not exist
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller does not own the resource
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is returned for malformed user input
	ErrValidation = errors.New("validation failed")

	// ErrJobNotCancelable is returned when cancel is requested on a finished job
	ErrJobNotCancelable = errors.New("job is not cancelable")

	// ErrJobNotReady is returned when an export is requested before the job completed
	ErrJobNotReady = errors.New("job is not completed")
)

// ValidationError is a user-input error with a machine-readable code.
// It matches ErrValidation under errors.Is.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Code + ": " + e.Message
}

// Is reports whether target is ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError
func NewValidationError(code, message string) error {
	return &ValidationError{Code: code, Message: message}
}
