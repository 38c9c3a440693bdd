package pipeline

import (
	"errors"
	"fmt"
)

// ErrJobStopped is returned when the job left the processing state mid-run,
// usually because the owner canceled it
var ErrJobStopped = errors.New("job is no longer processing")

// FatalError aborts a run and carries the error code recorded on the job
type FatalError struct {
	Code string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func fatal(code string, err error) error {
	return &FatalError{Code: code, Err: err}
}
