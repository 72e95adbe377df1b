package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrUnresolvedList is returned when a job's list id is absent from the list resolution
	ErrUnresolvedList = errors.New("list not found in resolution")
)

// DispatchError describes a non-zero result code returned by the dispatcher
type DispatchError struct {
	JobID int64
	Code  ResultCode
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch of job %d failed with result code %d", e.JobID, e.Code)
}

// RunFailedError wraps an unexpected failure that aborted a cron run.
// The lock has already been released when this error reaches the caller.
type RunFailedError struct {
	JobID int64
	Err   error
}

func (e *RunFailedError) Error() string {
	if e.JobID == 0 {
		return "cron run failed: " + e.Err.Error()
	}
	return fmt.Sprintf("cron run failed on job %d: %s", e.JobID, e.Err.Error())
}

func (e *RunFailedError) Unwrap() error {
	return e.Err
}
