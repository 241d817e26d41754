package scheduler

import "errors"

var (
	// ErrUnknownJob is returned by AddJob when no handler is registered under the name.
	ErrUnknownJob = errors.New("job not registered")
	// ErrInvalidSchedule is returned by AddJob for schedules that can never be valid.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrInvalidArgs is returned by AddJob when args are not valid JSON.
	ErrInvalidArgs = errors.New("invalid job args")
	// ErrNotFound is returned by RemoveJob when the job was not in the live
	// schedule. The storage delete has already happened by then.
	ErrNotFound = errors.New("job not found in active schedule")
	// ErrStoreUnavailable wraps persistence failures surfaced by AddJob and RemoveJob.
	ErrStoreUnavailable = errors.New("job store unavailable")
)
