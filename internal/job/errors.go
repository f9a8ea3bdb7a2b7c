package job

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobDue is returned by a claim when no due job is available
	ErrNoJobDue = errors.New("no job due")

	// ErrInvalidTransition is returned when an operator action is not valid
	// from the job's current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrUnknownJobType is returned when no handler is registered for a job's type
	ErrUnknownJobType = errors.New("unknown job type")
)
