package job

// DefaultMaxAttempts applies when the enqueue does not carry a limit
const DefaultMaxAttempts = 5

// Job state constants
const (
	StateEnqueued   = "ENQUEUED"
	StateScheduled  = "SCHEDULED"
	StateProcessing = "PROCESSING"
	StateSucceeded  = "SUCCEEDED"
	StateFailed     = "FAILED"
	StateDeleted    = "DELETED"
)
