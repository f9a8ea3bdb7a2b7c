package job

import "time"

// Job represents one unit of deferred work persisted in the job store.
type Job struct {
	JobID          string     `db:"job_id"`
	TenantID       string     `db:"tenant_id"`
	Subject        string     `db:"subject"`
	JobType        string     `db:"job_type"`
	Payload        string     `db:"payload"`
	State          string     `db:"state"`
	Attempts       int        `db:"attempts"`
	MaxAttempts    int        `db:"max_attempts"`
	NextAttemptAt  time.Time  `db:"next_attempt_at"`
	LeaseExpiresAt *time.Time `db:"lease_expires_at"`
	WorkerID       *string    `db:"worker_id"`
	LastError      *string    `db:"last_error"`
	IdempotencyKey *string    `db:"idempotency_key"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// NewJob holds the caller-supplied fields for an enqueue.
type NewJob struct {
	TenantID       string
	Subject        string
	JobType        string
	Payload        string
	ScheduledAt    *time.Time
	IdempotencyKey *string
	MaxAttempts    int
}

// IsTerminal reports whether no autonomous transition can leave the state.
func IsTerminal(state string) bool {
	return state == StateSucceeded || state == StateFailed || state == StateDeleted
}

// CanRequeue reports whether an operator requeue is valid from the state.
func CanRequeue(state string) bool {
	return state == StateFailed || state == StateSucceeded
}

// CanDelete reports whether an operator delete is valid from the state.
func CanDelete(state string) bool {
	return state != StateProcessing && state != StateDeleted
}
