package dto

import (
	"encoding/json"
	"time"
)

type EnqueueJobRequest struct {
	JobType        string          `json:"job_type" binding:"required"`
	Payload        json.RawMessage `json:"payload" binding:"required"`
	ScheduledAt    *time.Time      `json:"scheduled_at"`
	IdempotencyKey *string         `json:"idempotency_key"`
}

type EnqueueJobResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}

type ListJobsRequest struct {
	State    string `form:"state"`
	JobType  string `form:"job_type"`
	TenantID string `form:"tenant_id"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID         string          `json:"job_id"`
	TenantID      string          `json:"tenant_id"`
	Subject       string          `json:"subject"`
	JobType       string          `json:"job_type"`
	Payload       json.RawMessage `json:"payload"`
	State         string          `json:"state"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"max_attempts"`
	NextAttemptAt string          `json:"next_attempt_at"`
	LastError     *string         `json:"last_error,omitempty"`
	CreatedAt     string          `json:"created_at"`
	UpdatedAt     string          `json:"updated_at"`
}
