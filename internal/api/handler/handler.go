package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/assetica/platform-core/internal/api/dto"
	"github.com/assetica/platform-core/internal/job"
	"github.com/assetica/platform-core/internal/jobstore"
)

// JobStore is the persistence surface the handlers depend on
type JobStore interface {
	Enqueue(ctx context.Context, n job.NewJob) (string, error)
	GetJob(ctx context.Context, jobID string) (*job.Job, error)
	ListJobs(ctx context.Context, filter jobstore.ListFilter) ([]job.Job, error)
	Requeue(ctx context.Context, jobID string) error
	Delete(ctx context.Context, jobID string) error
}

// Publisher sends enqueue notifications to the worker service
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Store       JobStore
	Publisher   Publisher
	MaxAttempts int
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger      *slog.Logger
	store       JobStore
	publisher   Publisher
	maxAttempts int
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:      deps.Logger,
		store:       deps.Store,
		publisher:   deps.Publisher,
		maxAttempts: deps.MaxAttempts,
	}
}

func toJobDTO(j *job.Job) dto.JobDTO {
	return dto.JobDTO{
		JobID:         j.JobID,
		TenantID:      j.TenantID,
		Subject:       j.Subject,
		JobType:       j.JobType,
		Payload:       []byte(j.Payload),
		State:         j.State,
		Attempts:      j.Attempts,
		MaxAttempts:   j.MaxAttempts,
		NextAttemptAt: j.NextAttemptAt.Format(time.RFC3339),
		LastError:     j.LastError,
		CreatedAt:     j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     j.UpdatedAt.Format(time.RFC3339),
	}
}
