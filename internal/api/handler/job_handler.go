package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/assetica/platform-core/internal/api/dto"
	"github.com/assetica/platform-core/internal/auth"
	"github.com/assetica/platform-core/internal/job"
)

// EnqueueJob handles POST /api/v1/jobs
// Durably records a new background job for asynchronous processing.
func (h *JobHandler) EnqueueJob(c *gin.Context) {
	identity, ok := GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req dto.EnqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid enqueue request body", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	jobID, err := h.store.Enqueue(c.Request.Context(), job.NewJob{
		TenantID:       identity.TenantID,
		Subject:        identity.Subject,
		JobType:        req.JobType,
		Payload:        string(req.Payload),
		ScheduledAt:    req.ScheduledAt,
		IdempotencyKey: req.IdempotencyKey,
		MaxAttempts:    h.maxAttempts,
	})
	if err != nil {
		h.logger.Error("Failed to enqueue job", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue job"})
		return
	}

	// The job is durable at this point; a lost notification only delays
	// pickup until the next worker poll.
	if h.publisher != nil {
		body, _ := json.Marshal(gin.H{"job_id": jobID})
		if err := h.publisher.PublishWithRetry(c.Request.Context(), body, "application/json"); err != nil {
			h.logger.Warn("Failed to publish enqueue notification",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
		}
	}

	state := job.StateEnqueued
	if req.ScheduledAt != nil {
		state = job.StateScheduled
	}

	c.JSON(http.StatusAccepted, dto.EnqueueJobResponse{
		JobID: jobID,
		State: state,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Tenant-scoped job inspection: callers only see their own tenant's jobs.
func (h *JobHandler) GetJob(c *gin.Context) {
	identity, ok := GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	j, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger.Error("Failed to get job", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	// Jobs outside the caller's tenant, and deleted jobs, are invisible
	// to non-operators.
	if !identity.HasCapability(auth.CapabilityAdmin) {
		if j.TenantID != identity.TenantID || j.State == job.StateDeleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
	}

	c.JSON(http.StatusOK, toJobDTO(j))
}
