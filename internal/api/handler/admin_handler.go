package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/assetica/platform-core/internal/api/dto"
	"github.com/assetica/platform-core/internal/job"
	"github.com/assetica/platform-core/internal/jobstore"
)

// AdminListJobs handles GET /api/v1/admin/jobs
// Lists jobs across tenants with filtering and cursor pagination.
func (h *JobHandler) AdminListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return
	}

	filter := jobstore.ListFilter{
		TenantID:       req.TenantID,
		JobType:        req.JobType,
		State:          req.State,
		IncludeDeleted: true,
		PageSize:       req.PageSize,
		Cursor:         cursor,
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&jobstore.Cursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// AdminGetJob handles GET /api/v1/admin/jobs/:job_id
// Full job inspection including last error and attempt count.
func (h *JobHandler) AdminGetJob(c *gin.Context) {
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

	c.JSON(http.StatusOK, toJobDTO(j))
}

// AdminRequeueJob handles POST /api/v1/admin/jobs/:job_id/requeue
// Returns a FAILED or SUCCEEDED job to SCHEDULED with attempts reset.
func (h *JobHandler) AdminRequeueJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	if err := h.store.Requeue(c.Request.Context(), jobID); err != nil {
		h.writeOperatorError(c, jobID, "requeue", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"state":  job.StateScheduled,
	})
}

// AdminDeleteJob handles DELETE /api/v1/admin/jobs/:job_id
// Soft-deletes any non-processing job.
func (h *JobHandler) AdminDeleteJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	if err := h.store.Delete(c.Request.Context(), jobID); err != nil {
		h.writeOperatorError(c, jobID, "delete", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *JobHandler) writeOperatorError(c *gin.Context, jobID, action string, err error) {
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, job.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid state transition"})
	default:
		h.logger.Error("Operator action failed",
			slog.String("job_id", jobID),
			slog.String("action", action),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + action + " job"})
	}
}
