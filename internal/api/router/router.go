package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/assetica/platform-core/internal/api/handler"
	"github.com/assetica/platform-core/internal/auth"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, verifier *auth.Verifier) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	// Liveness probe; deliberately touches nothing but the process
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "platform-core-api",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes; everything beyond the health probe is authenticated
	v1 := r.Group("/api/v1")
	v1.Use(RequireAuth(verifier, deps.Logger))
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Enqueue a background job
			jobs.POST("", jobHandler.EnqueueJob)

			// GET /api/v1/jobs/:job_id - Tenant-scoped job inspection
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		// Administrative control surface, admin capability required
		admin := v1.Group("/admin")
		admin.Use(RequireCapability(auth.CapabilityAdmin))
		{
			admin.GET("/jobs", jobHandler.AdminListJobs)
			admin.GET("/jobs/:job_id", jobHandler.AdminGetJob)
			admin.POST("/jobs/:job_id/requeue", jobHandler.AdminRequeueJob)
			admin.DELETE("/jobs/:job_id", jobHandler.AdminDeleteJob)
		}
	}

	return r
}
