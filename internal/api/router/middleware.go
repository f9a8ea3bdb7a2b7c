package router

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/assetica/platform-core/internal/api/handler"
	"github.com/assetica/platform-core/internal/auth"
)

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		logger.Info("HTTP Request",
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.String("ip", c.ClientIP()),
			slog.Duration("latency", latency),
		)
	}
}

// RequireAuth verifies the bearer credential on every request. Every
// rejection maps to the same unauthenticated response; the specific reason
// is logged, never echoed to the caller.
func RequireAuth(verifier *auth.Verifier, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(c)
			return
		}

		identity, err := verifier.Verify(parts[1], time.Now())
		if err != nil {
			logger.Warn("Credential rejected",
				slog.String("reason", err.Error()),
				slog.String("path", c.Request.URL.Path),
				slog.String("ip", c.ClientIP()),
			)
			unauthorized(c)
			return
		}

		c.Set(handler.IdentityKey, identity)
		c.Next()
	}
}

// RequireCapability gates privileged surfaces. Evaluated on every request;
// missing identity is unauthenticated, insufficient capability is forbidden.
func RequireCapability(capability string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := handler.GetIdentity(c)
		if !ok {
			unauthorized(c)
			return
		}

		if !auth.Authorize(identity, capability) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}
