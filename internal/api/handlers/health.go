package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/fastsplits/xc-engine/internal/services"
	"github.com/fastsplits/xc-engine/pkg/database"
)

// HealthHandler exposes health and readiness checks
type HealthHandler struct {
	db         *database.DB
	redis      *redis.Client
	annotation *services.AnnotationService
	logger     *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, redisClient *redis.Client, annotation *services.AnnotationService, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		db:         db,
		redis:      redisClient,
		annotation: annotation,
		logger:     logger,
	}
}

// GetHealth reports liveness plus dependency status
func (h *HealthHandler) GetHealth(c *gin.Context) {
	checks := map[string]string{}
	status := http.StatusOK

	if err := h.db.HealthCheck(); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["redis"] = "ok"
	}

	if h.annotation != nil {
		if h.annotation.IsHealthy() {
			checks["annotation"] = "ok"
		} else {
			// The annotation source is optional; a tripped circuit degrades
			// but does not fail health
			checks["annotation"] = "circuit open"
		}
	}

	c.JSON(status, gin.H{
		"status":    statusText(status),
		"service":   "xc-engine",
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// GetReady reports readiness to serve traffic
func (h *HealthHandler) GetReady(c *gin.Context) {
	if err := h.db.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func statusText(status int) string {
	if status == http.StatusOK {
		return "healthy"
	}
	return "degraded"
}
