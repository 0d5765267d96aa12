package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fastsplits/xc-engine/internal/repository"
	"github.com/fastsplits/xc-engine/internal/services"
)

// respondError maps the engine's typed errors onto HTTP statuses. Data-state
// errors are returned to the caller, never retried here.
func respondError(c *gin.Context, err error) {
	var insufficient *services.InsufficientSharedAthletesError
	switch {
	case errors.Is(err, repository.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "course_not_found"})
	case errors.Is(err, repository.ErrRecommendationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "recommendation_not_found"})
	case errors.Is(err, repository.ErrRecommendationAlreadyResolved):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "recommendation_already_resolved"})
	case errors.Is(err, repository.ErrConcurrentApplyConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "concurrent_apply_conflict"})
	case errors.Is(err, services.ErrInvalidCourseGeometry):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "invalid_course_geometry"})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": err.Error(),
			"code":  "insufficient_shared_athletes",
			"details": gin.H{
				"found":    insufficient.Found,
				"required": insufficient.Required,
			},
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
