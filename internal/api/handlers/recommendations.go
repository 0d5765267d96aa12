package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fastsplits/xc-engine/internal/config"
	"github.com/fastsplits/xc-engine/internal/repository"
	"github.com/fastsplits/xc-engine/internal/services"
)

// RecommendationHandler exposes the recommendation lifecycle and the
// annotation source
type RecommendationHandler struct {
	lifecycle  *services.LifecycleManager
	annotation *services.AnnotationService
	analyzer   *services.CourseAnalyzer
	cfg        *config.Config
	logger     *logrus.Logger
}

// NewRecommendationHandler creates a new recommendation handler
func NewRecommendationHandler(lifecycle *services.LifecycleManager, annotation *services.AnnotationService, analyzer *services.CourseAnalyzer, cfg *config.Config, logger *logrus.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		lifecycle:  lifecycle,
		annotation: annotation,
		analyzer:   analyzer,
		cfg:        cfg,
		logger:     logger,
	}
}

func parseOptionalCourseID(c *gin.Context) (*uuid.UUID, bool) {
	raw := c.Query("course_id")
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course_id"})
		return nil, false
	}
	return &id, true
}

// ListPending returns pending recommendations, optionally for one course
func (h *RecommendationHandler) ListPending(c *gin.Context) {
	courseID, ok := parseOptionalCourseID(c)
	if !ok {
		return
	}

	recs, err := h.lifecycle.ListPending(c.Request.Context(), courseID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

// ListHistory returns applied and dismissed recommendations
func (h *RecommendationHandler) ListHistory(c *gin.Context) {
	courseID, ok := parseOptionalCourseID(c)
	if !ok {
		return
	}

	recs, err := h.lifecycle.ListHistory(c.Request.Context(), courseID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

type resolveRequest struct {
	Actor string  `json:"actor" binding:"required"`
	Notes *string `json:"notes"`
}

// Apply applies a pending recommendation to its course
func (h *RecommendationHandler) Apply(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recommendation id"})
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.lifecycle.Apply(c.Request.Context(), id, req.Actor, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Dismiss dismisses a pending recommendation
func (h *RecommendationHandler) Dismiss(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recommendation id"})
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.lifecycle.Dismiss(c.Request.Context(), id, req.Actor, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// AnnotateCourse asks the annotation source for a difficulty proposal and
// records it as a pending recommendation
func (h *RecommendationHandler) AnnotateCourse(c *gin.Context) {
	courseID, ok := parseCourseID(c)
	if !ok {
		return
	}
	if h.annotation == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "annotation source not configured"})
		return
	}

	ctx := c.Request.Context()
	stats, err := h.analyzer.AnalyzeCourse(ctx, courseID, repository.ResultFilter{})
	if err != nil {
		respondError(c, err)
		return
	}

	rec, err := h.annotation.AnnotateCourse(ctx, courseID, stats, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type overrideRequest struct {
	Difficulty float64 `json:"difficulty" binding:"required"`
	Actor      string  `json:"actor" binding:"required"`
}

// OverrideDifficulty sets a course's difficulty directly, bypassing the
// recommendation flow
func (h *RecommendationHandler) OverrideDifficulty(c *gin.Context) {
	courseID, ok := parseCourseID(c)
	if !ok {
		return
	}

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.lifecycle.OverrideDifficulty(c.Request.Context(), courseID, req.Difficulty, req.Actor); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course_id": courseID, "difficulty_rating": req.Difficulty})
}
