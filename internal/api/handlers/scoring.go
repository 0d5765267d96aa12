package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fastsplits/xc-engine/internal/models"
	"github.com/fastsplits/xc-engine/internal/services"
)

// ScoringHandler exposes meet scoring, time projection, and course-record
// team performances
type ScoringHandler struct {
	scoring *services.ScoringService
	logger  *logrus.Logger
}

// NewScoringHandler creates a new scoring handler
func NewScoringHandler(scoring *services.ScoringService, logger *logrus.Logger) *ScoringHandler {
	return &ScoringHandler{scoring: scoring, logger: logger}
}

type scoreMeetRequest struct {
	Entries []models.MeetEntry `json:"entries" binding:"required"`
}

// ScoreMeet scores a set of athletes with projected times on a common course
func (h *ScoringHandler) ScoreMeet(c *gin.Context) {
	var req scoreMeetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	standings := services.ScoreMeet(req.Entries)

	h.logger.WithFields(logrus.Fields{
		"entries": len(req.Entries),
		"teams":   len(standings),
	}).Debug("Scored meet")

	c.JSON(http.StatusOK, gin.H{"standings": standings})
}

// ProjectTime projects a time from one course onto another
func (h *ScoringHandler) ProjectTime(c *gin.Context) {
	timeCS, err := strconv.Atoi(c.Query("time_cs"))
	if err != nil || timeCS <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "time_cs must be a positive integer"})
		return
	}
	sourceID, err := uuid.Parse(c.Query("source_course_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid source_course_id"})
		return
	}
	targetID, err := uuid.Parse(c.Query("target_course_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target_course_id"})
		return
	}

	projected, err := h.scoring.ProjectTime(c.Request.Context(), timeCS, sourceID, targetID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"time_cs":          timeCS,
		"source_course_id": sourceID,
		"target_course_id": targetID,
		"projected_cs":     projected,
	})
}

// TopTeamPerformances lists the best single-race top-5 team times on a course
func (h *ScoringHandler) TopTeamPerformances(c *gin.Context) {
	courseID, ok := parseCourseID(c)
	if !ok {
		return
	}

	var gender *models.Gender
	if raw := c.Query("gender"); raw == string(models.GenderMale) || raw == string(models.GenderFemale) {
		g := models.Gender(raw)
		gender = &g
	}

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	performances, err := h.scoring.TopTeamPerformances(c.Request.Context(), courseID, gender, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"performances": performances})
}
