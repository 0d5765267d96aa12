package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fastsplits/xc-engine/internal/config"
	"github.com/fastsplits/xc-engine/internal/models"
	"github.com/fastsplits/xc-engine/internal/repository"
	"github.com/fastsplits/xc-engine/internal/services"
)

// AnalysisHandler exposes course statistics and calibration
type AnalysisHandler struct {
	analyzer   *services.CourseAnalyzer
	calibrator *services.AnchorCalibrator
	lifecycle  *services.LifecycleManager
	cfg        *config.Config
	logger     *logrus.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(analyzer *services.CourseAnalyzer, calibrator *services.AnchorCalibrator, lifecycle *services.LifecycleManager, cfg *config.Config, logger *logrus.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analyzer:   analyzer,
		calibrator: calibrator,
		lifecycle:  lifecycle,
		cfg:        cfg,
		logger:     logger,
	}
}

func parseCourseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return uuid.Nil, false
	}
	return id, true
}

func parseResultFilter(c *gin.Context) repository.ResultFilter {
	var filter repository.ResultFilter
	if raw := c.Query("gender"); raw == string(models.GenderMale) || raw == string(models.GenderFemale) {
		g := models.Gender(raw)
		filter.Gender = &g
	}
	if raw := c.Query("season"); raw != "" {
		if season, err := strconv.Atoi(raw); err == nil {
			filter.SeasonYear = &season
		}
	}
	return filter
}

// GetCourseStatistics returns descriptive statistics and the naive
// difficulty suggestion for a course
func (h *AnalysisHandler) GetCourseStatistics(c *gin.Context) {
	courseID, ok := parseCourseID(c)
	if !ok {
		return
	}

	stats, err := h.analyzer.AnalyzeCourse(c.Request.Context(), courseID, parseResultFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type calibrateRequest struct {
	AnchorCourseID string `json:"anchor_course_id"`
}

// CalibrateCourse runs an anchor-network calibration and records the result
// as a pending network recommendation
func (h *AnalysisHandler) CalibrateCourse(c *gin.Context) {
	courseID, ok := parseCourseID(c)
	if !ok {
		return
	}

	var req calibrateRequest
	_ = c.ShouldBindJSON(&req)
	anchorRaw := req.AnchorCourseID
	if anchorRaw == "" {
		anchorRaw = h.cfg.DefaultAnchorCourseID
	}
	anchorID, err := uuid.Parse(anchorRaw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing anchor course id"})
		return
	}

	result, err := h.calibrator.CalibrateCourse(c.Request.Context(), courseID, anchorID, parseResultFilter(c))
	if err != nil {
		respondError(c, err)
		return
	}

	rec := services.NetworkRecommendation(result)
	if err := h.lifecycle.Submit(c.Request.Context(), rec); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"calibration":    result,
		"recommendation": rec,
	})
}

// RecalibrateCourse recomputes both the statistical and network
// recommendations for one course, the same work the nightly sweep does
func (h *AnalysisHandler) RecalibrateCourse(c *gin.Context) {
	courseID, ok := parseCourseID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stats, err := h.analyzer.AnalyzeCourse(ctx, courseID, repository.ResultFilter{})
	if err != nil {
		respondError(c, err)
		return
	}

	response := gin.H{"statistics": stats}
	if rec, ok := services.StatisticalRecommendation(stats); ok {
		if err := h.lifecycle.Submit(ctx, rec); err != nil {
			respondError(c, err)
			return
		}
		response["statistical_recommendation"] = rec
	}

	anchorID, err := uuid.Parse(h.cfg.DefaultAnchorCourseID)
	if err == nil && anchorID != courseID {
		calibration, err := h.calibrator.CalibrateCourse(ctx, courseID, anchorID, repository.ResultFilter{})
		if err == nil {
			rec := services.NetworkRecommendation(calibration)
			if err := h.lifecycle.Submit(ctx, rec); err != nil {
				respondError(c, err)
				return
			}
			response["calibration"] = calibration
			response["network_recommendation"] = rec
		} else {
			response["calibration_error"] = err.Error()
		}
	}

	c.JSON(http.StatusOK, response)
}
