package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fastsplits/xc-engine/internal/models"
	"github.com/fastsplits/xc-engine/internal/repository"
)

// EventBroadcaster pushes lifecycle events to connected admin clients
type EventBroadcaster interface {
	BroadcastLifecycleEvent(eventType string, rec models.Recommendation)
}

// LifecycleManager owns recommendation records and mediates every write to a
// course's difficulty rating
type LifecycleManager struct {
	store       repository.Store
	cache       *CacheService
	broadcaster EventBroadcaster
	logger      *logrus.Logger
}

// NewLifecycleManager creates a new recommendation lifecycle manager
func NewLifecycleManager(store repository.Store, cache *CacheService, broadcaster EventBroadcaster, logger *logrus.Logger) *LifecycleManager {
	return &LifecycleManager{
		store:       store,
		cache:       cache,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Submit upserts a pending recommendation for its (course, source) pair. A
// recomputation supersedes the prior pending entry in place; terminal history
// is never touched.
func (m *LifecycleManager) Submit(ctx context.Context, rec *models.Recommendation) error {
	if rec.ProposedDifficulty <= 0 {
		return fmt.Errorf("%w: proposed difficulty_rating=%.4f", ErrInvalidCourseGeometry, rec.ProposedDifficulty)
	}
	if _, err := m.store.GetCourse(ctx, rec.CourseID); err != nil {
		return err
	}

	if err := m.store.UpsertPendingRecommendation(ctx, rec); err != nil {
		return fmt.Errorf("failed to upsert recommendation: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"recommendation_id": rec.ID,
		"course_id":         rec.CourseID,
		"source":            rec.Source,
		"proposed":          rec.ProposedDifficulty,
		"confidence":        rec.ConfidenceLabel,
	}).Info("Recommendation submitted")

	if m.broadcaster != nil {
		m.broadcaster.BroadcastLifecycleEvent("recommendation_pending", *rec)
	}
	return nil
}

// ListPending returns pending recommendations, optionally for one course
func (m *LifecycleManager) ListPending(ctx context.Context, courseID *uuid.UUID) ([]models.Recommendation, error) {
	return m.store.ListRecommendations(ctx, courseID, []models.RecommendationState{models.StatePending})
}

// ListHistory returns resolved recommendations for audit surfaces
func (m *LifecycleManager) ListHistory(ctx context.Context, courseID *uuid.UUID) ([]models.Recommendation, error) {
	return m.store.ListRecommendations(ctx, courseID,
		[]models.RecommendationState{models.StateApplied, models.StateDismissed})
}

// Apply transitions a pending recommendation to applied and writes its
// proposed difficulty to the course as a single atomic unit
func (m *LifecycleManager) Apply(ctx context.Context, id uuid.UUID, actor string, notes *string) (*models.Recommendation, error) {
	rec, err := m.store.ApplyRecommendation(ctx, id, actor, notes)
	if err != nil {
		return nil, err
	}

	m.invalidateCourse(ctx, rec.CourseID)

	if m.broadcaster != nil {
		m.broadcaster.BroadcastLifecycleEvent("recommendation_applied", *rec)
	}
	return rec, nil
}

// Dismiss transitions a pending recommendation to dismissed without touching
// the course
func (m *LifecycleManager) Dismiss(ctx context.Context, id uuid.UUID, actor string, notes *string) (*models.Recommendation, error) {
	rec, err := m.store.DismissRecommendation(ctx, id, actor, notes)
	if err != nil {
		return nil, err
	}

	if m.broadcaster != nil {
		m.broadcaster.BroadcastLifecycleEvent("recommendation_dismissed", *rec)
	}
	return rec, nil
}

// OverrideDifficulty is the explicit administrative escape hatch around the
// recommendation flow. It still invalidates caches so nothing normalized
// against the old rating is served.
func (m *LifecycleManager) OverrideDifficulty(ctx context.Context, courseID uuid.UUID, value float64, actor string) error {
	if value <= 0 {
		return fmt.Errorf("%w: difficulty_rating=%.4f", ErrInvalidCourseGeometry, value)
	}

	if err := m.store.UpdateCourseDifficulty(ctx, courseID, value); err != nil {
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"course_id":  courseID,
		"difficulty": value,
		"actor":      actor,
	}).Warn("Course difficulty overridden administratively")

	m.invalidateCourse(ctx, courseID)
	return nil
}

func (m *LifecycleManager) invalidateCourse(ctx context.Context, courseID uuid.UUID) {
	if m.cache == nil {
		return
	}
	if err := m.cache.InvalidateCourse(ctx, courseID); err != nil {
		m.logger.WithError(err).WithField("course_id", courseID).
			Warn("Failed to invalidate course cache after difficulty change")
	}
}
