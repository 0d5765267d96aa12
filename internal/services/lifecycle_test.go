package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastsplits/xc-engine/internal/models"
	"github.com/fastsplits/xc-engine/internal/repository"
)

type recordedEvent struct {
	eventType string
	rec       models.Recommendation
}

type recordingBroadcaster struct {
	events []recordedEvent
}

func (r *recordingBroadcaster) BroadcastLifecycleEvent(eventType string, rec models.Recommendation) {
	r.events = append(r.events, recordedEvent{eventType: eventType, rec: rec})
}

func pendingRecommendation(courseID uuid.UUID, source models.RecommendationSource, proposed float64) *models.Recommendation {
	return &models.Recommendation{
		CourseID:           courseID,
		Source:             source,
		ProposedDifficulty: proposed,
		Confidence:         models.ConfidenceMedium.Score(),
		ConfidenceLabel:    models.ConfidenceMedium,
	}
}

func TestLifecycle_SubmitValidation(t *testing.T) {
	store := newFakeStore()
	course := store.addCourse(models.Course{DistanceMeters: 5000, DifficultyRating: 1.0})
	manager := NewLifecycleManager(store, nil, nil, testLogger())
	ctx := context.Background()

	err := manager.Submit(ctx, pendingRecommendation(course.ID, models.SourceStatistical, 0))
	assert.ErrorIs(t, err, ErrInvalidCourseGeometry)

	err = manager.Submit(ctx, pendingRecommendation(course.ID, models.SourceStatistical, -1.1))
	assert.ErrorIs(t, err, ErrInvalidCourseGeometry)

	err = manager.Submit(ctx, pendingRecommendation(uuid.New(), models.SourceStatistical, 1.1))
	assert.ErrorIs(t, err, repository.ErrCourseNotFound)
}

func TestLifecycle_ResubmitSupersedesPending(t *testing.T) {
	store := newFakeStore()
	course := store.addCourse(models.Course{DistanceMeters: 5000, DifficultyRating: 1.0})
	manager := NewLifecycleManager(store, nil, nil, testLogger())
	ctx := context.Background()

	first := pendingRecommendation(course.ID, models.SourceNetwork, 1.08)
	require.NoError(t, manager.Submit(ctx, first))

	second := pendingRecommendation(course.ID, models.SourceNetwork, 1.12)
	require.NoError(t, manager.Submit(ctx, second))

	assert.Equal(t, first.ID, second.ID, "recomputation replaces the pending row in place")

	pending, err := manager.ListPending(ctx, &course.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1.12, pending[0].ProposedDifficulty)
}

func TestLifecycle_SourcesPendIndependently(t *testing.T) {
	store := newFakeStore()
	course := store.addCourse(models.Course{DistanceMeters: 5000, DifficultyRating: 1.0})
	manager := NewLifecycleManager(store, nil, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, manager.Submit(ctx, pendingRecommendation(course.ID, models.SourceStatistical, 0.95)))
	require.NoError(t, manager.Submit(ctx, pendingRecommendation(course.ID, models.SourceNetwork, 1.08)))
	require.NoError(t, manager.Submit(ctx, pendingRecommendation(course.ID, models.SourceAnnotation, 1.05)))

	pending, err := manager.ListPending(ctx, &course.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestLifecycle_ApplyUpdatesCourseOnce(t *testing.T) {
	store := newFakeStore()
	course := store.addCourse(models.Course{DistanceMeters: 5000, DifficultyRating: 1.0})
	broadcaster := &recordingBroadcaster{}
	manager := NewLifecycleManager(store, nil, broadcaster, testLogger())
	ctx := context.Background()

	rec := pendingRecommendation(course.ID, models.SourceNetwork, 1.08)
	require.NoError(t, manager.Submit(ctx, rec))

	applied, err := manager.Apply(ctx, rec.ID, "coach", nil)
	require.NoError(t, err)
	assert.Equal(t, models.StateApplied, applied.State)
	require.NotNil(t, applied.ResolvedBy)
	assert.Equal(t, "coach", *applied.ResolvedBy)
	assert.NotNil(t, applied.ResolvedAt)

	updated, err := store.GetCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.08, updated.DifficultyRating)

	// Terminal states are final in both directions
	_, err = manager.Apply(ctx, rec.ID, "coach", nil)
	assert.ErrorIs(t, err, repository.ErrRecommendationAlreadyResolved)
	_, err = manager.Dismiss(ctx, rec.ID, "coach", nil)
	assert.ErrorIs(t, err, repository.ErrRecommendationAlreadyResolved)

	updated, err = store.GetCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.08, updated.DifficultyRating, "failed re-apply must not touch the course")

	require.Len(t, broadcaster.events, 2)
	assert.Equal(t, "recommendation_pending", broadcaster.events[0].eventType)
	assert.Equal(t, "recommendation_applied", broadcaster.events[1].eventType)
	assert.Equal(t, rec.ID, broadcaster.events[1].rec.ID)
}

func TestLifecycle_DismissLeavesCourseAlone(t *testing.T) {
	store := newFakeStore()
	course := store.addCourse(models.Course{DistanceMeters: 5000, DifficultyRating: 1.0})
	broadcaster := &recordingBroadcaster{}
	manager := NewLifecycleManager(store, nil, broadcaster, testLogger())
	ctx := context.Background()

	rec := pendingRecommendation(course.ID, models.SourceStatistical, 0.91)
	require.NoError(t, manager.Submit(ctx, rec))

	notes := "sample too thin to trust"
	dismissed, err := manager.Dismiss(ctx, rec.ID, "coach", &notes)
	require.NoError(t, err)
	assert.Equal(t, models.StateDismissed, dismissed.State)
	require.NotNil(t, dismissed.ResolutionNotes)
	assert.Equal(t, notes, *dismissed.ResolutionNotes)

	unchanged, err := store.GetCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, unchanged.DifficultyRating)

	_, err = manager.Apply(ctx, rec.ID, "coach", nil)
	assert.ErrorIs(t, err, repository.ErrRecommendationAlreadyResolved)
}

func TestLifecycle_ResolveUnknownRecommendation(t *testing.T) {
	manager := NewLifecycleManager(newFakeStore(), nil, nil, testLogger())

	_, err := manager.Apply(context.Background(), uuid.New(), "coach", nil)
	assert.ErrorIs(t, err, repository.ErrRecommendationNotFound)

	_, err = manager.Dismiss(context.Background(), uuid.New(), "coach", nil)
	assert.ErrorIs(t, err, repository.ErrRecommendationNotFound)
}

func TestLifecycle_NewPendingAfterResolution(t *testing.T) {
	store := newFakeStore()
	course := store.addCourse(models.Course{DistanceMeters: 5000, DifficultyRating: 1.0})
	manager := NewLifecycleManager(store, nil, nil, testLogger())
	ctx := context.Background()

	rec := pendingRecommendation(course.ID, models.SourceNetwork, 1.08)
	require.NoError(t, manager.Submit(ctx, rec))
	_, err := manager.Apply(ctx, rec.ID, "coach", nil)
	require.NoError(t, err)

	// A fresh recomputation opens a new pending row instead of reviving the
	// applied one
	next := pendingRecommendation(course.ID, models.SourceNetwork, 1.06)
	require.NoError(t, manager.Submit(ctx, next))
	assert.NotEqual(t, rec.ID, next.ID)

	pending, err := manager.ListPending(ctx, &course.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1.06, pending[0].ProposedDifficulty)

	history, err := manager.ListHistory(ctx, &course.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StateApplied, history[0].State)
}

func TestLifecycle_OverrideDifficulty(t *testing.T) {
	store := newFakeStore()
	course := store.addCourse(models.Course{DistanceMeters: 5000, DifficultyRating: 1.0})
	manager := NewLifecycleManager(store, nil, nil, testLogger())
	ctx := context.Background()

	err := manager.OverrideDifficulty(ctx, course.ID, -0.2, "admin")
	assert.ErrorIs(t, err, ErrInvalidCourseGeometry)

	err = manager.OverrideDifficulty(ctx, uuid.New(), 1.2, "admin")
	assert.ErrorIs(t, err, repository.ErrCourseNotFound)

	require.NoError(t, manager.OverrideDifficulty(ctx, course.ID, 1.2, "admin"))
	updated, err := store.GetCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.2, updated.DifficultyRating)
}
