package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fastsplits/xc-engine/internal/models"
)

var (
	// ErrCourseNotFound indicates the course id resolved to nothing
	ErrCourseNotFound = errors.New("course not found")

	// ErrRecommendationNotFound indicates the recommendation id resolved to
	// nothing; distinct from ErrRecommendationAlreadyResolved so a caller can
	// tell "gone" from "someone already acted"
	ErrRecommendationNotFound = errors.New("recommendation not found")

	// ErrRecommendationAlreadyResolved indicates the recommendation reached a
	// terminal state before this call
	ErrRecommendationAlreadyResolved = errors.New("recommendation already resolved")

	// ErrConcurrentApplyConflict indicates another apply/dismiss won the
	// conditional state update race
	ErrConcurrentApplyConflict = errors.New("concurrent recommendation resolution conflict")
)

// ResultFilter narrows result queries by division and season
type ResultFilter struct {
	Gender     *models.Gender
	SeasonYear *int
}

// Store is the result-repository port the engine computes over. The engine's
// only writes are a course's difficulty rating and recommendation records.
type Store interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error)
	ListCourses(ctx context.Context) ([]models.Course, error)
	UpdateCourseDifficulty(ctx context.Context, id uuid.UUID, value float64) error

	ListResultsForCourse(ctx context.Context, courseID uuid.UUID, filter ResultFilter) ([]models.RaceResult, error)
	ListResultsForAthlete(ctx context.Context, athleteID uuid.UUID) ([]models.RaceResult, error)
	ListResultsForRace(ctx context.Context, raceID uuid.UUID) ([]models.RaceResult, error)
	ListRacesForCourse(ctx context.Context, courseID uuid.UUID, gender *models.Gender) ([]models.Race, error)
	FindAthletesOnBoth(ctx context.Context, courseID, anchorCourseID uuid.UUID, filter ResultFilter) ([]uuid.UUID, error)

	UpsertPendingRecommendation(ctx context.Context, rec *models.Recommendation) error
	GetRecommendation(ctx context.Context, id uuid.UUID) (*models.Recommendation, error)
	ListRecommendations(ctx context.Context, courseID *uuid.UUID, states []models.RecommendationState) ([]models.Recommendation, error)
	ApplyRecommendation(ctx context.Context, id uuid.UUID, actor string, notes *string) (*models.Recommendation, error)
	DismissRecommendation(ctx context.Context, id uuid.UUID, actor string, notes *string) (*models.Recommendation, error)
}
