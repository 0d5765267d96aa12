package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fastsplits/xc-engine/internal/models"
)

// GormStore is the postgres-backed Store implementation
type GormStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewGormStore creates a postgres-backed result repository
func NewGormStore(db *gorm.DB, logger *logrus.Logger) *GormStore {
	return &GormStore{db: db, logger: logger}
}

// GetCourse fetches a course by id
func (s *GormStore) GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	var course models.Course
	if err := s.db.WithContext(ctx).First(&course, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return &course, nil
}

// ListCourses returns all courses ordered by name
func (s *GormStore) ListCourses(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	if err := s.db.WithContext(ctx).Order("name").Find(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

// UpdateCourseDifficulty writes a course's difficulty rating directly. Used
// only by the administrative override path; the lifecycle manager goes
// through ApplyRecommendation instead.
func (s *GormStore) UpdateCourseDifficulty(ctx context.Context, id uuid.UUID, value float64) error {
	res := s.db.WithContext(ctx).Model(&models.Course{}).
		Where("id = ?", id).
		Update("difficulty_rating", value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCourseNotFound
	}
	return nil
}

func applyResultFilter(q *gorm.DB, filter ResultFilter) *gorm.DB {
	if filter.Gender != nil {
		q = q.Where("races.gender = ?", *filter.Gender)
	}
	if filter.SeasonYear != nil {
		q = q.Joins("JOIN meets ON meets.id = races.meet_id").
			Where("meets.season_year = ?", *filter.SeasonYear)
	}
	return q
}

// ListResultsForCourse returns all timed results recorded on a course
func (s *GormStore) ListResultsForCourse(ctx context.Context, courseID uuid.UUID, filter ResultFilter) ([]models.RaceResult, error) {
	var results []models.RaceResult
	q := s.db.WithContext(ctx).
		Joins("JOIN races ON races.id = race_results.race_id").
		Where("races.course_id = ? AND race_results.time_cs > 0", courseID)
	q = applyResultFilter(q, filter)
	if err := q.Preload("Race").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListResultsForAthlete returns all timed results for one athlete, with the
// race and course preloaded so callers can normalize without extra queries
func (s *GormStore) ListResultsForAthlete(ctx context.Context, athleteID uuid.UUID) ([]models.RaceResult, error) {
	var results []models.RaceResult
	err := s.db.WithContext(ctx).
		Where("athlete_id = ? AND time_cs > 0", athleteID).
		Preload("Race").
		Preload("Race.Course").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ListResultsForRace returns all timed results for a single race, fastest
// first, with athlete and school preloaded
func (s *GormStore) ListResultsForRace(ctx context.Context, raceID uuid.UUID) ([]models.RaceResult, error) {
	var results []models.RaceResult
	err := s.db.WithContext(ctx).
		Where("race_id = ? AND time_cs > 0", raceID).
		Order("time_cs").
		Preload("Athlete").
		Preload("Athlete.School").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ListRacesForCourse returns all races run on a course, optionally narrowed
// by gender, with the meet preloaded
func (s *GormStore) ListRacesForCourse(ctx context.Context, courseID uuid.UUID, gender *models.Gender) ([]models.Race, error) {
	var races []models.Race
	q := s.db.WithContext(ctx).Where("course_id = ?", courseID)
	if gender != nil {
		q = q.Where("gender = ?", *gender)
	}
	if err := q.Preload("Meet").Find(&races).Error; err != nil {
		return nil, err
	}
	return races, nil
}

// FindAthletesOnBoth returns the ids of athletes with at least one timed
// result on the target course and at least one on the anchor course
func (s *GormStore) FindAthletesOnBoth(ctx context.Context, courseID, anchorCourseID uuid.UUID, filter ResultFilter) ([]uuid.UUID, error) {
	onCourse := func(id uuid.UUID) *gorm.DB {
		q := s.db.Model(&models.RaceResult{}).
			Select("race_results.athlete_id").
			Joins("JOIN races ON races.id = race_results.race_id").
			Where("races.course_id = ? AND race_results.time_cs > 0", id)
		return applyResultFilter(q, filter)
	}

	var athleteIDs []uuid.UUID
	q := s.db.WithContext(ctx).Model(&models.RaceResult{}).
		Distinct().
		Joins("JOIN races ON races.id = race_results.race_id").
		Where("races.course_id = ? AND race_results.time_cs > 0", courseID).
		Where("race_results.athlete_id IN (?)", onCourse(anchorCourseID))
	q = applyResultFilter(q, filter)
	if err := q.Pluck("race_results.athlete_id", &athleteIDs).Error; err != nil {
		return nil, err
	}
	return athleteIDs, nil
}

// UpsertPendingRecommendation replaces the pending recommendation for the
// (course_id, source) pair in place, or creates one if none is pending.
// Applied and dismissed history is never touched.
func (s *GormStore) UpsertPendingRecommendation(ctx context.Context, rec *models.Recommendation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&models.Recommendation{}).
			Where("course_id = ? AND source = ? AND state = ?", rec.CourseID, rec.Source, models.StatePending).
			Updates(map[string]interface{}{
				"proposed_difficulty": rec.ProposedDifficulty,
				"confidence":          rec.Confidence,
				"confidence_label":    rec.ConfidenceLabel,
				"supporting_stats":    rec.SupportingStats,
				"updated_at":          now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			var existing models.Recommendation
			if err := tx.First(&existing, "course_id = ? AND source = ? AND state = ?",
				rec.CourseID, rec.Source, models.StatePending).Error; err != nil {
				return err
			}
			*rec = existing
			return nil
		}

		rec.State = models.StatePending
		return tx.Create(rec).Error
	})
}

// GetRecommendation fetches a recommendation by id
func (s *GormStore) GetRecommendation(ctx context.Context, id uuid.UUID) (*models.Recommendation, error) {
	var rec models.Recommendation
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecommendationNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListRecommendations returns recommendations filtered by course and states,
// newest first
func (s *GormStore) ListRecommendations(ctx context.Context, courseID *uuid.UUID, states []models.RecommendationState) ([]models.Recommendation, error) {
	var recs []models.Recommendation
	q := s.db.WithContext(ctx).Order("updated_at DESC")
	if courseID != nil {
		q = q.Where("course_id = ?", *courseID)
	}
	if len(states) > 0 {
		q = q.Where("state IN ?", states)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// ApplyRecommendation transitions a pending recommendation to applied and
// writes its proposed difficulty to the course, atomically as one
// transaction. The state transition is a conditional update keyed on the
// pending state so concurrent resolutions serialize on the database.
func (s *GormStore) ApplyRecommendation(ctx context.Context, id uuid.UUID, actor string, notes *string) (*models.Recommendation, error) {
	var rec models.Recommendation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecommendationNotFound
			}
			return err
		}
		if rec.State.IsTerminal() {
			return ErrRecommendationAlreadyResolved
		}

		now := time.Now().UTC()
		res := tx.Model(&models.Recommendation{}).
			Where("id = ? AND state = ?", id, models.StatePending).
			Updates(map[string]interface{}{
				"state":            models.StateApplied,
				"resolved_at":      now,
				"resolved_by":      actor,
				"resolution_notes": notes,
				"updated_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentApplyConflict
		}

		courseRes := tx.Model(&models.Course{}).
			Where("id = ?", rec.CourseID).
			Update("difficulty_rating", rec.ProposedDifficulty)
		if courseRes.Error != nil {
			return courseRes.Error
		}
		if courseRes.RowsAffected == 0 {
			return ErrCourseNotFound
		}

		rec.State = models.StateApplied
		rec.ResolvedAt = &now
		rec.ResolvedBy = &actor
		rec.ResolutionNotes = notes
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"recommendation_id": rec.ID,
		"course_id":         rec.CourseID,
		"difficulty":        rec.ProposedDifficulty,
		"actor":             actor,
	}).Info("Recommendation applied to course difficulty")

	return &rec, nil
}

// DismissRecommendation transitions a pending recommendation to dismissed.
// It never touches the course.
func (s *GormStore) DismissRecommendation(ctx context.Context, id uuid.UUID, actor string, notes *string) (*models.Recommendation, error) {
	var rec models.Recommendation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecommendationNotFound
			}
			return err
		}
		if rec.State.IsTerminal() {
			return ErrRecommendationAlreadyResolved
		}

		now := time.Now().UTC()
		res := tx.Model(&models.Recommendation{}).
			Where("id = ? AND state = ?", id, models.StatePending).
			Updates(map[string]interface{}{
				"state":            models.StateDismissed,
				"resolved_at":      now,
				"resolved_by":      actor,
				"resolution_notes": notes,
				"updated_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConcurrentApplyConflict
		}

		rec.State = models.StateDismissed
		rec.ResolvedAt = &now
		rec.ResolvedBy = &actor
		rec.ResolutionNotes = notes
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"recommendation_id": rec.ID,
		"course_id":         rec.CourseID,
		"actor":             actor,
	}).Info("Recommendation dismissed")

	return &rec, nil
}
