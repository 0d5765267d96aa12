package services

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/fastsplits/xc-engine/internal/models"
	"github.com/fastsplits/xc-engine/internal/repository"
)

// Z-score beyond which a result counts as an outlier
const outlierZScore = 2.0

// CourseAnalyzer computes descriptive statistics over a course's own result
// distribution and derives a naive difficulty suggestion from them
type CourseAnalyzer struct {
	store    repository.Store
	cache    *CacheService
	cacheTTL time.Duration
	logger   *logrus.Logger
}

// NewCourseAnalyzer creates a new statistical course analyzer
func NewCourseAnalyzer(store repository.Store, cache *CacheService, cacheTTL time.Duration, logger *logrus.Logger) *CourseAnalyzer {
	return &CourseAnalyzer{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// AnalyzeCourse computes count, mean, median, standard deviation, outlier
// counts, and a naive suggested difficulty for a course. A course with no
// results yields an empty-but-valid statistics object, not an error.
func (a *CourseAnalyzer) AnalyzeCourse(ctx context.Context, courseID uuid.UUID, filter repository.ResultFilter) (*models.CourseStatistics, error) {
	cacheKey := a.statsCacheKey(courseID, filter)
	if a.cache != nil {
		var cached models.CourseStatistics
		if err := a.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	course, err := a.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	results, err := a.store.ListResultsForCourse(ctx, courseID, filter)
	if err != nil {
		return nil, err
	}

	stats, err := ComputeCourseStatistics(*course, results)
	if err != nil {
		return nil, err
	}

	a.logger.WithFields(logrus.Fields{
		"course_id":      courseID,
		"result_count":   stats.Count,
		"unusually_fast": stats.UnusuallyFast,
		"unusually_slow": stats.UnusuallySlow,
	}).Debug("Computed course statistics")

	if a.cache != nil {
		if err := a.cache.Set(ctx, cacheKey, stats, a.cacheTTL); err != nil {
			a.logger.WithError(err).Warn("Failed to cache course statistics")
		}
	}

	return stats, nil
}

// ComputeCourseStatistics is the pure statistical core, exposed separately so
// the calibration scheduler and tests can run it over in-memory result sets
func ComputeCourseStatistics(course models.Course, results []models.RaceResult) (*models.CourseStatistics, error) {
	out := &models.CourseStatistics{CourseID: course.ID}

	times := make([]float64, 0, len(results))
	for _, r := range results {
		if r.HasTime() {
			times = append(times, float64(r.TimeCS))
		}
	}
	out.Count = len(times)
	if out.Count == 0 {
		return out, nil
	}

	sort.Float64s(times)
	mean := stat.Mean(times, nil)
	median := medianSorted(times)
	out.MeanCS = &mean
	out.MedianCS = &median

	if out.Count >= 2 {
		sd := stat.StdDev(times, nil)
		out.StdDevCS = &sd

		// A zero spread yields no meaningful z-scores, so no outliers
		if sd > 0 {
			for _, t := range times {
				z := (t - mean) / sd
				switch {
				case z < -outlierZScore:
					out.UnusuallyFast++
				case z > outlierZScore:
					out.UnusuallySlow++
				}
			}
		}
	}

	// Naive suggestion: the course's mean per-mile pace at baseline
	// difficulty, measured against the network-wide reference mile pace
	if _, err := Normalize(0, course.DistanceMeters, ReferenceDifficulty); err != nil {
		return nil, err
	}
	meanPace := mean / ReferenceDifficulty / course.DistanceMeters * MetersPerMile
	naive := meanPace / ReferenceMilePaceCS
	out.NaiveSuggestedDifficulty = &naive

	return out, nil
}

// medianSorted returns the median of an ascending-sorted slice
func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func (a *CourseAnalyzer) statsCacheKey(courseID uuid.UUID, filter repository.ResultFilter) string {
	gender := "all"
	if filter.Gender != nil {
		gender = string(*filter.Gender)
	}
	season := 0
	if filter.SeasonYear != nil {
		season = *filter.SeasonYear
	}
	return StatsKey(courseID, gender, season)
}

// StatisticalRecommendation turns an analysis into a pending recommendation
// payload tagged source=statistical. Single-course statistics say nothing
// about ratio consistency, so confidence rides on sample size alone.
func StatisticalRecommendation(stats *models.CourseStatistics) (*models.Recommendation, bool) {
	if stats.Count == 0 || stats.NaiveSuggestedDifficulty == nil {
		return nil, false
	}

	label := sampleSizeTier(stats.Count)
	payload, _ := json.Marshal(stats)

	return &models.Recommendation{
		CourseID:           stats.CourseID,
		Source:             models.SourceStatistical,
		ProposedDifficulty: *stats.NaiveSuggestedDifficulty,
		Confidence:         label.Score(),
		ConfidenceLabel:    label,
		SupportingStats:    payload,
		State:              models.StatePending,
	}, true
}
