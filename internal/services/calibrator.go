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

const (
	// MinSharedAthletes is the hard floor below which a network calibration
	// declines to emit a recommendation at all
	MinSharedAthletes = 10

	highSampleThreshold   = 100
	mediumSampleThreshold = 50

	highConsistencyStdDev   = 0.10
	mediumConsistencyStdDev = 0.20
)

// AnchorCalibrator derives an implied difficulty rating for a course by
// comparing shared athletes' normalized times against an anchor course
type AnchorCalibrator struct {
	store    repository.Store
	cache    *CacheService
	cacheTTL time.Duration
	logger   *logrus.Logger
}

// NewAnchorCalibrator creates a new anchor network calibrator
func NewAnchorCalibrator(store repository.Store, cache *CacheService, cacheTTL time.Duration, logger *logrus.Logger) *AnchorCalibrator {
	return &AnchorCalibrator{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// CalibrateCourse runs a full network calibration of courseID against the
// anchor course. Nothing is mutated; the caller decides whether to feed the
// result into the recommendation lifecycle.
func (c *AnchorCalibrator) CalibrateCourse(ctx context.Context, courseID, anchorCourseID uuid.UUID, filter repository.ResultFilter) (*models.CalibrationResult, error) {
	course, err := c.store.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	anchor, err := c.store.GetCourse(ctx, anchorCourseID)
	if err != nil {
		return nil, err
	}

	sharedIDs, err := c.store.FindAthletesOnBoth(ctx, courseID, anchorCourseID, filter)
	if err != nil {
		return nil, err
	}
	if len(sharedIDs) < MinSharedAthletes {
		return nil, &InsufficientSharedAthletesError{Found: len(sharedIDs), Required: MinSharedAthletes}
	}

	targetResults, err := c.store.ListResultsForCourse(ctx, courseID, filter)
	if err != nil {
		return nil, err
	}
	anchorResults, err := c.store.ListResultsForCourse(ctx, anchorCourseID, filter)
	if err != nil {
		return nil, err
	}

	result, err := ComputeCalibration(*course, *anchor, sharedIDs, targetResults, anchorResults)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"course_id":        courseID,
		"anchor_course_id": anchorCourseID,
		"shared_athletes":  result.SharedAthleteCount,
		"median_ratio":     result.MedianRatio,
		"implied":          result.ImpliedDifficulty,
		"confidence":       result.Confidence,
	}).Info("Completed anchor network calibration")

	if c.cache != nil {
		key := CalibrationKey(courseID, anchorCourseID)
		if err := c.cache.Set(ctx, key, result, c.cacheTTL); err != nil {
			c.logger.WithError(err).Warn("Failed to cache calibration result")
		}
	}

	return result, nil
}

// ComputeCalibration is the pure calibration core over in-memory result sets.
// For each shared athlete the target-course value is their best (minimum)
// normalized time and the anchor value is the median normalized time across
// all their anchor results; the per-athlete ratio distribution drives the
// implied difficulty and confidence.
func ComputeCalibration(course, anchor models.Course, sharedIDs []uuid.UUID, targetResults, anchorResults []models.RaceResult) (*models.CalibrationResult, error) {
	shared := make(map[uuid.UUID]bool, len(sharedIDs))
	for _, id := range sharedIDs {
		shared[id] = true
	}

	targetByAthlete := groupByAthlete(targetResults, shared)
	anchorByAthlete := groupByAthlete(anchorResults, shared)

	athleteRatios := make([]models.AthleteRatio, 0, len(sharedIDs))
	for _, athleteID := range sharedIDs {
		tTimes := targetByAthlete[athleteID]
		aTimes := anchorByAthlete[athleteID]
		if len(tTimes) == 0 || len(aTimes) == 0 {
			continue
		}

		best, err := bestNormalized(tTimes, course)
		if err != nil {
			return nil, err
		}
		anchorMedian, err := medianNormalized(aTimes, anchor)
		if err != nil {
			return nil, err
		}

		athleteRatios = append(athleteRatios, models.AthleteRatio{
			AthleteID:          athleteID,
			TargetNormalizedCS: best,
			AnchorNormalizedCS: anchorMedian,
			Ratio:              best / anchorMedian,
		})
	}

	if len(athleteRatios) < MinSharedAthletes {
		return nil, &InsufficientSharedAthletesError{Found: len(athleteRatios), Required: MinSharedAthletes}
	}

	ratios := make([]float64, len(athleteRatios))
	for i, ar := range athleteRatios {
		ratios[i] = ar.Ratio
	}
	sort.Float64s(ratios)

	medianRatio := medianSorted(ratios)
	meanRatio := stat.Mean(ratios, nil)
	stdDevRatio := stat.StdDev(ratios, nil)

	sampleTier := sampleSizeTier(len(athleteRatios))
	consistencyTier := ratioConsistencyTier(stdDevRatio)

	return &models.CalibrationResult{
		CourseID:           course.ID,
		AnchorCourseID:     anchor.ID,
		SharedAthleteCount: len(athleteRatios),
		MedianRatio:        medianRatio,
		MeanRatio:          meanRatio,
		StdDevRatio:        stdDevRatio,
		CurrentDifficulty:  course.DifficultyRating,
		ImpliedDifficulty:  course.DifficultyRating * medianRatio,
		SampleTier:         sampleTier,
		ConsistencyTier:    consistencyTier,
		Confidence:         models.WeakerConfidence(sampleTier, consistencyTier),
		Ratios:             athleteRatios,
	}, nil
}

func groupByAthlete(results []models.RaceResult, shared map[uuid.UUID]bool) map[uuid.UUID][]models.RaceResult {
	grouped := make(map[uuid.UUID][]models.RaceResult)
	for _, r := range results {
		if r.HasTime() && shared[r.AthleteID] {
			grouped[r.AthleteID] = append(grouped[r.AthleteID], r)
		}
	}
	return grouped
}

func bestNormalized(results []models.RaceResult, course models.Course) (float64, error) {
	best := 0.0
	for i, r := range results {
		n, err := NormalizeResult(r, course)
		if err != nil {
			return 0, err
		}
		if i == 0 || n < best {
			best = n
		}
	}
	return best, nil
}

func medianNormalized(results []models.RaceResult, course models.Course) (float64, error) {
	normalized := make([]float64, 0, len(results))
	for _, r := range results {
		n, err := NormalizeResult(r, course)
		if err != nil {
			return 0, err
		}
		normalized = append(normalized, n)
	}
	sort.Float64s(normalized)
	return medianSorted(normalized), nil
}

func sampleSizeTier(count int) models.ConfidenceLabel {
	switch {
	case count >= highSampleThreshold:
		return models.ConfidenceHigh
	case count >= mediumSampleThreshold:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func ratioConsistencyTier(stdDev float64) models.ConfidenceLabel {
	switch {
	case stdDev < highConsistencyStdDev:
		return models.ConfidenceHigh
	case stdDev < mediumConsistencyStdDev:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// NetworkRecommendation turns a calibration result into a pending
// recommendation payload tagged source=network
func NetworkRecommendation(result *models.CalibrationResult) *models.Recommendation {
	// The full per-athlete ratio list can be large; persist the aggregate
	// distribution only
	summary := *result
	summary.Ratios = nil
	payload, _ := json.Marshal(summary)

	return &models.Recommendation{
		CourseID:           result.CourseID,
		Source:             models.SourceNetwork,
		ProposedDifficulty: result.ImpliedDifficulty,
		Confidence:         result.Confidence.Score(),
		ConfidenceLabel:    result.Confidence,
		SupportingStats:    payload,
		State:              models.StatePending,
	}
}
