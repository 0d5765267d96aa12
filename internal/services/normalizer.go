package services

import (
	"fmt"
	"math"

	"github.com/fastsplits/xc-engine/internal/models"
)

const (
	// MetersPerMile converts course distances onto the per-mile scale
	MetersPerMile = 1609.344

	// ReferenceDifficulty is the network-wide baseline: a flat track mile
	ReferenceDifficulty = 1.0

	// ReferenceMilePaceCS is the baseline flat-mile pace (6:00.00) the naive
	// statistical suggestion measures course paces against
	ReferenceMilePaceCS = 36000.0
)

// Normalize converts a finish time into the canonical per-mile-equivalent
// value: the pace the athlete would run on a flat track mile at difficulty
// 1.0. All arithmetic stays in floating point; callers round once at the end
// if they need whole centiseconds.
func Normalize(timeCS int, distanceMeters, difficultyRating float64) (float64, error) {
	if distanceMeters <= 0 || difficultyRating <= 0 {
		return 0, fmt.Errorf("%w: distance_meters=%.2f difficulty_rating=%.4f",
			ErrInvalidCourseGeometry, distanceMeters, difficultyRating)
	}
	return float64(timeCS) / difficultyRating / distanceMeters * MetersPerMile, nil
}

// NormalizeResult normalizes a race result against its course's current
// geometry and difficulty. Never cached, so a difficulty change is always
// reflected on the next call.
func NormalizeResult(result models.RaceResult, course models.Course) (float64, error) {
	return Normalize(result.TimeCS, course.DistanceMeters, course.DifficultyRating)
}

// ProjectRaw converts a time run under one geometry/difficulty to another,
// rounding half away from zero to the nearest centisecond as the single
// rounding step. Algebraically this is Normalize followed by its inverse on
// the target course.
func ProjectRaw(timeCS int, sourceDistance, sourceDifficulty, targetDistance, targetDifficulty float64) (int, error) {
	if sourceDistance <= 0 || sourceDifficulty <= 0 {
		return 0, fmt.Errorf("%w: source distance_meters=%.2f difficulty_rating=%.4f",
			ErrInvalidCourseGeometry, sourceDistance, sourceDifficulty)
	}
	if targetDistance <= 0 || targetDifficulty <= 0 {
		return 0, fmt.Errorf("%w: target distance_meters=%.2f difficulty_rating=%.4f",
			ErrInvalidCourseGeometry, targetDistance, targetDifficulty)
	}
	projected := float64(timeCS) * (targetDistance / sourceDistance) * (targetDifficulty / sourceDifficulty)
	return int(math.Round(projected)), nil
}

// Project converts a time from the source course onto the target course.
// Projecting a time onto its own course returns the input unchanged, with no
// rounding drift.
func Project(timeCS int, source, target models.Course) (int, error) {
	if source.ID == target.ID {
		if source.DistanceMeters <= 0 || source.DifficultyRating <= 0 {
			return 0, fmt.Errorf("%w: distance_meters=%.2f difficulty_rating=%.4f",
				ErrInvalidCourseGeometry, source.DistanceMeters, source.DifficultyRating)
		}
		return timeCS, nil
	}
	return ProjectRaw(timeCS, source.DistanceMeters, source.DifficultyRating,
		target.DistanceMeters, target.DifficultyRating)
}
