package models

import (
	"time"

	"github.com/google/uuid"
)

// CourseStatistics represents descriptive statistics over all timed results
// recorded on a course. Pointer fields are nil when no results exist; an
// empty course is a valid, representable state rather than an error.
type CourseStatistics struct {
	CourseID                 uuid.UUID `json:"course_id"`
	Count                    int       `json:"count"`
	MeanCS                   *float64  `json:"mean_cs,omitempty"`
	MedianCS                 *float64  `json:"median_cs,omitempty"`
	StdDevCS                 *float64  `json:"std_dev_cs,omitempty"`
	UnusuallyFast            int       `json:"unusually_fast"`
	UnusuallySlow            int       `json:"unusually_slow"`
	NaiveSuggestedDifficulty *float64  `json:"naive_suggested_difficulty,omitempty"`
}

// AthleteRatio represents a single shared athlete's normalized-time ratio
// between the target course and the anchor course
type AthleteRatio struct {
	AthleteID          uuid.UUID `json:"athlete_id"`
	TargetNormalizedCS float64   `json:"target_normalized_cs"`
	AnchorNormalizedCS float64   `json:"anchor_normalized_cs"`
	Ratio              float64   `json:"ratio"`
}

// CalibrationResult represents the outcome of an anchor-network calibration
// run for a single course
type CalibrationResult struct {
	CourseID           uuid.UUID       `json:"course_id"`
	AnchorCourseID     uuid.UUID       `json:"anchor_course_id"`
	SharedAthleteCount int             `json:"shared_athlete_count"`
	MedianRatio        float64         `json:"median_ratio"`
	MeanRatio          float64         `json:"mean_ratio"`
	StdDevRatio        float64         `json:"std_dev_ratio"`
	CurrentDifficulty  float64         `json:"current_difficulty"`
	ImpliedDifficulty  float64         `json:"implied_difficulty"`
	SampleTier         ConfidenceLabel `json:"sample_tier"`
	ConsistencyTier    ConfidenceLabel `json:"consistency_tier"`
	Confidence         ConfidenceLabel `json:"confidence"`
	Ratios             []AthleteRatio  `json:"ratios,omitempty"`
}

// MeetEntry represents one athlete's already-projected time on the common
// target course, as consumed by the scoring engine
type MeetEntry struct {
	AthleteID   uuid.UUID `json:"athlete_id"`
	AthleteName string    `json:"athlete_name,omitempty"`
	SchoolID    uuid.UUID `json:"school_id"`
	SchoolName  string    `json:"school_name,omitempty"`
	TimeCS      int       `json:"time_cs"`
}

// ScoredRunner represents a meet entry after place assignment
type ScoredRunner struct {
	MeetEntry
	CombinedPlace int  `json:"combined_place"`
	IsScorer      bool `json:"is_scorer"`
	IsDisplacer   bool `json:"is_displacer"`
}

// TeamScoreResult represents a school's scored meet result. Score is the sum
// of the five scorers' combined places (lower is better); TeamTimeCS sums the
// scorers' projected times. Incomplete teams are listed but not ranked.
type TeamScoreResult struct {
	SchoolID   uuid.UUID      `json:"school_id"`
	SchoolName string         `json:"school_name,omitempty"`
	Runners    []ScoredRunner `json:"runners"`
	Score      int            `json:"score"`
	TeamTimeCS int            `json:"team_time_cs"`
	IsComplete bool           `json:"is_complete"`
	Rank       int            `json:"rank,omitempty"`
}

// TeamPerformance represents a single-race top-5 team time on one course,
// used for the course-record team performance listing
type TeamPerformance struct {
	SchoolID    uuid.UUID    `json:"school_id"`
	SchoolName  string       `json:"school_name,omitempty"`
	RaceID      uuid.UUID    `json:"race_id"`
	MeetName    string       `json:"meet_name,omitempty"`
	MeetDate    time.Time    `json:"meet_date,omitempty"`
	TotalTimeCS int          `json:"total_time_cs"`
	Runners     []RaceResult `json:"runners,omitempty"`
}
