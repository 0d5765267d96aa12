package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Gender identifies the division a race result was recorded in
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// School represents a school fielding athletes
type School struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	City      string    `json:"city,omitempty"`
	State     string    `gorm:"size:2" json:"state,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Athlete represents a runner
type Athlete struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SchoolID       uuid.UUID `gorm:"type:uuid;not null;index" json:"school_id"`
	FirstName      string    `gorm:"not null" json:"first_name"`
	LastName       string    `gorm:"not null" json:"last_name"`
	Gender         Gender    `gorm:"size:1;not null" json:"gender"`
	GraduationYear int       `gorm:"not null" json:"graduation_year"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	School School `gorm:"foreignKey:SchoolID" json:"school,omitempty"`
}

// Course represents a cross-country course. DifficultyRating is a
// multiplicative pace multiplier relative to a flat track mile; it is mutable
// only through the recommendation lifecycle or an explicit admin override.
type Course struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name             string    `gorm:"not null" json:"name"`
	Location         string    `json:"location,omitempty"`
	DistanceMeters   float64   `gorm:"not null" json:"distance_meters"`
	DifficultyRating float64   `gorm:"not null;default:1.0" json:"difficulty_rating"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Meet represents a single competition date hosting one or more races
type Meet struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name       string    `gorm:"not null" json:"name"`
	Date       time.Time `gorm:"not null" json:"date"`
	SeasonYear int       `gorm:"not null;index" json:"season_year"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Race represents a single gendered race within a meet, run on a course
type Race struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	MeetID   uuid.UUID `gorm:"type:uuid;not null;index" json:"meet_id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;index" json:"course_id"`
	Gender   Gender    `gorm:"size:1;not null" json:"gender"`
	Name     string    `json:"name,omitempty"`

	Meet   Meet   `gorm:"foreignKey:MeetID" json:"meet,omitempty"`
	Course Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}

// RaceResult represents one athlete's finish in one race. TimeCS is the
// finish time in hundredths of a second; zero means no valid time recorded.
type RaceResult struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RaceID    uuid.UUID `gorm:"type:uuid;not null;index" json:"race_id"`
	AthleteID uuid.UUID `gorm:"type:uuid;not null;index" json:"athlete_id"`
	TimeCS    int       `gorm:"not null" json:"time_cs"`
	Place     *int      `json:"place,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Race    Race    `gorm:"foreignKey:RaceID" json:"race,omitempty"`
	Athlete Athlete `gorm:"foreignKey:AthleteID" json:"athlete,omitempty"`
}

// HasTime reports whether the result carries a usable finish time
func (r RaceResult) HasTime() bool {
	return r.TimeCS > 0
}

// GradeForSeason derives an athlete's grade (9-12) for a given fall season.
// A runner in the class of seasonYear+1 is a senior during that season.
func GradeForSeason(graduationYear, seasonYear int) int {
	return 13 - (graduationYear - seasonYear)
}

// RecommendationSource tags the provenance of a difficulty recommendation
type RecommendationSource string

const (
	SourceStatistical RecommendationSource = "statistical"
	SourceNetwork     RecommendationSource = "network"
	SourceAnnotation  RecommendationSource = "annotation"
)

// RecommendationState is the lifecycle state of a recommendation
type RecommendationState string

const (
	StatePending   RecommendationState = "pending"
	StateApplied   RecommendationState = "applied"
	StateDismissed RecommendationState = "dismissed"
)

// IsTerminal reports whether the state permits no further transitions
func (s RecommendationState) IsTerminal() bool {
	return s == StateApplied || s == StateDismissed
}

// ConfidenceLabel is the qualitative confidence vocabulary shared by all
// recommendation sources
type ConfidenceLabel string

const (
	ConfidenceLow    ConfidenceLabel = "low"
	ConfidenceMedium ConfidenceLabel = "medium"
	ConfidenceHigh   ConfidenceLabel = "high"
)

var confidenceRank = map[ConfidenceLabel]int{
	ConfidenceLow:    0,
	ConfidenceMedium: 1,
	ConfidenceHigh:   2,
}

var confidenceScore = map[ConfidenceLabel]float64{
	ConfidenceLow:    0.25,
	ConfidenceMedium: 0.60,
	ConfidenceHigh:   0.90,
}

// WeakerConfidence returns the weaker of two confidence labels. Either a
// small sample or inconsistent ratios alone should suppress confidence.
func WeakerConfidence(a, b ConfidenceLabel) ConfidenceLabel {
	if confidenceRank[a] <= confidenceRank[b] {
		return a
	}
	return b
}

// Score maps a qualitative label onto the [0,1] confidence scale
func (c ConfidenceLabel) Score() float64 {
	if s, ok := confidenceScore[c]; ok {
		return s
	}
	return confidenceScore[ConfidenceLow]
}

// ParseConfidenceLabel maps untrusted input onto the known vocabulary,
// defaulting to low for anything unrecognized
func ParseConfidenceLabel(raw string) ConfidenceLabel {
	switch ConfidenceLabel(raw) {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return ConfidenceLabel(raw)
	default:
		return ConfidenceLow
	}
}

// Recommendation represents a proposed difficulty-rating change awaiting
// administrative apply/dismiss. At most one pending recommendation exists
// per (course_id, source) pair; a recomputation supersedes the prior one.
type Recommendation struct {
	ID                 uuid.UUID            `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CourseID           uuid.UUID            `gorm:"type:uuid;not null;index" json:"course_id"`
	Source             RecommendationSource `gorm:"size:20;not null" json:"source"`
	ProposedDifficulty float64              `gorm:"not null" json:"proposed_difficulty"`
	Confidence         float64              `gorm:"not null" json:"confidence"`
	ConfidenceLabel    ConfidenceLabel      `gorm:"size:10;not null" json:"confidence_label"`
	SupportingStats    json.RawMessage      `gorm:"type:jsonb" json:"supporting_stats,omitempty"`
	State              RecommendationState  `gorm:"size:10;not null;default:'pending';index" json:"state"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
	ResolvedAt         *time.Time           `json:"resolved_at,omitempty"`
	ResolvedBy         *string              `json:"resolved_by,omitempty"`
	ResolutionNotes    *string              `json:"resolution_notes,omitempty"`

	Course Course `gorm:"foreignKey:CourseID" json:"course,omitempty"`
}
