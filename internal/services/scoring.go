package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fastsplits/xc-engine/internal/models"
	"github.com/fastsplits/xc-engine/internal/repository"
)

const (
	// TeamScorers is the number of finishers whose places count toward a
	// team score
	TeamScorers = 5

	// TeamRosterCap is the per-school eligible pool: 5 scorers + 2 displacers
	TeamRosterCap = 7
)

// ScoringService produces team scores, standings, and course-record team
// performances
type ScoringService struct {
	store  repository.Store
	logger *logrus.Logger
}

// NewScoringService creates a new scoring service
func NewScoringService(store repository.Store, logger *logrus.Logger) *ScoringService {
	return &ScoringService{store: store, logger: logger}
}

// ScoreMeet scores a set of athletes with already-projected times on a
// common target course, following standard cross-country rules: per-school
// cap of 7, combined places across the pooled field, 5 scorers plus up to 2
// displacers, golf-style scoring, 6th-runner tie-break. Ties on identical
// times fall back to athlete id so repeated calls produce identical
// standings.
func ScoreMeet(entries []models.MeetEntry) []models.TeamScoreResult {
	// Group by school, preserving first-appearance order for stable output
	schoolOrder := make([]uuid.UUID, 0)
	bySchool := make(map[uuid.UUID][]models.MeetEntry)
	names := make(map[uuid.UUID]string)
	for _, e := range entries {
		if e.TimeCS <= 0 {
			continue
		}
		if _, seen := bySchool[e.SchoolID]; !seen {
			schoolOrder = append(schoolOrder, e.SchoolID)
		}
		bySchool[e.SchoolID] = append(bySchool[e.SchoolID], e)
		if names[e.SchoolID] == "" {
			names[e.SchoolID] = e.SchoolName
		}
	}

	// Retain at most the fastest 7 per school, then pool for combined places
	pool := make([]models.MeetEntry, 0, len(entries))
	for _, schoolID := range schoolOrder {
		roster := bySchool[schoolID]
		sortEntries(roster)
		if len(roster) > TeamRosterCap {
			roster = roster[:TeamRosterCap]
		}
		bySchool[schoolID] = roster
		pool = append(pool, roster...)
	}
	sortEntries(pool)

	placeByAthlete := make(map[uuid.UUID]int, len(pool))
	for i, e := range pool {
		placeByAthlete[e.AthleteID] = i + 1
	}

	results := make([]models.TeamScoreResult, 0, len(schoolOrder))
	for _, schoolID := range schoolOrder {
		roster := bySchool[schoolID]

		runners := make([]models.ScoredRunner, len(roster))
		for i, e := range roster {
			runners[i] = models.ScoredRunner{
				MeetEntry:     e,
				CombinedPlace: placeByAthlete[e.AthleteID],
				IsScorer:      i < TeamScorers,
				IsDisplacer:   i >= TeamScorers,
			}
		}

		team := models.TeamScoreResult{
			SchoolID:   schoolID,
			SchoolName: names[schoolID],
			Runners:    runners,
			IsComplete: len(runners) >= TeamScorers,
		}
		if team.IsComplete {
			for _, r := range runners[:TeamScorers] {
				team.Score += r.CombinedPlace
				team.TeamTimeCS += r.TimeCS
			}
		}
		results = append(results, team)
	}

	rankTeams(results)
	return results
}

// sortEntries orders entries fastest first, athlete id breaking exact ties
func sortEntries(entries []models.MeetEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TimeCS != entries[j].TimeCS {
			return entries[i].TimeCS < entries[j].TimeCS
		}
		return entries[i].AthleteID.String() < entries[j].AthleteID.String()
	})
}

// rankTeams orders complete teams by score, then by the first displacer's
// place; teams missing a displacer keep stable input order. Incomplete teams
// are listed after the ranked field with no rank.
func rankTeams(results []models.TeamScoreResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.IsComplete != b.IsComplete {
			return a.IsComplete
		}
		if !a.IsComplete {
			return false
		}
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		ad, aok := sixthRunnerPlace(a)
		bd, bok := sixthRunnerPlace(b)
		if aok && bok {
			return ad < bd
		}
		return false
	})

	rank := 0
	for i := range results {
		if results[i].IsComplete {
			rank++
			results[i].Rank = rank
		} else {
			results[i].Rank = 0
		}
	}
}

func sixthRunnerPlace(team models.TeamScoreResult) (int, bool) {
	if len(team.Runners) <= TeamScorers {
		return 0, false
	}
	return team.Runners[TeamScorers].CombinedPlace, true
}

// ProjectTime projects a time from one course onto another, fetching both
// courses' current geometry and difficulty
func (s *ScoringService) ProjectTime(ctx context.Context, timeCS int, sourceCourseID, targetCourseID uuid.UUID) (int, error) {
	source, err := s.store.GetCourse(ctx, sourceCourseID)
	if err != nil {
		return 0, err
	}
	target, err := s.store.GetCourse(ctx, targetCourseID)
	if err != nil {
		return 0, err
	}
	return Project(timeCS, *source, *target)
}

// TopTeamPerformances ranks the best single-race top-5 team times ever run
// on a course. Unlike meet scoring there is no roster cap, no displacers,
// and no place-based score: a school simply needs five finishers in one
// race, and teams rank by the sum of their five fastest raw times.
func (s *ScoringService) TopTeamPerformances(ctx context.Context, courseID uuid.UUID, gender *models.Gender, limit int) ([]models.TeamPerformance, error) {
	races, err := s.store.ListRacesForCourse(ctx, courseID, gender)
	if err != nil {
		return nil, err
	}

	var performances []models.TeamPerformance
	for _, race := range races {
		results, err := s.store.ListResultsForRace(ctx, race.ID)
		if err != nil {
			return nil, err
		}

		bySchool := make(map[uuid.UUID][]models.RaceResult)
		var schoolOrder []uuid.UUID
		for _, r := range results {
			schoolID := r.Athlete.SchoolID
			if _, seen := bySchool[schoolID]; !seen {
				schoolOrder = append(schoolOrder, schoolID)
			}
			bySchool[schoolID] = append(bySchool[schoolID], r)
		}

		for _, schoolID := range schoolOrder {
			finishers := bySchool[schoolID]
			if len(finishers) < TeamScorers {
				continue
			}
			sort.SliceStable(finishers, func(i, j int) bool {
				return finishers[i].TimeCS < finishers[j].TimeCS
			})
			top5 := finishers[:TeamScorers]

			total := 0
			for _, r := range top5 {
				total += r.TimeCS
			}
			performances = append(performances, models.TeamPerformance{
				SchoolID:    schoolID,
				SchoolName:  top5[0].Athlete.School.Name,
				RaceID:      race.ID,
				MeetName:    race.Meet.Name,
				MeetDate:    race.Meet.Date,
				TotalTimeCS: total,
				Runners:     top5,
			})
		}
	}

	sort.SliceStable(performances, func(i, j int) bool {
		return performances[i].TotalTimeCS < performances[j].TotalTimeCS
	})
	if limit > 0 && len(performances) > limit {
		performances = performances[:limit]
	}

	s.logger.WithFields(logrus.Fields{
		"course_id":    courseID,
		"performances": len(performances),
	}).Debug("Computed top team performances")

	return performances, nil
}
