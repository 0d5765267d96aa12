package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fastsplits/xc-engine/internal/models"
	"github.com/fastsplits/xc-engine/internal/repository"
)

// fakeStore is an in-memory Store for exercising the services against the
// repository contract
type fakeStore struct {
	mu       sync.Mutex
	courses  map[uuid.UUID]models.Course
	athletes map[uuid.UUID]models.Athlete
	races    map[uuid.UUID]models.Race
	results  []models.RaceResult
	recs     map[uuid.UUID]*models.Recommendation
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		courses:  make(map[uuid.UUID]models.Course),
		athletes: make(map[uuid.UUID]models.Athlete),
		races:    make(map[uuid.UUID]models.Race),
		recs:     make(map[uuid.UUID]*models.Recommendation),
	}
}

func (f *fakeStore) addCourse(course models.Course) models.Course {
	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	f.courses[course.ID] = course
	return course
}

func (f *fakeStore) addRace(race models.Race) models.Race {
	if race.ID == uuid.Nil {
		race.ID = uuid.New()
	}
	race.Course = f.courses[race.CourseID]
	f.races[race.ID] = race
	return race
}

func (f *fakeStore) addAthlete(schoolID uuid.UUID) models.Athlete {
	athlete := models.Athlete{ID: uuid.New(), SchoolID: schoolID}
	f.athletes[athlete.ID] = athlete
	return athlete
}

func (f *fakeStore) addResult(raceID, athleteID uuid.UUID, timeCS int) {
	f.results = append(f.results, models.RaceResult{
		ID:        uuid.New(),
		RaceID:    raceID,
		AthleteID: athleteID,
		TimeCS:    timeCS,
	})
}

func (f *fakeStore) GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	course, ok := f.courses[id]
	if !ok {
		return nil, repository.ErrCourseNotFound
	}
	return &course, nil
}

func (f *fakeStore) ListCourses(ctx context.Context) ([]models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Course, 0, len(f.courses))
	for _, c := range f.courses {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) UpdateCourseDifficulty(ctx context.Context, id uuid.UUID, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	course, ok := f.courses[id]
	if !ok {
		return repository.ErrCourseNotFound
	}
	course.DifficultyRating = value
	f.courses[id] = course
	return nil
}

func (f *fakeStore) matchesFilter(race models.Race, filter repository.ResultFilter) bool {
	if filter.Gender != nil && race.Gender != *filter.Gender {
		return false
	}
	if filter.SeasonYear != nil && race.Meet.SeasonYear != *filter.SeasonYear {
		return false
	}
	return true
}

func (f *fakeStore) ListResultsForCourse(ctx context.Context, courseID uuid.UUID, filter repository.ResultFilter) ([]models.RaceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RaceResult
	for _, r := range f.results {
		race, ok := f.races[r.RaceID]
		if !ok || race.CourseID != courseID || !r.HasTime() || !f.matchesFilter(race, filter) {
			continue
		}
		r.Race = race
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) ListResultsForAthlete(ctx context.Context, athleteID uuid.UUID) ([]models.RaceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RaceResult
	for _, r := range f.results {
		if r.AthleteID != athleteID || !r.HasTime() {
			continue
		}
		r.Race = f.races[r.RaceID]
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) ListResultsForRace(ctx context.Context, raceID uuid.UUID) ([]models.RaceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RaceResult
	for _, r := range f.results {
		if r.RaceID != raceID || !r.HasTime() {
			continue
		}
		r.Athlete = f.athletes[r.AthleteID]
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) ListRacesForCourse(ctx context.Context, courseID uuid.UUID, gender *models.Gender) ([]models.Race, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Race
	for _, race := range f.races {
		if race.CourseID != courseID {
			continue
		}
		if gender != nil && race.Gender != *gender {
			continue
		}
		out = append(out, race)
	}
	return out, nil
}

func (f *fakeStore) FindAthletesOnBoth(ctx context.Context, courseID, anchorCourseID uuid.UUID, filter repository.ResultFilter) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	onCourse := func(id uuid.UUID) map[uuid.UUID]bool {
		set := make(map[uuid.UUID]bool)
		for _, r := range f.results {
			race, ok := f.races[r.RaceID]
			if ok && race.CourseID == id && r.HasTime() && f.matchesFilter(race, filter) {
				set[r.AthleteID] = true
			}
		}
		return set
	}

	target := onCourse(courseID)
	anchor := onCourse(anchorCourseID)
	var shared []uuid.UUID
	for id := range target {
		if anchor[id] {
			shared = append(shared, id)
		}
	}
	return shared, nil
}

func (f *fakeStore) UpsertPendingRecommendation(ctx context.Context, rec *models.Recommendation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.recs {
		if existing.CourseID == rec.CourseID && existing.Source == rec.Source && existing.State == models.StatePending {
			existing.ProposedDifficulty = rec.ProposedDifficulty
			existing.Confidence = rec.Confidence
			existing.ConfidenceLabel = rec.ConfidenceLabel
			existing.SupportingStats = rec.SupportingStats
			existing.UpdatedAt = time.Now().UTC()
			*rec = *existing
			return nil
		}
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.State = models.StatePending
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	stored := *rec
	f.recs[rec.ID] = &stored
	return nil
}

func (f *fakeStore) GetRecommendation(ctx context.Context, id uuid.UUID) (*models.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return nil, repository.ErrRecommendationNotFound
	}
	out := *rec
	return &out, nil
}

func (f *fakeStore) ListRecommendations(ctx context.Context, courseID *uuid.UUID, states []models.RecommendationState) ([]models.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[models.RecommendationState]bool)
	for _, s := range states {
		wanted[s] = true
	}
	var out []models.Recommendation
	for _, rec := range f.recs {
		if courseID != nil && rec.CourseID != *courseID {
			continue
		}
		if len(wanted) > 0 && !wanted[rec.State] {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeStore) resolve(id uuid.UUID, state models.RecommendationState, actor string, notes *string) (*models.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[id]
	if !ok {
		return nil, repository.ErrRecommendationNotFound
	}
	if rec.State.IsTerminal() {
		return nil, repository.ErrRecommendationAlreadyResolved
	}
	now := time.Now().UTC()
	rec.State = state
	rec.ResolvedAt = &now
	rec.ResolvedBy = &actor
	rec.ResolutionNotes = notes
	rec.UpdatedAt = now

	if state == models.StateApplied {
		course, ok := f.courses[rec.CourseID]
		if !ok {
			return nil, repository.ErrCourseNotFound
		}
		course.DifficultyRating = rec.ProposedDifficulty
		f.courses[rec.CourseID] = course
	}

	out := *rec
	return &out, nil
}

func (f *fakeStore) ApplyRecommendation(ctx context.Context, id uuid.UUID, actor string, notes *string) (*models.Recommendation, error) {
	return f.resolve(id, models.StateApplied, actor, notes)
}

func (f *fakeStore) DismissRecommendation(ctx context.Context, id uuid.UUID, actor string, notes *string) (*models.Recommendation, error) {
	return f.resolve(id, models.StateDismissed, actor, notes)
}
