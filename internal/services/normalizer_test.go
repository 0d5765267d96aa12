package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastsplits/xc-engine/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		timeCS     int
		distance   float64
		difficulty float64
		expected   float64
		wantErr    bool
	}{
		{
			name:       "17:00 on a hilly 5k",
			timeCS:     102000,
			distance:   5000,
			difficulty: 1.10,
			expected:   102000.0 / 1.10 / 5000 * MetersPerMile,
		},
		{
			name:       "16:15 median on a 3 mile anchor",
			timeCS:     97500,
			distance:   4828.03,
			difficulty: 1.05,
			expected:   97500.0 / 1.05 / 4828.03 * MetersPerMile,
		},
		{
			name:       "flat track mile is its own pace",
			timeCS:     30000,
			distance:   MetersPerMile,
			difficulty: 1.0,
			expected:   30000,
		},
		{
			name:       "zero distance rejected",
			timeCS:     102000,
			distance:   0,
			difficulty: 1.10,
			wantErr:    true,
		},
		{
			name:       "negative difficulty rejected",
			timeCS:     102000,
			distance:   5000,
			difficulty: -0.5,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.timeCS, tt.distance, tt.difficulty)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidCourseGeometry))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, got, 0.01)
		})
	}
}

func TestNormalize_ScenarioValues(t *testing.T) {
	// 17:00.00 on course A (5000m, 1.10) vs a 16:15.00 median on anchor B
	// (3 miles, 1.05); the per-athlete ratio lands just below 1.0
	normA, err := Normalize(102000, 5000, 1.10)
	require.NoError(t, err)
	assert.InDelta(t, 29846.0, normA, 1.0)

	normB, err := Normalize(97500, 4828.03, 1.05)
	require.NoError(t, err)
	assert.InDelta(t, 30952.4, normB, 1.0)

	ratio := normA / normB
	assert.InDelta(t, 0.9643, ratio, 0.001)
	assert.InDelta(t, 1.0607, 1.10*ratio, 0.002)
}

func TestProject_RoundTrip(t *testing.T) {
	courseA := models.Course{ID: uuid.New(), DistanceMeters: 5000, DifficultyRating: 1.10}
	courseB := models.Course{ID: uuid.New(), DistanceMeters: 4828.03, DifficultyRating: 1.05}

	for _, timeCS := range []int{90000, 102000, 111537, 150000} {
		there, err := Project(timeCS, courseA, courseB)
		require.NoError(t, err)
		back, err := Project(there, courseB, courseA)
		require.NoError(t, err)
		assert.InDelta(t, timeCS, back, 1, "round trip for %d", timeCS)
	}
}

func TestProject_Identity(t *testing.T) {
	course := models.Course{ID: uuid.New(), DistanceMeters: 5000, DifficultyRating: 1.137}

	for _, timeCS := range []int{1, 95731, 102000} {
		got, err := Project(timeCS, course, course)
		require.NoError(t, err)
		assert.Equal(t, timeCS, got, "identity projection must not drift")
	}
}

func TestProject_InvalidGeometry(t *testing.T) {
	good := models.Course{ID: uuid.New(), DistanceMeters: 5000, DifficultyRating: 1.0}
	bad := models.Course{ID: uuid.New(), DistanceMeters: -1, DifficultyRating: 1.0}

	_, err := Project(102000, good, bad)
	assert.True(t, errors.Is(err, ErrInvalidCourseGeometry))

	_, err = Project(102000, bad, good)
	assert.True(t, errors.Is(err, ErrInvalidCourseGeometry))

	sameBad := models.Course{ID: bad.ID, DistanceMeters: -1, DifficultyRating: 1.0}
	_, err = Project(102000, bad, sameBad)
	assert.True(t, errors.Is(err, ErrInvalidCourseGeometry))
}

func TestNormalize_Monotonicity(t *testing.T) {
	const timeCS = 102000

	// Strictly decreasing in difficulty at fixed distance
	prev := -1.0
	for _, difficulty := range []float64{0.95, 1.0, 1.05, 1.10, 1.20} {
		got, err := Normalize(timeCS, 5000, difficulty)
		require.NoError(t, err)
		if prev > 0 {
			assert.Less(t, got, prev, "difficulty %.2f", difficulty)
		}
		prev = got
	}

	// Strictly increasing in distance at fixed difficulty: a fixed time over
	// more ground is a faster pace, so the per-mile equivalent drops
	prev = -1.0
	for _, distance := range []float64{3000, 4000, 5000, 8000} {
		got, err := Normalize(timeCS, distance, 1.05)
		require.NoError(t, err)
		if prev > 0 {
			assert.Less(t, got, prev, "distance %.0f", distance)
		}
		prev = got
	}

	// Projected times grow with target distance and target difficulty
	prevProjected := 0
	for _, target := range []struct{ distance, difficulty float64 }{
		{4000, 1.0}, {5000, 1.0}, {5000, 1.08}, {8000, 1.08},
	} {
		got, err := ProjectRaw(timeCS, 5000, 1.05, target.distance, target.difficulty)
		require.NoError(t, err)
		assert.Greater(t, got, prevProjected)
		prevProjected = got
	}
}
