package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastsplits/xc-engine/internal/models"
)

func textResponse(blocks ...string) *claudeResponse {
	resp := &claudeResponse{StopReason: "end_turn"}
	for _, b := range blocks {
		resp.Content = append(resp.Content, claudeContentBlock{Type: "text", Text: b})
	}
	return resp
}

func TestParseProposal(t *testing.T) {
	tests := []struct {
		name    string
		resp    *claudeResponse
		want    AnnotationProposal
		wantErr bool
	}{
		{
			name: "clean JSON object",
			resp: textResponse(`{"difficulty": 1.12, "confidence": "high", "reasoning": "slow median vs anchor"}`),
			want: AnnotationProposal{Difficulty: 1.12, Confidence: "high", Reasoning: "slow median vs anchor"},
		},
		{
			name: "JSON wrapped in prose",
			resp: textResponse("Here is my assessment:\n", `{"difficulty": 1.05, "confidence": "medium", "reasoning": "thin sample"}`, "\nLet me know if you need more."),
			want: AnnotationProposal{Difficulty: 1.05, Confidence: "medium", Reasoning: "thin sample"},
		},
		{
			name:    "no JSON at all",
			resp:    textResponse("I cannot assess this course."),
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			resp:    textResponse(`{"difficulty": }`),
			wantErr: true,
		},
		{
			name:    "non-positive difficulty rejected",
			resp:    textResponse(`{"difficulty": -0.5, "confidence": "high", "reasoning": "nonsense"}`),
			wantErr: true,
		},
		{
			name:    "zero difficulty rejected",
			resp:    textResponse(`{"difficulty": 0, "confidence": "low", "reasoning": "unsure"}`),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseProposal(tt.resp)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestBuildAnnotationPrompt(t *testing.T) {
	mean := 102000.0
	stats := &models.CourseStatistics{CourseID: uuid.New(), Count: 40, MeanCS: &mean}

	prompt, err := buildAnnotationPrompt(stats, nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, stats.CourseID.String())
	assert.NotContains(t, prompt, "Anchor network calibration")

	calibration := &models.CalibrationResult{
		CourseID:          stats.CourseID,
		AnchorCourseID:    uuid.New(),
		MedianRatio:       0.9643,
		ImpliedDifficulty: 1.0607,
		Ratios:            []models.AthleteRatio{{AthleteID: uuid.New(), Ratio: 0.9643}},
	}

	prompt, err = buildAnnotationPrompt(stats, calibration)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Anchor network calibration")
	assert.Contains(t, prompt, calibration.AnchorCourseID.String())
	assert.NotContains(t, prompt, "\"ratios\"", "per-athlete detail stays out of the prompt")
}

func TestParseConfidenceLabel(t *testing.T) {
	assert.Equal(t, models.ConfidenceHigh, models.ParseConfidenceLabel("high"))
	assert.Equal(t, models.ConfidenceMedium, models.ParseConfidenceLabel("medium"))
	assert.Equal(t, models.ConfidenceLow, models.ParseConfidenceLabel("low"))
	assert.Equal(t, models.ConfidenceLow, models.ParseConfidenceLabel("certain"), "unknown labels degrade to low")
	assert.Equal(t, models.ConfidenceLow, models.ParseConfidenceLabel(""))
}
