package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/fastsplits/xc-engine/internal/config"
	"github.com/fastsplits/xc-engine/internal/models"
)

const annotationSystemPrompt = `You are a cross-country course analyst. You are given ` +
	`statistics about a course's result distribution and, when available, a network ` +
	`calibration against an anchor course. Propose a difficulty rating for the course ` +
	`(a multiplicative pace multiplier relative to a flat track mile, typically between ` +
	`0.95 and 1.25). Respond with a single JSON object of the form ` +
	`{"difficulty": <number>, "confidence": "low"|"medium"|"high", "reasoning": "<text>"} ` +
	`and nothing else.`

// AnnotationProposal is the untrusted output of the annotation source
type AnnotationProposal struct {
	Difficulty float64 `json:"difficulty"`
	Confidence string  `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// AnnotationService asks the Claude API for a course difficulty proposal and
// records it as one more pending recommendation. Its output is never
// auto-applied; it goes through the same lifecycle as every other source.
type AnnotationService struct {
	httpClient     *http.Client
	cache          *CacheService
	lifecycle      *LifecycleManager
	logger         *logrus.Logger
	apiKey         string
	baseURL        string
	model          string
	cacheTTL       time.Duration
	rateLimiter    *time.Ticker
	circuitBreaker *gobreaker.CircuitBreaker
	retryAttempts  int
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeResponse struct {
	Content    []claudeContentBlock `json:"content"`
	StopReason string               `json:"stop_reason"`
}

type claudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAnnotationService creates a new annotation source client with rate
// limiting and a circuit breaker around the upstream API
func NewAnnotationService(cfg *config.Config, cache *CacheService, lifecycle *LifecycleManager, logger *logrus.Logger) *AnnotationService {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "annotation-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("Annotation API circuit breaker state changed")
		},
	})

	return &AnnotationService{
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		cache:          cache,
		lifecycle:      lifecycle,
		logger:         logger,
		apiKey:         cfg.ClaudeAPIKey,
		baseURL:        "https://api.anthropic.com/v1",
		model:          cfg.ClaudeModel,
		cacheTTL:       time.Duration(cfg.AICacheExpiration) * time.Second,
		rateLimiter:    time.NewTicker(time.Second),
		circuitBreaker: cb,
		retryAttempts:  3,
	}
}

// IsHealthy reports whether the upstream circuit is closed
func (s *AnnotationService) IsHealthy() bool {
	return s.circuitBreaker.State() == gobreaker.StateClosed
}

// AnnotateCourse asks the annotation source for a difficulty proposal based
// on the supplied statistics and optional calibration, then submits it as a
// pending recommendation tagged source=annotation
func (s *AnnotationService) AnnotateCourse(ctx context.Context, courseID uuid.UUID, stats *models.CourseStatistics, calibration *models.CalibrationResult) (*models.Recommendation, error) {
	proposal, err := s.Propose(ctx, courseID, stats, calibration)
	if err != nil {
		return nil, err
	}

	label := models.ParseConfidenceLabel(proposal.Confidence)
	payload, _ := json.Marshal(map[string]interface{}{
		"reasoning":  proposal.Reasoning,
		"statistics": stats,
	})

	rec := &models.Recommendation{
		CourseID:           courseID,
		Source:             models.SourceAnnotation,
		ProposedDifficulty: proposal.Difficulty,
		Confidence:         label.Score(),
		ConfidenceLabel:    label,
		SupportingStats:    payload,
		State:              models.StatePending,
	}
	if err := s.lifecycle.Submit(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Propose calls the annotation source for a difficulty proposal without
// recording anything
func (s *AnnotationService) Propose(ctx context.Context, courseID uuid.UUID, stats *models.CourseStatistics, calibration *models.CalibrationResult) (*AnnotationProposal, error) {
	cacheKey := fmt.Sprintf("course:%s:annotation", courseID)
	if s.cache != nil {
		var cached AnnotationProposal
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	prompt, err := buildAnnotationPrompt(stats, calibration)
	if err != nil {
		return nil, err
	}

	response, err := s.circuitBreaker.Execute(func() (interface{}, error) {
		return s.makeRequest(ctx, claudeRequest{
			Model:     s.model,
			MaxTokens: 1000,
			System:    annotationSystemPrompt,
			Messages:  []claudeMessage{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("annotation API request failed: %w", err)
	}

	proposal, err := parseProposal(response.(*claudeResponse))
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, proposal, s.cacheTTL); err != nil {
			s.logger.WithError(err).Warn("Failed to cache annotation proposal")
		}
	}
	return proposal, nil
}

func buildAnnotationPrompt(stats *models.CourseStatistics, calibration *models.CalibrationResult) (string, error) {
	var b strings.Builder
	b.WriteString("Course result statistics:\n")

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return "", fmt.Errorf("failed to marshal statistics: %w", err)
	}
	b.Write(statsJSON)

	if calibration != nil {
		summary := *calibration
		summary.Ratios = nil
		calJSON, err := json.Marshal(summary)
		if err != nil {
			return "", fmt.Errorf("failed to marshal calibration: %w", err)
		}
		b.WriteString("\n\nAnchor network calibration:\n")
		b.Write(calJSON)
	}

	return b.String(), nil
}

// parseProposal validates the untrusted response. A non-positive difficulty
// is rejected outright rather than clamped.
func parseProposal(resp *claudeResponse) (*AnnotationProposal, error) {
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	// The model occasionally wraps JSON in prose; take the outermost object
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("annotation response contains no JSON object")
	}

	var proposal AnnotationProposal
	if err := json.Unmarshal([]byte(text[start:end+1]), &proposal); err != nil {
		return nil, fmt.Errorf("failed to decode annotation proposal: %w", err)
	}
	if proposal.Difficulty <= 0 {
		return nil, fmt.Errorf("%w: annotation proposed difficulty_rating=%.4f",
			ErrInvalidCourseGeometry, proposal.Difficulty)
	}
	return &proposal, nil
}

func (s *AnnotationService) makeRequest(ctx context.Context, request claudeRequest) (*claudeResponse, error) {
	<-s.rateLimiter.C

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewBuffer(requestBody))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", s.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var decoded claudeResponse
			err := json.NewDecoder(resp.Body).Decode(&decoded)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
			return &decoded, nil
		}

		var apiErr claudeError
		decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr)
		resp.Body.Close()
		if decodeErr != nil {
			lastErr = fmt.Errorf("API request failed with status %d", resp.StatusCode)
			continue
		}

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("invalid API credentials: %s", apiErr.Message)
		case http.StatusBadRequest:
			return nil, fmt.Errorf("bad request: %s", apiErr.Message)
		case http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limit exceeded: %s", apiErr.Message)
		default:
			lastErr = fmt.Errorf("unexpected error (status %d): %s", resp.StatusCode, apiErr.Message)
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", s.retryAttempts, lastErr)
}
