// Package copilot answers interview questions in real time using the
// evidence archive. It never mutates session state and degrades gracefully
// when the model is slow: retrieval results always come back, talking
// points only when the fast model answers in time.
package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/career-copilot/internal/llm"
	"github.com/jonathan/career-copilot/internal/prompts"
	"github.com/jonathan/career-copilot/internal/retrieval"
	"github.com/jonathan/career-copilot/internal/schemas"
	"github.com/jonathan/career-copilot/internal/types"
)

// DefaultPointsDeadline bounds the talking-points model call. Interview
// latency budgets are tight; past this we return retrieval results alone.
const DefaultPointsDeadline = 3 * time.Second

// SessionReader is the read-only view of the session store the copilot uses.
type SessionReader interface {
	Get(id uuid.UUID) (types.Session, error)
}

// Searcher is the retrieval surface the copilot queries.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, filterTags []string) ([]retrieval.ScoredItem, error)
}

// Answer is the copilot's response to one interview question.
type Answer struct {
	Question      string                 `json:"question"`
	Evidence      []retrieval.ScoredItem `json:"evidence"`
	TalkingPoints []string               `json:"talking_points,omitempty"`
	Persona       types.Persona          `json:"persona"`
	Degraded      bool                   `json:"degraded"`
}

// Service answers questions against a session's evidence.
type Service struct {
	sessions       SessionReader
	searcher       Searcher
	generator      llm.Generator
	topK           int
	pointsDeadline time.Duration
	logger         *zap.Logger
}

// NewService creates a copilot service. Non-positive topK and deadline fall
// back to defaults.
func NewService(sessions SessionReader, searcher Searcher, generator llm.Generator, topK int, pointsDeadline time.Duration, logger *zap.Logger) *Service {
	if topK <= 0 {
		topK = 3
	}
	if pointsDeadline <= 0 {
		pointsDeadline = DefaultPointsDeadline
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		sessions:       sessions,
		searcher:       searcher,
		generator:      generator,
		topK:           topK,
		pointsDeadline: pointsDeadline,
		logger:         logger,
	}
}

// Ask retrieves the most relevant evidence for a question and, when the fast
// model responds within the deadline, a few grounded talking points. A
// failed or slow talking-points call marks the answer degraded instead of
// failing it.
func (s *Service) Ask(ctx context.Context, sessionID uuid.UUID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question must not be empty")
	}

	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	items, err := s.searcher.Search(ctx, question, s.topK, nil)
	if err != nil {
		return nil, fmt.Errorf("evidence retrieval failed: %w", err)
	}

	answer := &Answer{
		Question: question,
		Evidence: items,
		Persona:  sess.Persona,
	}
	if len(items) == 0 {
		return answer, nil
	}

	points, err := s.talkingPoints(ctx, question, items)
	if err != nil {
		s.logger.Warn("talking points unavailable",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		answer.Degraded = true
		return answer, nil
	}
	answer.TalkingPoints = points
	return answer, nil
}

func (s *Service) talkingPoints(ctx context.Context, question string, items []retrieval.ScoredItem) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.pointsDeadline)
	defer cancel()

	prompt := prompts.Format(prompts.MustGet("copilot.json", "talking-points"), map[string]string{
		"Question": question,
		"Evidence": formatEvidence(items),
	})

	raw, err := s.generator.GenerateJSON(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, err
	}
	if err := schemas.Validate(schemas.TalkingPoints, raw); err != nil {
		return nil, err
	}

	var parsed struct {
		TalkingPoints []string `json:"talking_points"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse talking points: %w", err)
	}
	return parsed.TalkingPoints, nil
}

func formatEvidence(items []retrieval.ScoredItem) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- [%s] %s\n", it.Item.ID, it.Item.Text)
	}
	return b.String()
}
