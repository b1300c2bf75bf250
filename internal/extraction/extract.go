// Package extraction turns raw job-posting text into a structured, weighted
// requirement list using LLM extraction.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/career-copilot/internal/llm"
	"github.com/jonathan/career-copilot/internal/prompts"
	"github.com/jonathan/career-copilot/internal/schemas"
	"github.com/jonathan/career-copilot/internal/types"
)

// Extractor extracts job requirements from posting text.
type Extractor struct {
	generator llm.Generator
	logger    *zap.Logger
}

// NewExtractor creates an extractor backed by the given generator.
func NewExtractor(generator llm.Generator, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{generator: generator, logger: logger}
}

// rawRequirement mirrors the model's JSON output before normalization.
type rawRequirement struct {
	Skill    string  `json:"skill"`
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
	Quote    string  `json:"quote"`
}

// Extract returns the posting's requirements ordered by weight descending,
// ties broken by first appearance in the source text. Empty or non-job input
// yields *ExtractionError, which is terminal for the run and never retried.
func (ex *Extractor) Extract(ctx context.Context, postingText string) ([]types.JobRequirement, error) {
	if strings.TrimSpace(postingText) == "" {
		return nil, &ExtractionError{Message: "posting text is empty"}
	}

	template := prompts.MustGet("extraction.json", "extract-requirements")
	prompt := prompts.Format(template, map[string]string{
		"PostingText": postingText,
	})

	responseText, err := ex.generator.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, err
	}

	ex.logger.Debug("requirement extraction response",
		zap.Int("response_length", len(responseText)),
		zap.String("response_preview", llm.TruncateForLog(responseText, 200)),
	)

	if err := schemas.Validate(schemas.Requirements, responseText); err != nil {
		return nil, &ExtractionError{Message: "model output failed schema validation", Cause: err}
	}

	var payload struct {
		Requirements []rawRequirement `json:"requirements"`
	}
	if err := json.Unmarshal([]byte(responseText), &payload); err != nil {
		return nil, &ExtractionError{Message: "failed to decode model output", Cause: err}
	}

	reqs := Normalize(payload.Requirements, postingText)
	if len(reqs) == 0 {
		return nil, &ExtractionError{Message: "no requirements found in posting text"}
	}

	ex.logger.Info("requirements extracted", zap.Int("count", len(reqs)))
	return reqs, nil
}

// ExtractionError indicates unusable posting text (or unusable model output
// for it). It is terminal: the orchestrator fails the session without retry.
type ExtractionError struct {
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("extraction failed: %s", e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}
