// Package review implements the critic half of the quality loop: scoring a
// draft against the requirement checklist and emitting an actionable critique.
package review

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

// DefaultAcceptThreshold is the critique score a draft must reach to pass.
const DefaultAcceptThreshold = 0.7

// Severity weights for the score. The score starts at 1.0 and each issue
// subtracts its weight; a blocking issue also fails the draft outright.
const (
	blockingPenalty = 0.4
	majorPenalty    = 0.15
	minorPenalty    = 0.05
)

// Critic evaluates drafts. The score is computed deterministically from the
// issue list, so two critiques with the same issues always score the same;
// the model only decides what the issues are.
type Critic struct {
	generator       llm.Generator
	acceptThreshold float64
	logger          *zap.Logger
}

// NewCritic creates a critic. A non-positive threshold falls back to the
// default.
func NewCritic(generator llm.Generator, acceptThreshold float64, logger *zap.Logger) *Critic {
	if acceptThreshold <= 0 {
		acceptThreshold = DefaultAcceptThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Critic{generator: generator, acceptThreshold: acceptThreshold, logger: logger}
}

// Review critiques the draft against the requirement list. Coverage issues
// are detected deterministically (a covered requirement must appear in the
// draft's covered set); tone/length issues come from the model. Uncovered
// requirements surface as minor coverage-gap issues so the caller sees them,
// without blocking a draft that honestly omitted them.
func (c *Critic) Review(ctx context.Context, draft *types.DraftDocument, requirements []types.JobRequirement, report *types.MatchReport) (*types.Critique, error) {
	issues, err := c.modelIssues(ctx, draft, requirements, report)
	if err != nil {
		return nil, err
	}

	issues = append(issues, coverageIssues(draft, requirements, report)...)

	critique := &types.Critique{Issues: issues}
	critique.Score = Score(issues)
	critique.Pass = critique.Score >= c.acceptThreshold && !critique.HasBlocking()

	c.logger.Info("draft reviewed",
		zap.Int("version", draft.Version),
		zap.Int("issues", len(issues)),
		zap.Float64("score", critique.Score),
		zap.Bool("pass", critique.Pass),
	)
	return critique, nil
}

// Score computes the severity-weighted critique score in [0,1].
func Score(issues []types.Issue) float64 {
	score := 1.0
	for _, iss := range issues {
		switch iss.Severity {
		case types.SeverityBlocking:
			score -= blockingPenalty
		case types.SeverityMajor:
			score -= majorPenalty
		case types.SeverityMinor:
			score -= minorPenalty
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

// modelIssues asks the model for tone/length/claim issues.
func (c *Critic) modelIssues(ctx context.Context, draft *types.DraftDocument, requirements []types.JobRequirement, report *types.MatchReport) ([]types.Issue, error) {
	draftJSON, _ := json.Marshal(draft.Sections)

	template := prompts.MustGet("review.json", "critique-draft")
	prompt := prompts.Format(template, map[string]string{
		"Requirements": formatRequirements(requirements),
		"Evidence":     formatAccepted(requirements, report),
		"Draft":        string(draftJSON),
	})

	responseText, err := c.generator.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, err
	}

	if err := schemas.Validate(schemas.Critique, responseText); err != nil {
		return nil, &ReviewError{Message: "model output failed schema validation", Cause: err}
	}

	var payload struct {
		Issues []types.Issue `json:"issues"`
	}
	if err := json.Unmarshal([]byte(responseText), &payload); err != nil {
		return nil, &ReviewError{Message: "failed to decode model output", Cause: err}
	}
	return payload.Issues, nil
}

// coverageIssues performs the deterministic per-requirement checks.
func coverageIssues(draft *types.DraftDocument, requirements []types.JobRequirement, report *types.MatchReport) []types.Issue {
	var issues []types.Issue
	for _, req := range requirements {
		if report.IsUncovered(req.ID) {
			issues = append(issues, types.Issue{
				RequirementID: req.ID,
				Kind:          types.KindMissingCoverage,
				Description:   fmt.Sprintf("no evidence in the archive covers %q; the gap is surfaced in the quality report", req.Skill),
				Severity:      types.SeverityMinor,
			})
			continue
		}
		if !draft.Covers(req.ID) {
			severity := types.SeverityMajor
			if req.Category == types.CategoryHardSkill {
				severity = types.SeverityBlocking
			}
			issues = append(issues, types.Issue{
				RequirementID: req.ID,
				Kind:          types.KindMissingCoverage,
				Description:   fmt.Sprintf("accepted evidence exists for %q but the draft makes no claim for it", req.Skill),
				Severity:      severity,
			})
		}
	}
	return issues
}

func formatRequirements(reqs []types.JobRequirement) string {
	var sb strings.Builder
	for _, r := range reqs {
		fmt.Fprintf(&sb, "- %s [%s] (id %s, weight %.2f)\n", r.Skill, r.Category, r.ID, r.Weight)
	}
	return sb.String()
}

func formatAccepted(reqs []types.JobRequirement, report *types.MatchReport) string {
	var sb strings.Builder
	for _, r := range reqs {
		for _, m := range report.Accepted(r.ID) {
			fmt.Fprintf(&sb, "- %s: evidence %s (score %.2f)\n", r.ID, m.EvidenceID, m.Score)
		}
	}
	return sb.String()
}

// ReviewError indicates the critic could not produce a usable critique from
// the model output.
type ReviewError struct {
	Message string
	Cause   error
}

func (e *ReviewError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("review failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("review failed: %s", e.Message)
}

func (e *ReviewError) Unwrap() error {
	return e.Cause
}
