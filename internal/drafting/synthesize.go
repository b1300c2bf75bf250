// Package drafting synthesizes tailored draft documents from requirement and
// evidence bundles, and revises them against critiques.
package drafting

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

// Request carries everything one synthesis call needs. Previous and Critique
// are nil for the first draft and set together for revisions.
type Request struct {
	Requirements []types.JobRequirement
	Report       *types.MatchReport
	Evidence     map[string]types.EvidenceItem // accepted evidence by id
	Previous     *types.DraftDocument
	Critique     *types.Critique
}

// Synthesizer produces draft documents. It doubles as the quality loop's
// editor: a revision is the same call with the previous draft and its
// critique attached.
type Synthesizer struct {
	generator llm.Generator
	logger    *zap.Logger
}

// NewSynthesizer creates a synthesizer backed by the given generator.
func NewSynthesizer(generator llm.Generator, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{generator: generator, logger: logger}
}

// Synthesize builds the next draft version. The first draft is grounded only
// in accepted evidence, one justified claim per covered requirement; uncovered
// requirements are omitted rather than fabricated. Revisions must address the
// critique without shrinking the covered set, except for claims the critique
// flags as incorrect. Zero accepted matches across all requirements yields
// *NoEvidenceError: nothing groundable exists.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*types.DraftDocument, error) {
	if req.Report == nil || req.Report.AcceptedCount() == 0 {
		return nil, &NoEvidenceError{Requirements: len(req.Requirements)}
	}

	prompt := s.buildPrompt(req)
	responseText, err := s.generator.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("draft synthesis response",
		zap.Int("response_length", len(responseText)),
		zap.String("response_preview", llm.TruncateForLog(responseText, 200)),
	)

	if err := schemas.Validate(schemas.Draft, responseText); err != nil {
		return nil, &SynthesisError{Message: "model output failed schema validation", Cause: err}
	}

	var payload struct {
		Sections              []types.DraftSection `json:"sections"`
		CoveredRequirementIDs []string             `json:"covered_requirement_ids"`
	}
	if err := json.Unmarshal([]byte(responseText), &payload); err != nil {
		return nil, &SynthesisError{Message: "failed to decode model output", Cause: err}
	}

	draft := &types.DraftDocument{
		Version:               0,
		Sections:              payload.Sections,
		CoveredRequirementIDs: sanitizeCovered(payload.CoveredRequirementIDs, req),
	}

	if req.Previous != nil {
		draft.Version = req.Previous.Version + 1
		draft.CoveredRequirementIDs = enforceMonotonicCoverage(draft.CoveredRequirementIDs, req.Previous, req.Critique)
		draft.CritiqueHistory = append(append([]types.Critique{}, req.Previous.CritiqueHistory...), *req.Critique)
	}

	s.logger.Info("draft synthesized",
		zap.Int("version", draft.Version),
		zap.Int("sections", len(draft.Sections)),
		zap.Int("covered", len(draft.CoveredRequirementIDs)),
	)
	return draft, nil
}

// buildPrompt renders the first-draft or revision prompt.
func (s *Synthesizer) buildPrompt(req Request) string {
	data := map[string]string{
		"Requirements": formatRequirements(req.Requirements),
		"Evidence":     formatEvidence(req),
	}

	if req.Previous == nil {
		data["Uncovered"] = formatUncovered(req)
		template := prompts.MustGet("drafting.json", "synthesize-draft")
		return prompts.Format(template, data)
	}

	prevJSON, _ := json.Marshal(req.Previous.Sections)
	critJSON, _ := json.Marshal(req.Critique)
	data["Previous"] = string(prevJSON)
	data["Critique"] = string(critJSON)
	template := prompts.MustGet("drafting.json", "revise-draft")
	return prompts.Format(template, data)
}

// sanitizeCovered keeps only requirement ids that exist and actually have
// accepted evidence; the model cannot claim coverage it was not given.
func sanitizeCovered(claimed []string, req Request) []string {
	valid := make(map[string]bool, len(req.Requirements))
	for _, r := range req.Requirements {
		if len(req.Report.Accepted(r.ID)) > 0 {
			valid[r.ID] = true
		}
	}

	out := make([]string, 0, len(claimed))
	seen := make(map[string]bool, len(claimed))
	for _, id := range claimed {
		if valid[id] && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	return out
}

// enforceMonotonicCoverage re-adds requirements the previous version covered
// but the revision dropped, unless the critique flagged that claim incorrect.
func enforceMonotonicCoverage(covered []string, previous *types.DraftDocument, critique *types.Critique) []string {
	have := make(map[string]bool, len(covered))
	for _, id := range covered {
		have[id] = true
	}
	for _, id := range previous.CoveredRequirementIDs {
		if have[id] {
			continue
		}
		if critique != nil && critique.FlagsIncorrectClaim(id) {
			continue
		}
		covered = append(covered, id)
	}
	return covered
}

func formatRequirements(reqs []types.JobRequirement) string {
	var sb strings.Builder
	for _, r := range reqs {
		fmt.Fprintf(&sb, "- %s [%s] (id %s, weight %.2f)\n", r.Skill, r.Category, r.ID, r.Weight)
	}
	return sb.String()
}

func formatEvidence(req Request) string {
	var sb strings.Builder
	for _, r := range req.Requirements {
		accepted := req.Report.Accepted(r.ID)
		if len(accepted) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%s (%s):\n", r.ID, r.Skill)
		for _, m := range accepted {
			if item, ok := req.Evidence[m.EvidenceID]; ok {
				fmt.Fprintf(&sb, "  - [%s, score %.2f] %s\n", item.ID, m.Score, item.Text)
			}
		}
	}
	return sb.String()
}

func formatUncovered(req Request) string {
	var sb strings.Builder
	for _, r := range req.Requirements {
		if req.Report.IsUncovered(r.ID) {
			fmt.Fprintf(&sb, "- %s (%s)\n", r.ID, r.Skill)
		}
	}
	if sb.Len() == 0 {
		return "(none)"
	}
	return sb.String()
}
