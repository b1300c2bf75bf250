// Package quality runs the bounded critique/revise loop that polishes a draft
// until it passes review, stops changing, or hits the iteration ceiling.
package quality

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/career-copilot/internal/drafting"
	"github.com/jonathan/career-copilot/internal/types"
)

// DefaultMaxIterations bounds the loop when no limit is configured.
const DefaultMaxIterations = 3

// Editor revises drafts. *drafting.Synthesizer satisfies it.
type Editor interface {
	Synthesize(ctx context.Context, req drafting.Request) (*types.DraftDocument, error)
}

// Reviewer critiques drafts. *review.Critic satisfies it.
type Reviewer interface {
	Review(ctx context.Context, draft *types.DraftDocument, requirements []types.JobRequirement, report *types.MatchReport) (*types.Critique, error)
}

// Hooks let the orchestrator persist drafts and record state transitions at
// the loop's boundaries. Either hook may be nil. A hook error aborts the loop.
type Hooks struct {
	// OnReviewing fires before each critique with the 1-based iteration number.
	OnReviewing func(ctx context.Context, iteration int) error
	// OnRevised fires after each successful revision with the new version.
	OnRevised func(ctx context.Context, draft *types.DraftDocument) error
}

// Outcome is the loop's terminal result. Converged means a critique passed;
// otherwise the ceiling or stagnation stopped the loop and the last critique
// ships with the draft as its quality report.
type Outcome struct {
	Draft      *types.DraftDocument
	Critique   *types.Critique
	Iterations int
	Converged  bool
	Stagnated  bool
}

// Loop is a bounded state machine: drafting -> reviewing -> (drafting | done).
// Iterations are strictly sequential; each revision depends on the prior
// critique.
type Loop struct {
	editor        Editor
	reviewer      Reviewer
	maxIterations int
	logger        *zap.Logger
}

// NewLoop creates a loop. A non-positive limit falls back to the default.
func NewLoop(editor Editor, reviewer Reviewer, maxIterations int, logger *zap.Logger) *Loop {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{editor: editor, reviewer: reviewer, maxIterations: maxIterations, logger: logger}
}

// Run critiques initial and revises it until a critique passes, two
// consecutive critiques report an identical issue set (stagnation), or
// maxIterations critiques have been spent. req must carry the requirement and
// evidence bundle used to synthesize initial; Run manages Previous/Critique
// itself. A passing critique stops the loop immediately: no further
// synthesizer call occurs.
func (l *Loop) Run(ctx context.Context, req drafting.Request, initial *types.DraftDocument, hooks Hooks) (*Outcome, error) {
	current := initial
	var lastIssueKey string

	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return &Outcome{Draft: current, Iterations: iteration - 1}, err
		}
		if hooks.OnReviewing != nil {
			if err := hooks.OnReviewing(ctx, iteration); err != nil {
				return &Outcome{Draft: current, Iterations: iteration - 1}, err
			}
		}

		critique, err := l.reviewer.Review(ctx, current, req.Requirements, req.Report)
		if err != nil {
			return &Outcome{Draft: current, Iterations: iteration - 1}, err
		}

		outcome := &Outcome{Draft: current, Critique: critique, Iterations: iteration}

		if critique.Pass {
			outcome.Converged = true
			l.logger.Info("quality loop converged",
				zap.Int("iterations", iteration),
				zap.Int("version", current.Version),
				zap.Float64("score", critique.Score),
			)
			return outcome, nil
		}

		key := issueSetKey(critique.Issues)
		if iteration > 1 && key == lastIssueKey {
			outcome.Stagnated = true
			l.logger.Warn("quality loop stagnated",
				zap.Int("iterations", iteration),
				zap.Int("version", current.Version),
			)
			return outcome, nil
		}
		lastIssueKey = key

		if iteration == l.maxIterations {
			l.logger.Warn("quality loop hit iteration ceiling",
				zap.Int("iterations", iteration),
				zap.Float64("score", critique.Score),
			)
			return outcome, nil
		}

		req.Previous = current
		req.Critique = critique
		revised, err := l.editor.Synthesize(ctx, req)
		if err != nil {
			return outcome, err
		}
		if hooks.OnRevised != nil {
			if err := hooks.OnRevised(ctx, revised); err != nil {
				return outcome, err
			}
		}
		current = revised
	}

	// Unreachable: the ceiling return inside the loop fires first.
	return &Outcome{Draft: current, Iterations: l.maxIterations}, nil
}

// issueSetKey builds an order-insensitive fingerprint of an issue set for
// stagnation detection.
func issueSetKey(issues []types.Issue) string {
	keys := make([]string, 0, len(issues))
	for _, iss := range issues {
		keys = append(keys, fmt.Sprintf("%s|%s|%s|%s", iss.RequirementID, iss.Kind, iss.Severity, iss.Description))
	}
	sort.Strings(keys)
	return strings.Join(keys, "\n")
}
