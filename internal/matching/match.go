// Package matching assembles scored evidence bundles for extracted job
// requirements by querying the retrieval engine.
package matching

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/career-copilot/internal/retrieval"
	"github.com/jonathan/career-copilot/internal/types"
)

// Defaults for matcher configuration; all are overridable via config.
const (
	DefaultThreshold      = 0.6
	DefaultTopK           = 3
	DefaultMaxConcurrency = 4
)

// Searcher is the retrieval surface the matcher needs. *retrieval.Engine
// satisfies it; tests substitute a stub.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, filterTags []string) ([]retrieval.ScoredItem, error)
}

// Matcher fans per-requirement retrieval queries out concurrently, bounded to
// respect external rate limits.
type Matcher struct {
	searcher       Searcher
	threshold      float64
	topK           int
	maxConcurrency int
	logger         *zap.Logger
}

// NewMatcher creates a matcher. Non-positive options fall back to defaults.
func NewMatcher(searcher Searcher, threshold float64, topK, maxConcurrency int, logger *zap.Logger) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		searcher:       searcher,
		threshold:      threshold,
		topK:           topK,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Match queries the retrieval engine once per requirement, concurrently, and
// returns per-requirement ordered matches. A requirement with no accepted
// match is flagged uncovered and passed through unmatched; that is a coverage
// gap, not an error. Only a total retrieval outage (every query failed) yields
// *TotalOutageError; otherwise partial results are returned.
func (m *Matcher) Match(ctx context.Context, requirements []types.JobRequirement) (*types.MatchReport, error) {
	report := &types.MatchReport{
		ByRequirement: make(map[string][]types.EvidenceMatch, len(requirements)),
	}
	if len(requirements) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	var failures int
	var firstErr error

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxConcurrency)

	for _, req := range requirements {
		g.Go(func() error {
			matches, err := m.matchOne(gCtx, req)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				if firstErr == nil {
					firstErr = err
				}
				m.logger.Warn("requirement retrieval failed",
					zap.String("requirement_id", req.ID),
					zap.String("skill", req.Skill),
					zap.Error(err),
				)
				return nil // partial failure does not abort the group
			}
			report.ByRequirement[req.ID] = matches
			return nil
		})
	}
	_ = g.Wait()

	if failures == len(requirements) {
		return nil, &TotalOutageError{Requirements: len(requirements), Cause: firstErr}
	}

	for _, req := range requirements {
		if len(report.Accepted(req.ID)) == 0 {
			report.Uncovered = append(report.Uncovered, req.ID)
		}
	}

	m.logger.Info("evidence matched",
		zap.Int("requirements", len(requirements)),
		zap.Int("accepted", report.AcceptedCount()),
		zap.Int("uncovered", len(report.Uncovered)),
		zap.Int("retrieval_failures", failures),
	)
	return report, nil
}

// matchOne runs one requirement's query, using the category as a tag filter
// hint: if the filtered query yields nothing, retry unfiltered.
func (m *Matcher) matchOne(ctx context.Context, req types.JobRequirement) ([]types.EvidenceMatch, error) {
	results, err := m.searcher.Search(ctx, req.Skill, m.topK, []string{req.Skill})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		if results, err = m.searcher.Search(ctx, req.Skill, m.topK, nil); err != nil {
			return nil, err
		}
	}

	matches := make([]types.EvidenceMatch, 0, len(results))
	for _, r := range results {
		matches = append(matches, types.EvidenceMatch{
			RequirementID: req.ID,
			EvidenceID:    r.Item.ID,
			Score:         r.Score,
			Accepted:      r.Score >= m.threshold,
		})
	}
	return matches, nil
}

// TotalOutageError indicates the retrieval engine was unreachable for every
// requirement. It is terminal for the run.
type TotalOutageError struct {
	Requirements int
	Cause        error
}

func (e *TotalOutageError) Error() string {
	return fmt.Sprintf("matching failed: retrieval unreachable for all %d requirements: %v", e.Requirements, e.Cause)
}

func (e *TotalOutageError) Unwrap() error {
	return e.Cause
}
