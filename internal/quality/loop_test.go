package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/jonathan/career-copilot/internal/drafting"
	"github.com/jonathan/career-copilot/internal/types"
)

// scriptedReviewer returns one critique per call, in order.
type scriptedReviewer struct {
	critiques []*types.Critique
	calls     int
}

func (r *scriptedReviewer) Review(ctx context.Context, draft *types.DraftDocument, requirements []types.JobRequirement, report *types.MatchReport) (*types.Critique, error) {
	if r.calls >= len(r.critiques) {
		return nil, errors.New("reviewer called more times than scripted")
	}
	c := r.critiques[r.calls]
	r.calls++
	return c, nil
}

// countingEditor bumps the version on every revision.
type countingEditor struct {
	calls int
	err   error
}

func (e *countingEditor) Synthesize(ctx context.Context, req drafting.Request) (*types.DraftDocument, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return &types.DraftDocument{Version: req.Previous.Version + 1}, nil
}

func passCritique() *types.Critique {
	return &types.Critique{Score: 0.9, Pass: true}
}

func failCritique(desc string) *types.Critique {
	return &types.Critique{
		Issues: []types.Issue{{Kind: types.KindTone, Description: desc, Severity: types.SeverityMajor}},
		Score:  0.5,
	}
}

func TestLoop_PassOnFirstCritique(t *testing.T) {
	reviewer := &scriptedReviewer{critiques: []*types.Critique{passCritique()}}
	editor := &countingEditor{}
	loop := NewLoop(editor, reviewer, 3, nil)

	outcome, err := loop.Run(context.Background(), drafting.Request{}, &types.DraftDocument{Version: 0}, Hooks{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !outcome.Converged {
		t.Error("passing critique should converge the loop")
	}
	if outcome.Iterations != 1 {
		t.Errorf("iterations = %d, want 1", outcome.Iterations)
	}
	if editor.calls != 0 {
		t.Errorf("a passing critique must not trigger another synthesis, got %d calls", editor.calls)
	}
	if outcome.Draft.Version != 0 {
		t.Errorf("draft version = %d, want the unrevised 0", outcome.Draft.Version)
	}
}

func TestLoop_ReviseThenPass(t *testing.T) {
	reviewer := &scriptedReviewer{critiques: []*types.Critique{
		failCritique("too stiff"),
		passCritique(),
	}}
	editor := &countingEditor{}
	loop := NewLoop(editor, reviewer, 3, nil)

	outcome, err := loop.Run(context.Background(), drafting.Request{}, &types.DraftDocument{Version: 0}, Hooks{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !outcome.Converged || outcome.Iterations != 2 {
		t.Errorf("outcome = converged %v after %d iterations, want converged after 2", outcome.Converged, outcome.Iterations)
	}
	if editor.calls != 1 {
		t.Errorf("expected exactly one revision, got %d", editor.calls)
	}
	if outcome.Draft.Version != 1 {
		t.Errorf("final draft version = %d, want 1", outcome.Draft.Version)
	}
}

func TestLoop_StagnationStopsEarly(t *testing.T) {
	// The same issue set twice in a row means revision is not helping.
	reviewer := &scriptedReviewer{critiques: []*types.Critique{
		failCritique("too stiff"),
		failCritique("too stiff"),
	}}
	editor := &countingEditor{}
	loop := NewLoop(editor, reviewer, 5, nil)

	outcome, err := loop.Run(context.Background(), drafting.Request{}, &types.DraftDocument{Version: 0}, Hooks{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !outcome.Stagnated {
		t.Error("identical consecutive issue sets should stagnate the loop")
	}
	if outcome.Converged {
		t.Error("stagnated loop must not report convergence")
	}
	if outcome.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", outcome.Iterations)
	}
	if editor.calls != 1 {
		t.Errorf("expected one revision before stagnation, got %d", editor.calls)
	}
}

func TestLoop_DifferentIssuesKeepIterating(t *testing.T) {
	reviewer := &scriptedReviewer{critiques: []*types.Critique{
		failCritique("too stiff"),
		failCritique("summary too long"),
		passCritique(),
	}}
	loop := NewLoop(&countingEditor{}, reviewer, 5, nil)

	outcome, err := loop.Run(context.Background(), drafting.Request{}, &types.DraftDocument{Version: 0}, Hooks{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Stagnated {
		t.Error("changing issue sets must not be treated as stagnation")
	}
	if !outcome.Converged || outcome.Iterations != 3 {
		t.Errorf("expected convergence on iteration 3, got converged %v after %d", outcome.Converged, outcome.Iterations)
	}
}

func TestLoop_IterationCeiling(t *testing.T) {
	reviewer := &scriptedReviewer{critiques: []*types.Critique{
		failCritique("issue one"),
		failCritique("issue two"),
		failCritique("issue three"),
	}}
	editor := &countingEditor{}
	loop := NewLoop(editor, reviewer, 3, nil)

	outcome, err := loop.Run(context.Background(), drafting.Request{}, &types.DraftDocument{Version: 0}, Hooks{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome.Converged || outcome.Stagnated {
		t.Error("ceiling exit should be neither convergence nor stagnation")
	}
	if outcome.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", outcome.Iterations)
	}
	// Only the first two failures trigger revision; the final critique
	// ships with the draft as its quality report.
	if editor.calls != 2 {
		t.Errorf("expected 2 revisions, got %d", editor.calls)
	}
	if outcome.Critique == nil || outcome.Critique.Pass {
		t.Error("ceiling outcome should carry the final failing critique")
	}
}

func TestLoop_HooksFire(t *testing.T) {
	reviewer := &scriptedReviewer{critiques: []*types.Critique{
		failCritique("too stiff"),
		passCritique(),
	}}
	loop := NewLoop(&countingEditor{}, reviewer, 3, nil)

	var reviewingIterations []int
	var revisedVersions []int
	hooks := Hooks{
		OnReviewing: func(ctx context.Context, iteration int) error {
			reviewingIterations = append(reviewingIterations, iteration)
			return nil
		},
		OnRevised: func(ctx context.Context, draft *types.DraftDocument) error {
			revisedVersions = append(revisedVersions, draft.Version)
			return nil
		},
	}

	if _, err := loop.Run(context.Background(), drafting.Request{}, &types.DraftDocument{Version: 0}, hooks); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(reviewingIterations) != 2 || reviewingIterations[0] != 1 || reviewingIterations[1] != 2 {
		t.Errorf("OnReviewing iterations = %v, want [1 2]", reviewingIterations)
	}
	if len(revisedVersions) != 1 || revisedVersions[0] != 1 {
		t.Errorf("OnRevised versions = %v, want [1]", revisedVersions)
	}
}

func TestLoop_HookErrorAborts(t *testing.T) {
	reviewer := &scriptedReviewer{critiques: []*types.Critique{passCritique()}}
	loop := NewLoop(&countingEditor{}, reviewer, 3, nil)

	wantErr := errors.New("persistence down")
	hooks := Hooks{
		OnReviewing: func(ctx context.Context, iteration int) error { return wantErr },
	}

	_, err := loop.Run(context.Background(), drafting.Request{}, &types.DraftDocument{Version: 0}, hooks)
	if !errors.Is(err, wantErr) {
		t.Fatalf("hook error should abort the loop, got %v", err)
	}
}

func TestLoop_ContextCancellation(t *testing.T) {
	reviewer := &scriptedReviewer{critiques: []*types.Critique{failCritique("x")}}
	loop := NewLoop(&countingEditor{}, reviewer, 3, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loop.Run(ctx, drafting.Request{}, &types.DraftDocument{Version: 0}, Hooks{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIssueSetKey_OrderInsensitive(t *testing.T) {
	a := []types.Issue{
		{RequirementID: "r1", Kind: types.KindTone, Description: "a", Severity: types.SeverityMinor},
		{RequirementID: "r2", Kind: types.KindLength, Description: "b", Severity: types.SeverityMajor},
	}
	b := []types.Issue{a[1], a[0]}

	if issueSetKey(a) != issueSetKey(b) {
		t.Error("issue order should not affect the stagnation fingerprint")
	}
	c := append([]types.Issue{}, a...)
	c[0].Description = "changed"
	if issueSetKey(a) == issueSetKey(c) {
		t.Error("changed issue content should change the fingerprint")
	}
}
