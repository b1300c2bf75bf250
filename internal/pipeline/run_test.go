package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/career-copilot/internal/drafting"
	"github.com/jonathan/career-copilot/internal/extraction"
	"github.com/jonathan/career-copilot/internal/llm"
	"github.com/jonathan/career-copilot/internal/matching"
	"github.com/jonathan/career-copilot/internal/quality"
	"github.com/jonathan/career-copilot/internal/session"
	"github.com/jonathan/career-copilot/internal/types"
)

type stubExtractor struct {
	requirements []types.JobRequirement
	errs         []error // one per call; nil entries succeed
	calls        int
}

func (s *stubExtractor) Extract(ctx context.Context, postingText string) ([]types.JobRequirement, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	return s.requirements, nil
}

type stubMatcher struct {
	report *types.MatchReport
	err    error
}

func (s *stubMatcher) Match(ctx context.Context, requirements []types.JobRequirement) (*types.MatchReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

type stubSynthesizer struct {
	draft *types.DraftDocument
	err   error
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, req drafting.Request) (*types.DraftDocument, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.draft, nil
}

type stubRefiner struct {
	outcome    *quality.Outcome
	err        error
	hooks      bool // fire hooks before returning
	gotInitial *types.DraftDocument
}

func (s *stubRefiner) Run(ctx context.Context, req drafting.Request, initial *types.DraftDocument, hooks quality.Hooks) (*quality.Outcome, error) {
	s.gotInitial = initial
	if s.hooks && hooks.OnReviewing != nil {
		if err := hooks.OnReviewing(ctx, 1); err != nil {
			return nil, err
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.outcome, nil
}

// fakeSessions records the state machine calls the orchestrator makes.
type fakeSessions struct {
	transitions []types.SessionState
	completed   bool
	iterations  int
	finalVer    int
	failedKind  string
}

func (f *fakeSessions) Transition(ctx context.Context, id uuid.UUID, to types.SessionState) error {
	f.transitions = append(f.transitions, to)
	return nil
}

func (f *fakeSessions) SetIterationCount(ctx context.Context, id uuid.UUID, n int) error {
	f.iterations = n
	return nil
}

func (f *fakeSessions) Complete(ctx context.Context, id uuid.UUID, iterations, finalVersion int) error {
	f.completed = true
	f.iterations = iterations
	f.finalVer = finalVersion
	return nil
}

func (f *fakeSessions) Fail(ctx context.Context, id uuid.UUID, kind string) error {
	f.failedKind = kind
	return nil
}

type mapEvidence map[string]types.EvidenceItem

func (m mapEvidence) Get(id string) (types.EvidenceItem, bool) {
	item, ok := m[id]
	return item, ok
}

type recordingSink struct {
	versions []int
}

func (r *recordingSink) SaveDraft(ctx context.Context, sessionID uuid.UUID, draft *types.DraftDocument) error {
	r.versions = append(r.versions, draft.Version)
	return nil
}

func fixtureReport() *types.MatchReport {
	return &types.MatchReport{
		ByRequirement: map[string][]types.EvidenceMatch{
			"req_001": {{RequirementID: "req_001", EvidenceID: "e1", Score: 0.9, Accepted: true}},
		},
		Uncovered: []string{"req_002"},
	}
}

func happyOrchestrator(sessions *fakeSessions, sink DraftSink) *Orchestrator {
	draft := &types.DraftDocument{Version: 0, CoveredRequirementIDs: []string{"req_001"}}
	return New(
		&stubExtractor{requirements: []types.JobRequirement{{ID: "req_001", Skill: "go"}}},
		&stubMatcher{report: fixtureReport()},
		&stubSynthesizer{draft: draft},
		&stubRefiner{outcome: &quality.Outcome{
			Draft:      &types.DraftDocument{Version: 1, CoveredRequirementIDs: []string{"req_001"}},
			Critique:   &types.Critique{Score: 0.9, Pass: true},
			Iterations: 2,
			Converged:  true,
		}},
		sessions,
		mapEvidence{"e1": {ID: "e1", Text: "evidence"}},
		sink,
		nil,
	).WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1})
}

func TestRun_HappyPath(t *testing.T) {
	sessions := &fakeSessions{}
	sink := &recordingSink{}
	orch := happyOrchestrator(sessions, sink)

	result, err := orch.Run(context.Background(), uuid.New(), "posting text")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	wantTransitions := []types.SessionState{
		types.StateExtracting, types.StateMatching, types.StateDrafting,
	}
	if len(sessions.transitions) != len(wantTransitions) {
		t.Fatalf("transitions = %v, want %v", sessions.transitions, wantTransitions)
	}
	for i, want := range wantTransitions {
		if sessions.transitions[i] != want {
			t.Errorf("transition %d = %s, want %s", i, sessions.transitions[i], want)
		}
	}
	if !sessions.completed {
		t.Error("session not completed")
	}
	if sessions.iterations != 2 || sessions.finalVer != 1 {
		t.Errorf("completion recorded iterations %d, version %d", sessions.iterations, sessions.finalVer)
	}

	if result.Draft == nil || result.Draft.Version != 1 {
		t.Errorf("result draft = %+v", result.Draft)
	}
	if result.Quality == nil || !result.Quality.Converged {
		t.Errorf("result quality = %+v", result.Quality)
	}
	if len(result.Quality.UncoveredRequirements) != 1 || result.Quality.UncoveredRequirements[0] != "req_002" {
		t.Errorf("quality uncovered = %v", result.Quality.UncoveredRequirements)
	}
	if len(result.Quality.UnresolvedIssues) != 0 {
		t.Errorf("passing critique should leave no unresolved issues")
	}
	// Only the initial draft went through the sink; the refiner stub fires
	// no OnRevised hook.
	if len(sink.versions) != 1 || sink.versions[0] != 0 {
		t.Errorf("sink saw versions %v, want [0]", sink.versions)
	}
}

func TestRun_ExtractionFailureClassified(t *testing.T) {
	sessions := &fakeSessions{}
	orch := New(
		&stubExtractor{errs: []error{&extraction.ExtractionError{Message: "posting text is empty"}}},
		&stubMatcher{}, &stubSynthesizer{}, &stubRefiner{},
		sessions, mapEvidence{}, nil, nil,
	).WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1})

	result, err := orch.Run(context.Background(), uuid.New(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if result.FailureKind != FailureExtraction {
		t.Errorf("failure kind = %s, want %s", result.FailureKind, FailureExtraction)
	}
	if sessions.failedKind != string(FailureExtraction) {
		t.Errorf("session failure kind = %s", sessions.failedKind)
	}
	if sessions.completed {
		t.Error("failed run must not complete the session")
	}
}

func TestRun_TransientExtractionRetried(t *testing.T) {
	extractor := &stubExtractor{
		requirements: []types.JobRequirement{{ID: "req_001", Skill: "go"}},
		errs: []error{
			&llm.ServiceError{Op: "generate", Model: "m", Cause: errors.New("rate limited")},
			nil,
		},
	}
	sessions := &fakeSessions{}
	draft := &types.DraftDocument{Version: 0}
	orch := New(
		extractor,
		&stubMatcher{report: fixtureReport()},
		&stubSynthesizer{draft: draft},
		&stubRefiner{outcome: &quality.Outcome{Draft: draft, Critique: &types.Critique{Pass: true}, Iterations: 1, Converged: true}},
		sessions, mapEvidence{}, nil, nil,
	).WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Base: 2})

	if _, err := orch.Run(context.Background(), uuid.New(), "posting"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if extractor.calls != 2 {
		t.Errorf("extractor called %d times, want 2", extractor.calls)
	}
	if sessions.failedKind != "" {
		t.Errorf("recovered run recorded failure %q", sessions.failedKind)
	}
}

func TestRun_MatchingOutageClassified(t *testing.T) {
	sessions := &fakeSessions{}
	orch := New(
		&stubExtractor{requirements: []types.JobRequirement{{ID: "req_001"}}},
		&stubMatcher{err: &matching.TotalOutageError{Requirements: 1, Cause: errors.New("down")}},
		&stubSynthesizer{}, &stubRefiner{},
		sessions, mapEvidence{}, nil, nil,
	).WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1})

	result, err := orch.Run(context.Background(), uuid.New(), "posting")
	if err == nil {
		t.Fatal("expected error")
	}
	if result.FailureKind != FailureMatching {
		t.Errorf("failure kind = %s, want %s", result.FailureKind, FailureMatching)
	}
	// Partial output from completed stages survives.
	if len(result.Requirements) != 1 {
		t.Errorf("extracted requirements lost from result")
	}
}

func TestRun_NoEvidenceClassifiedAsSynthesis(t *testing.T) {
	sessions := &fakeSessions{}
	orch := New(
		&stubExtractor{requirements: []types.JobRequirement{{ID: "req_001"}}},
		&stubMatcher{report: &types.MatchReport{ByRequirement: map[string][]types.EvidenceMatch{}}},
		&stubSynthesizer{err: &drafting.NoEvidenceError{Requirements: 1}},
		&stubRefiner{},
		sessions, mapEvidence{}, nil, nil,
	).WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1})

	result, err := orch.Run(context.Background(), uuid.New(), "posting")
	if err == nil {
		t.Fatal("expected error")
	}
	if result.FailureKind != FailureSynthesis {
		t.Errorf("failure kind = %s, want %s", result.FailureKind, FailureSynthesis)
	}
}

func TestRun_CancellationRecorded(t *testing.T) {
	sessions := &fakeSessions{}
	orch := New(
		&stubExtractor{errs: []error{context.Canceled}},
		&stubMatcher{}, &stubSynthesizer{}, &stubRefiner{},
		sessions, mapEvidence{}, nil, nil,
	).WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1})

	result, err := orch.Run(context.Background(), uuid.New(), "posting")
	if err == nil {
		t.Fatal("expected error")
	}
	if result.FailureKind != FailureCancelled {
		t.Errorf("failure kind = %s, want %s", result.FailureKind, FailureCancelled)
	}
	// The failed state is still recorded even though the run context died.
	if sessions.failedKind != string(FailureCancelled) {
		t.Errorf("session failure kind = %s", sessions.failedKind)
	}
}

func TestRun_ProgressEvents(t *testing.T) {
	sessions := &fakeSessions{}
	orch := happyOrchestrator(sessions, nil)

	var stages []string
	orch.WithProgress(func(event ProgressEvent) {
		stages = append(stages, event.Stage)
	})

	if _, err := orch.Run(context.Background(), uuid.New(), "posting"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []string{"extracting", "extracted", "matching", "matched", "drafted", "done"}
	if len(stages) != len(want) {
		t.Fatalf("stages = %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d = %s, want %s", i, stages[i], want[i])
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"extraction", &extraction.ExtractionError{Message: "empty"}, FailureExtraction},
		{"matching outage", &matching.TotalOutageError{Requirements: 2}, FailureMatching},
		{"no evidence", &drafting.NoEvidenceError{Requirements: 2}, FailureSynthesis},
		{"synthesis", &drafting.SynthesisError{Message: "bad output"}, FailureSynthesis},
		{"cancellation", context.Canceled, FailureCancelled},
		{"deadline", context.DeadlineExceeded, FailureExternalService},
		{"outage rooted in a stage deadline", &matching.TotalOutageError{
			Requirements: 2,
			Cause:        fmt.Errorf("embed query: %w", context.DeadlineExceeded),
		}, FailureMatching},
		{"model call hit a stage deadline", &llm.ServiceError{
			Op: "generate", Model: "m", Cause: context.DeadlineExceeded,
		}, FailureExternalService},
		{"model outage", &llm.ServiceError{Op: "generate", Model: "m", Cause: errors.New("503")}, FailureExternalService},
		{"unknown", errors.New("mystery"), FailureExternalService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQualityReport_FailingCritiqueKeepsIssues(t *testing.T) {
	outcome := &quality.Outcome{
		Critique: &types.Critique{
			Issues: []types.Issue{{Kind: types.KindTone, Description: "stiff", Severity: types.SeverityMajor}},
			Score:  0.5,
		},
		Iterations: 3,
	}
	qr := qualityReport(outcome, fixtureReport())
	if qr.Converged {
		t.Error("non-converged outcome reported converged")
	}
	if len(qr.UnresolvedIssues) != 1 {
		t.Errorf("unresolved issues = %v", qr.UnresolvedIssues)
	}
	if qr.Score != 0.5 || qr.Iterations != 3 {
		t.Errorf("report = %+v", qr)
	}
}

type stubDraftSource struct {
	draft *types.DraftDocument
	err   error
}

func (s *stubDraftSource) GetLatestDraft(ctx context.Context, sessionID uuid.UUID) (*types.DraftDocument, error) {
	return s.draft, s.err
}

func TestResume_PicksUpPersistedDraft(t *testing.T) {
	sessions := &fakeSessions{}
	persisted := &types.DraftDocument{Version: 2, CoveredRequirementIDs: []string{"req_001"}}
	refiner := &stubRefiner{outcome: &quality.Outcome{
		Draft:      &types.DraftDocument{Version: 3, CoveredRequirementIDs: []string{"req_001"}},
		Critique:   &types.Critique{Score: 0.9, Pass: true},
		Iterations: 1,
		Converged:  true,
	}}
	orch := New(
		&stubExtractor{requirements: []types.JobRequirement{{ID: "req_001", Skill: "go"}}},
		&stubMatcher{report: fixtureReport()},
		&stubSynthesizer{err: errors.New("synthesizer must not run on resume")},
		refiner,
		sessions,
		mapEvidence{"e1": {ID: "e1", Text: "evidence"}},
		nil,
		nil,
	).WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1}).WithDraftSource(&stubDraftSource{draft: persisted})

	result, err := orch.Resume(context.Background(), uuid.New(), "posting text")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if refiner.gotInitial != persisted {
		t.Errorf("loop started from %+v, want the persisted draft", refiner.gotInitial)
	}
	// Extraction and matching are re-derived without state transitions; the
	// loop hooks own session state from here.
	if len(sessions.transitions) != 0 {
		t.Errorf("unexpected transitions %v", sessions.transitions)
	}
	if !sessions.completed || sessions.finalVer != 3 {
		t.Errorf("completed = %v, final version %d, want version 3", sessions.completed, sessions.finalVer)
	}
	if result.Draft == nil || result.Draft.Version != 3 {
		t.Errorf("result draft = %+v", result.Draft)
	}
}

func TestResume_WithoutPersistedDraftRunsFromStart(t *testing.T) {
	sessions := &fakeSessions{}
	sink := &recordingSink{}
	orch := happyOrchestrator(sessions, sink).WithDraftSource(&stubDraftSource{})

	result, err := orch.Resume(context.Background(), uuid.New(), "posting text")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if len(sessions.transitions) == 0 || sessions.transitions[0] != types.StateExtracting {
		t.Errorf("full run transitions = %v", sessions.transitions)
	}
	if result.Draft == nil || result.Draft.Version != 1 {
		t.Errorf("result draft = %+v", result.Draft)
	}
}

func TestRun_ReviewingHookDrivesSessionState(t *testing.T) {
	sessions := &fakeSessions{}
	orch := New(
		&stubExtractor{requirements: []types.JobRequirement{{ID: "req_001", Skill: "go"}}},
		&stubMatcher{report: fixtureReport()},
		&stubSynthesizer{draft: &types.DraftDocument{Version: 0, CoveredRequirementIDs: []string{"req_001"}}},
		&stubRefiner{hooks: true, outcome: &quality.Outcome{
			Draft:      &types.DraftDocument{Version: 0, CoveredRequirementIDs: []string{"req_001"}},
			Critique:   &types.Critique{Score: 0.9, Pass: true},
			Iterations: 1,
			Converged:  true,
		}},
		sessions,
		mapEvidence{"e1": {ID: "e1", Text: "evidence"}},
		nil,
		nil,
	).WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1})

	var stages []string
	orch.WithProgress(func(event ProgressEvent) {
		stages = append(stages, event.Stage)
	})

	if _, err := orch.Run(context.Background(), uuid.New(), "posting"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	last := sessions.transitions[len(sessions.transitions)-1]
	if last != types.StateReviewing {
		t.Errorf("last transition = %s, want reviewing", last)
	}
	found := false
	for _, s := range stages {
		if s == "reviewing" {
			found = true
		}
	}
	if !found {
		t.Errorf("no reviewing stage emitted: %v", stages)
	}
}

// A run interrupted before any draft was persisted leaves the session in a
// mid-pipeline state. Resuming it must rerun from the start instead of
// wedging on an illegal transition.
func TestResume_PreDraftInterruptionRerunsFromStart(t *testing.T) {
	store := session.NewStore(nil, 0, nil)
	ctx := context.Background()

	for _, interruptedAt := range []types.SessionState{
		types.StateExtracting, types.StateMatching, types.StateDrafting,
	} {
		t.Run(string(interruptedAt), func(t *testing.T) {
			sess, err := store.Create(ctx, "job-1", "")
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			for _, step := range []types.SessionState{
				types.StateExtracting, types.StateMatching, types.StateDrafting,
			} {
				if err := store.Transition(ctx, sess.ID, step); err != nil {
					t.Fatalf("Transition to %s failed: %v", step, err)
				}
				if step == interruptedAt {
					break
				}
			}

			orch := New(
				&stubExtractor{requirements: []types.JobRequirement{{ID: "req_001", Skill: "go"}}},
				&stubMatcher{report: fixtureReport()},
				&stubSynthesizer{draft: &types.DraftDocument{Version: 0, CoveredRequirementIDs: []string{"req_001"}}},
				&stubRefiner{hooks: true, outcome: &quality.Outcome{
					Draft:      &types.DraftDocument{Version: 0, CoveredRequirementIDs: []string{"req_001"}},
					Critique:   &types.Critique{Score: 0.9, Pass: true},
					Iterations: 1,
					Converged:  true,
				}},
				store,
				mapEvidence{"e1": {ID: "e1", Text: "evidence"}},
				nil,
				nil,
			).WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1}).WithDraftSource(&stubDraftSource{})

			if _, err := orch.Resume(ctx, sess.ID, "posting text"); err != nil {
				t.Fatalf("Resume failed: %v", err)
			}
			final, err := store.Get(sess.ID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if final.State != types.StateDone {
				t.Errorf("session state = %s, want done", final.State)
			}
		})
	}
}

func TestRun_StageDeadlineKeepsStageKind(t *testing.T) {
	sessions := &fakeSessions{}
	orch := New(
		&stubExtractor{requirements: []types.JobRequirement{{ID: "req_001", Skill: "go"}}},
		&stubMatcher{err: &matching.TotalOutageError{
			Requirements: 1,
			Cause:        fmt.Errorf("embed query: %w", context.DeadlineExceeded),
		}},
		&stubSynthesizer{},
		&stubRefiner{},
		sessions,
		mapEvidence{},
		nil,
		nil,
	).WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1})

	_, err := orch.Run(context.Background(), uuid.New(), "posting")
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	if sessions.failedKind != string(FailureMatching) {
		t.Errorf("failure kind = %s, want %s", sessions.failedKind, FailureMatching)
	}
}

func TestRun_CallerDeadlineRecordedAsCancelled(t *testing.T) {
	sessions := &fakeSessions{}
	orch := New(
		&stubExtractor{errs: []error{context.DeadlineExceeded}},
		&stubMatcher{},
		&stubSynthesizer{},
		&stubRefiner{},
		sessions,
		mapEvidence{},
		nil,
		nil,
	).WithRetryPolicy(llm.RetryPolicy{MaxAttempts: 1})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := orch.Run(ctx, uuid.New(), "posting")
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	if sessions.failedKind != string(FailureCancelled) {
		t.Errorf("failure kind = %s, want %s", sessions.failedKind, FailureCancelled)
	}
}
