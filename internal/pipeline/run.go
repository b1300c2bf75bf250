// Package pipeline orchestrates the tailoring stages end to end: requirement
// extraction, evidence matching, draft synthesis, and the quality loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/career-copilot/internal/drafting"
	"github.com/jonathan/career-copilot/internal/llm"
	"github.com/jonathan/career-copilot/internal/quality"
	"github.com/jonathan/career-copilot/internal/session"
	"github.com/jonathan/career-copilot/internal/types"
)

// Extractor turns raw posting text into structured requirements
type Extractor interface {
	Extract(ctx context.Context, postingText string) ([]types.JobRequirement, error)
}

// Matcher scores requirements against the evidence store
type Matcher interface {
	Match(ctx context.Context, requirements []types.JobRequirement) (*types.MatchReport, error)
}

// Synthesizer produces draft documents
type Synthesizer interface {
	Synthesize(ctx context.Context, req drafting.Request) (*types.DraftDocument, error)
}

// Refiner runs the critique and revision loop on an initial draft
type Refiner interface {
	Run(ctx context.Context, req drafting.Request, initial *types.DraftDocument, hooks quality.Hooks) (*quality.Outcome, error)
}

// SessionControl is the subset of the session store the orchestrator drives.
type SessionControl interface {
	Transition(ctx context.Context, id uuid.UUID, to types.SessionState) error
	SetIterationCount(ctx context.Context, id uuid.UUID, n int) error
	Complete(ctx context.Context, id uuid.UUID, iterations, finalVersion int) error
	Fail(ctx context.Context, id uuid.UUID, kind string) error
}

// EvidenceSource resolves evidence ids referenced by a match report.
type EvidenceSource interface {
	Get(id string) (types.EvidenceItem, bool)
}

// DraftSink persists draft versions as they are produced. May be nil.
type DraftSink interface {
	SaveDraft(ctx context.Context, sessionID uuid.UUID, draft *types.DraftDocument) error
}

// DraftSource loads previously persisted drafts so an interrupted quality
// loop can restart at its last version. Returns nil with no error when the
// session has no drafts. May be nil.
type DraftSource interface {
	GetLatestDraft(ctx context.Context, sessionID uuid.UUID) (*types.DraftDocument, error)
}

// ProgressEvent reports a stage boundary during a run.
type ProgressEvent struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// ProgressFunc is called as the run crosses stage boundaries.
type ProgressFunc func(event ProgressEvent)

// Timeouts bounds each stage. Zero means no per-stage deadline beyond the
// run context.
type Timeouts struct {
	Extract    time.Duration
	Match      time.Duration
	Synthesize time.Duration
	Review     time.Duration
}

// DefaultTimeouts returns the stage deadlines used in production.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Extract:    60 * time.Second,
		Match:      45 * time.Second,
		Synthesize: 120 * time.Second,
		Review:     90 * time.Second,
	}
}

// Result carries everything a run produced, including partial output from
// the last stage that ran when the run failed part way through.
type Result struct {
	SessionID    uuid.UUID
	Requirements []types.JobRequirement
	Report       *types.MatchReport
	Draft        *types.DraftDocument
	Critique     *types.Critique
	Quality      *types.QualityReport
	FailureKind  FailureKind
}

// Orchestrator wires the tailoring stages together and drives session state.
type Orchestrator struct {
	extractor   Extractor
	matcher     Matcher
	synthesizer Synthesizer
	refiner     Refiner
	sessions    SessionControl
	evidence    EvidenceSource
	drafts      DraftSink
	draftSource DraftSource
	retry       llm.RetryPolicy
	timeouts    Timeouts
	progress    ProgressFunc
	logger      *zap.Logger
}

// New creates an orchestrator. drafts may be nil to skip draft persistence.
func New(
	extractor Extractor,
	matcher Matcher,
	synthesizer Synthesizer,
	refiner Refiner,
	sessions SessionControl,
	evidence EvidenceSource,
	drafts DraftSink,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		extractor:   extractor,
		matcher:     matcher,
		synthesizer: synthesizer,
		refiner:     refiner,
		sessions:    sessions,
		evidence:    evidence,
		drafts:      drafts,
		retry:       llm.DefaultRetryPolicy(),
		timeouts:    DefaultTimeouts(),
		logger:      logger,
	}
}

// WithRetryPolicy overrides the transient-failure retry budget.
func (o *Orchestrator) WithRetryPolicy(p llm.RetryPolicy) *Orchestrator {
	o.retry = p
	return o
}

// WithTimeouts overrides the per-stage deadlines.
func (o *Orchestrator) WithTimeouts(t Timeouts) *Orchestrator {
	o.timeouts = t
	return o
}

// WithProgress registers a callback for stage boundary events.
func (o *Orchestrator) WithProgress(fn ProgressFunc) *Orchestrator {
	o.progress = fn
	return o
}

// WithDraftSource enables Resume to pick up persisted drafts.
func (o *Orchestrator) WithDraftSource(ds DraftSource) *Orchestrator {
	o.draftSource = ds
	return o
}

func (o *Orchestrator) emit(stage, message string) {
	if o.progress != nil {
		o.progress(ProgressEvent{Stage: stage, Message: message})
	}
}

// stageOrder ranks the non-terminal states so a rerun of an interrupted
// session can tell whether it already passed a stage.
var stageOrder = map[types.SessionState]int{
	types.StateCreated:    0,
	types.StateExtracting: 1,
	types.StateMatching:   2,
	types.StateDrafting:   3,
	types.StateReviewing:  4,
}

// advance moves the session into a stage. A session interrupted in or past
// that stage is tolerated as-is; its state catches up at the next stage the
// state machine permits.
func (o *Orchestrator) advance(ctx context.Context, id uuid.UUID, to types.SessionState) error {
	err := o.sessions.Transition(ctx, id, to)
	var invalid *session.InvalidTransitionError
	if errors.As(err, &invalid) && !invalid.From.Terminal() && stageOrder[invalid.From] >= stageOrder[to] {
		return nil
	}
	return err
}

// Run executes the full tailoring pipeline for a session that is in state
// created. When it returns a non-nil error, the session has already been
// moved to failed and the Result holds whatever the completed stages
// produced.
func (o *Orchestrator) Run(ctx context.Context, sessionID uuid.UUID, postingText string) (*Result, error) {
	result := &Result{SessionID: sessionID}
	log := o.logger.With(zap.String("session_id", sessionID.String()))

	// Stage 1: requirement extraction.
	if err := o.advance(ctx, sessionID, types.StateExtracting); err != nil {
		return result, err
	}
	o.emit("extracting", "extracting requirements from posting")
	requirements, err := o.extract(ctx, postingText)
	if err != nil {
		return result, o.fail(ctx, result, err, log)
	}
	result.Requirements = requirements
	log.Info("requirements extracted", zap.Int("count", len(requirements)))
	o.emit("extracted", fmt.Sprintf("extracted %d requirements", len(requirements)))

	// Stage 2: evidence matching.
	if err := o.advance(ctx, sessionID, types.StateMatching); err != nil {
		return result, err
	}
	o.emit("matching", "matching requirements against evidence")
	report, err := o.match(ctx, requirements)
	if err != nil {
		return result, o.fail(ctx, result, err, log)
	}
	result.Report = report
	log.Info("evidence matched",
		zap.Int("accepted", report.AcceptedCount()),
		zap.Int("uncovered", len(report.Uncovered)),
	)
	o.emit("matched", fmt.Sprintf("%d matches accepted, %d requirements uncovered",
		report.AcceptedCount(), len(report.Uncovered)))

	// Stage 3: initial synthesis.
	if err := o.advance(ctx, sessionID, types.StateDrafting); err != nil {
		return result, err
	}
	draftReq := drafting.Request{
		Requirements: requirements,
		Report:       report,
		Evidence:     o.collectEvidence(report),
	}
	initial, err := o.synthesize(ctx, draftReq)
	if err != nil {
		return result, o.fail(ctx, result, err, log)
	}
	result.Draft = initial
	if err := o.saveDraft(ctx, sessionID, initial); err != nil {
		log.Warn("draft persistence failed", zap.Error(err))
	}
	log.Info("initial draft synthesized", zap.Int("version", initial.Version))
	o.emit("drafted", fmt.Sprintf("draft v%d synthesized", initial.Version))

	// Stage 4: quality loop. Hooks keep session state and stored drafts in
	// step with the loop's progress.
	outcome, err := o.refine(ctx, draftReq, initial, o.loopHooks(sessionID, result, log))
	if err != nil {
		return result, o.fail(ctx, result, err, log)
	}
	return result, o.finish(ctx, sessionID, result, outcome, report, log)
}

// Resume continues an interrupted run. When the session has a persisted
// draft, extraction and matching are re-derived and the quality loop picks up
// at that draft's version instead of synthesizing a new version 0. Sessions
// without a persisted draft run from the start.
func (o *Orchestrator) Resume(ctx context.Context, sessionID uuid.UUID, postingText string) (*Result, error) {
	latest := o.latestDraft(ctx, sessionID)
	if latest == nil {
		return o.Run(ctx, sessionID, postingText)
	}

	result := &Result{SessionID: sessionID}
	log := o.logger.With(
		zap.String("session_id", sessionID.String()),
		zap.Int("resume_version", latest.Version),
	)
	o.emit("resuming", fmt.Sprintf("resuming from draft v%d", latest.Version))

	requirements, err := o.extract(ctx, postingText)
	if err != nil {
		return result, o.fail(ctx, result, err, log)
	}
	result.Requirements = requirements

	report, err := o.match(ctx, requirements)
	if err != nil {
		return result, o.fail(ctx, result, err, log)
	}
	result.Report = report

	draftReq := drafting.Request{
		Requirements: requirements,
		Report:       report,
		Evidence:     o.collectEvidence(report),
	}
	result.Draft = latest
	log.Info("quality loop resumed from persisted draft")

	outcome, err := o.refine(ctx, draftReq, latest, o.loopHooks(sessionID, result, log))
	if err != nil {
		return result, o.fail(ctx, result, err, log)
	}
	return result, o.finish(ctx, sessionID, result, outcome, report, log)
}

func (o *Orchestrator) latestDraft(ctx context.Context, sessionID uuid.UUID) *types.DraftDocument {
	if o.draftSource == nil {
		return nil
	}
	draft, err := o.draftSource.GetLatestDraft(ctx, sessionID)
	if err != nil {
		o.logger.Warn("failed to load persisted draft, running from the start",
			zap.String("session_id", sessionID.String()), zap.Error(err))
		return nil
	}
	return draft
}

func (o *Orchestrator) loopHooks(sessionID uuid.UUID, result *Result, log *zap.Logger) quality.Hooks {
	return quality.Hooks{
		OnReviewing: func(ctx context.Context, iteration int) error {
			if err := o.advance(ctx, sessionID, types.StateReviewing); err != nil {
				return err
			}
			if err := o.sessions.SetIterationCount(ctx, sessionID, iteration); err != nil {
				log.Warn("iteration count update failed", zap.Error(err))
			}
			o.emit("reviewing", fmt.Sprintf("critiquing draft (iteration %d)", iteration))
			return nil
		},
		OnRevised: func(ctx context.Context, draft *types.DraftDocument) error {
			if err := o.sessions.Transition(ctx, sessionID, types.StateDrafting); err != nil {
				return err
			}
			result.Draft = draft
			if err := o.saveDraft(ctx, sessionID, draft); err != nil {
				log.Warn("draft persistence failed", zap.Error(err))
			}
			o.emit("revised", fmt.Sprintf("draft revised to v%d", draft.Version))
			return nil
		},
	}
}

func (o *Orchestrator) finish(ctx context.Context, sessionID uuid.UUID, result *Result, outcome *quality.Outcome, report *types.MatchReport, log *zap.Logger) error {
	result.Draft = outcome.Draft
	result.Critique = outcome.Critique
	result.Quality = qualityReport(outcome, report)

	if err := o.sessions.Complete(ctx, sessionID, outcome.Iterations, outcome.Draft.Version); err != nil {
		return err
	}
	log.Info("run complete",
		zap.Int("iterations", outcome.Iterations),
		zap.Bool("converged", outcome.Converged),
		zap.Int("final_version", outcome.Draft.Version),
	)
	o.emit("done", fmt.Sprintf("run complete after %d iterations", outcome.Iterations))
	return nil
}

func (o *Orchestrator) extract(ctx context.Context, postingText string) ([]types.JobRequirement, error) {
	var out []types.JobRequirement
	err := o.retry.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := withStageTimeout(ctx, o.timeouts.Extract)
		defer cancel()
		var err error
		out, err = o.extractor.Extract(ctx, postingText)
		return err
	})
	return out, err
}

func (o *Orchestrator) match(ctx context.Context, requirements []types.JobRequirement) (*types.MatchReport, error) {
	var out *types.MatchReport
	err := o.retry.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := withStageTimeout(ctx, o.timeouts.Match)
		defer cancel()
		var err error
		out, err = o.matcher.Match(ctx, requirements)
		return err
	})
	return out, err
}

func (o *Orchestrator) synthesize(ctx context.Context, req drafting.Request) (*types.DraftDocument, error) {
	var out *types.DraftDocument
	err := o.retry.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := withStageTimeout(ctx, o.timeouts.Synthesize)
		defer cancel()
		var err error
		out, err = o.synthesizer.Synthesize(ctx, req)
		return err
	})
	return out, err
}

func (o *Orchestrator) refine(ctx context.Context, req drafting.Request, initial *types.DraftDocument, hooks quality.Hooks) (*quality.Outcome, error) {
	var out *quality.Outcome
	err := o.retry.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := withStageTimeout(ctx, o.timeouts.Review)
		defer cancel()
		var err error
		out, err = o.refiner.Run(ctx, req, initial, hooks)
		return err
	})
	return out, err
}

// collectEvidence resolves the accepted matches in a report to full items.
func (o *Orchestrator) collectEvidence(report *types.MatchReport) map[string]types.EvidenceItem {
	evidence := make(map[string]types.EvidenceItem)
	for _, matches := range report.ByRequirement {
		for _, m := range matches {
			if !m.Accepted {
				continue
			}
			if item, ok := o.evidence.Get(m.EvidenceID); ok {
				evidence[item.ID] = item
			}
		}
	}
	return evidence
}

func (o *Orchestrator) saveDraft(ctx context.Context, sessionID uuid.UUID, draft *types.DraftDocument) error {
	if o.drafts == nil {
		return nil
	}
	return o.drafts.SaveDraft(ctx, sessionID, draft)
}

// fail records the failure on the session and returns the classified error.
// Bookkeeping runs on a detached context so a cancelled run can still be
// marked failed.
func (o *Orchestrator) fail(ctx context.Context, result *Result, err error, log *zap.Logger) error {
	kind := Classify(err)
	// A deadline counts as cancellation only when it was the caller's own:
	// stage deadlines leave the run context live and keep their stage's kind.
	if kind == FailureExternalService && ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
		kind = FailureCancelled
	}
	result.FailureKind = kind
	log.Error("run failed", zap.String("failure_kind", string(kind)), zap.Error(err))
	o.emit("failed", string(kind))

	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if failErr := o.sessions.Fail(bgCtx, result.SessionID, string(kind)); failErr != nil {
		log.Error("failed to record session failure", zap.Error(failErr))
	}
	return fmt.Errorf("pipeline run failed (%s): %w", kind, err)
}

func withStageTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// qualityReport summarizes a finished loop for clients.
func qualityReport(outcome *quality.Outcome, report *types.MatchReport) *types.QualityReport {
	qr := &types.QualityReport{
		Converged:  outcome.Converged,
		Iterations: outcome.Iterations,
	}
	if outcome.Critique != nil {
		qr.Score = outcome.Critique.Score
		if !outcome.Critique.Pass {
			qr.UnresolvedIssues = outcome.Critique.Issues
		}
	}
	qr.UncoveredRequirements = append(qr.UncoveredRequirements, report.Uncovered...)
	return qr
}
