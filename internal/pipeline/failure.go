package pipeline

import (
	"context"
	"errors"

	"github.com/jonathan/career-copilot/internal/drafting"
	"github.com/jonathan/career-copilot/internal/extraction"
	"github.com/jonathan/career-copilot/internal/matching"
)

// FailureKind labels why a run ended without a final draft. It is recorded
// on the session so clients can distinguish input problems from outages.
type FailureKind string

const (
	FailureExtraction      FailureKind = "extraction_error"
	FailureMatching        FailureKind = "matching_error"
	FailureSynthesis       FailureKind = "synthesis_error"
	FailureExternalService FailureKind = "external_service_error"
	FailureCancelled       FailureKind = "cancelled"
)

// Classify maps a stage error to its failure kind. Caller cancellation wins
// over everything else so an aborted run is never misreported as an outage.
// A deadline is not cancellation: a stage timeout that survived the retry
// budget belongs to the stage that owns it, so typed stage errors are
// checked before any deadline in their wrap chain can be seen. The caller's
// own deadline is recognized in fail, where the run context is at hand.
func Classify(err error) FailureKind {
	if errors.Is(err, context.Canceled) {
		return FailureCancelled
	}

	var extractErr *extraction.ExtractionError
	if errors.As(err, &extractErr) {
		return FailureExtraction
	}
	var outageErr *matching.TotalOutageError
	if errors.As(err, &outageErr) {
		return FailureMatching
	}
	var noEvidenceErr *drafting.NoEvidenceError
	if errors.As(err, &noEvidenceErr) {
		return FailureSynthesis
	}
	var synthErr *drafting.SynthesisError
	if errors.As(err, &synthErr) {
		return FailureSynthesis
	}

	// Anything left is a model or embedding provider failure that survived
	// the retry budget.
	return FailureExternalService
}
