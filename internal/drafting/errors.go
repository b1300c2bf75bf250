package drafting

import "fmt"

// NoEvidenceError indicates zero accepted matches across all requirements:
// there is nothing groundable to write from. Terminal for the run.
type NoEvidenceError struct {
	Requirements int
}

func (e *NoEvidenceError) Error() string {
	return fmt.Sprintf("synthesis failed: no accepted evidence for any of %d requirements", e.Requirements)
}

// SynthesisError indicates the synthesizer could not produce a usable draft
// from the model output. Terminal for the run.
type SynthesisError struct {
	Message string
	Cause   error
}

func (e *SynthesisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("synthesis failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("synthesis failed: %s", e.Message)
}

func (e *SynthesisError) Unwrap() error {
	return e.Cause
}
