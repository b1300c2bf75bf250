package types

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a tailoring session.
type SessionState string

// Session lifecycle states. done and failed are terminal.
const (
	StateCreated    SessionState = "created"
	StateExtracting SessionState = "extracting"
	StateMatching   SessionState = "matching"
	StateDrafting   SessionState = "drafting"
	StateReviewing  SessionState = "reviewing"
	StateDone       SessionState = "done"
	StateFailed     SessionState = "failed"
)

// Terminal reports whether the state permits no further transitions.
func (s SessionState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Persona is the dialogue persona attached to a session for the mock-interview
// surface. It is a closed tagged set; transitions are validated by
// session.Store, never by runtime type switching.
type Persona string

// Personas. The candidate persona is the default for tailoring sessions.
const (
	PersonaCandidate           Persona = "candidate"
	PersonaInterviewerFriendly Persona = "interviewer-friendly"
	PersonaInterviewerStrict   Persona = "interviewer-strict"
)

// Valid reports whether the persona is one of the known values.
func (p Persona) Valid() bool {
	switch p {
	case PersonaCandidate, PersonaInterviewerFriendly, PersonaInterviewerStrict:
		return true
	}
	return false
}

// Session is the per-run state shared by the tailoring pipeline and the
// interview copilot. It is owned exclusively by the orchestrator; the copilot
// reads it but never mutates it.
type Session struct {
	ID                uuid.UUID    `json:"id"`
	JobID             string       `json:"job_id"`
	ResumeID          string       `json:"resume_id"`
	State             SessionState `json:"state"`
	Persona           Persona      `json:"persona"`
	IterationCount    int          `json:"iteration_count"`
	FinalDraftVersion *int         `json:"final_draft_version,omitempty"`
	FailureKind       string       `json:"failure_kind,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}
