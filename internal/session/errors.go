package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/career-copilot/internal/types"
)

// NotFoundError indicates the session id is unknown to the store.
type NotFoundError struct {
	SessionID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %s not found", e.SessionID)
}

// InvalidTransitionError indicates a state change that the session state
// machine does not permit.
type InvalidTransitionError struct {
	SessionID uuid.UUID
	From      types.SessionState
	To        types.SessionState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("session %s: illegal transition %s -> %s", e.SessionID, e.From, e.To)
}

// InvalidPersonaError indicates a persona switch outside the allowed moves.
type InvalidPersonaError struct {
	SessionID uuid.UUID
	From      types.Persona
	To        types.Persona
}

func (e *InvalidPersonaError) Error() string {
	return fmt.Sprintf("session %s: illegal persona switch %s -> %s", e.SessionID, e.From, e.To)
}
