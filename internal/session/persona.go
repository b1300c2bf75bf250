package session

import (
	"sort"

	"github.com/jonathan/career-copilot/internal/types"
)

// personaTransitions encodes the allowed persona switches. The strict
// interviewer is only reachable through the friendly one, and both
// interviewer personas can drop back to the candidate default.
var personaTransitions = map[types.Persona][]types.Persona{
	types.PersonaCandidate:           {types.PersonaInterviewerFriendly},
	types.PersonaInterviewerFriendly: {types.PersonaInterviewerStrict, types.PersonaCandidate},
	types.PersonaInterviewerStrict:   {types.PersonaCandidate},
}

// PersonaTransitionAllowed reports whether a session may switch from one
// persona to another. Switching to the current persona is a no-op and
// always allowed.
func PersonaTransitionAllowed(from, to types.Persona) bool {
	if from == to {
		return true
	}
	for _, next := range personaTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PersonaOptions returns the personas reachable from the given one, sorted
// for stable presentation.
func PersonaOptions(from types.Persona) []types.Persona {
	opts := append([]types.Persona(nil), personaTransitions[from]...)
	sort.Slice(opts, func(i, j int) bool { return opts[i] < opts[j] })
	return opts
}
