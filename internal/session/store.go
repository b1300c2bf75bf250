// Package session provides the keyed store of tailoring sessions shared by
// the pipeline orchestrator and the interview copilot. State is never reached
// through ambient globals: callers hold a *Store and pass session ids.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/career-copilot/internal/types"
)

// DefaultRetention is how long terminal sessions stay readable before the
// sweep removes them.
const DefaultRetention = 24 * time.Hour

// legalTransitions encodes the session state machine. failed is reachable
// from every non-terminal state and is therefore handled separately.
var legalTransitions = map[types.SessionState][]types.SessionState{
	types.StateCreated:    {types.StateExtracting},
	types.StateExtracting: {types.StateMatching},
	types.StateMatching:   {types.StateDrafting},
	types.StateDrafting:   {types.StateReviewing},
	types.StateReviewing:  {types.StateDrafting, types.StateDone},
}

// Persister mirrors session state to durable storage so an interrupted run
// can resume after a process restart. *db.DB satisfies it.
type Persister interface {
	SaveSession(ctx context.Context, s *types.Session) error
}

// Store holds sessions keyed by id. Transitions for one session are
// serialized by a per-session lock; distinct sessions are fully independent.
type Store struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*entry
	persister Persister
	retention time.Duration
	logger    *zap.Logger
}

type entry struct {
	mu sync.Mutex
	s  types.Session
}

// NewStore creates a session store. persister may be nil (memory only);
// non-positive retention falls back to the default.
func NewStore(persister Persister, retention time.Duration, logger *zap.Logger) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sessions:  make(map[uuid.UUID]*entry),
		persister: persister,
		retention: retention,
		logger:    logger,
	}
}

// Create registers a new session in state created with the candidate persona.
func (st *Store) Create(ctx context.Context, jobID, resumeID string) (types.Session, error) {
	s := types.Session{
		ID:        uuid.New(),
		JobID:     jobID,
		ResumeID:  resumeID,
		State:     types.StateCreated,
		Persona:   types.PersonaCandidate,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	st.mu.Lock()
	st.sessions[s.ID] = &entry{s: s}
	st.mu.Unlock()

	if err := st.persist(ctx, &s); err != nil {
		return s, err
	}
	st.logger.Info("session created",
		zap.String("session_id", s.ID.String()),
		zap.String("job_id", jobID),
	)
	return s, nil
}

// Restore loads a previously persisted session into the store, e.g. after a
// process restart. An existing in-memory session with the same id is
// overwritten.
func (st *Store) Restore(s types.Session) {
	st.mu.Lock()
	st.sessions[s.ID] = &entry{s: s}
	st.mu.Unlock()
}

// Get returns a copy of the session. Callers never get a pointer into the
// store, so reads are safe while the owner mutates.
func (st *Store) Get(id uuid.UUID) (types.Session, error) {
	e, err := st.entry(id)
	if err != nil {
		return types.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s, nil
}

// Transition moves the session to a new state, validating the move against
// the state machine. Transitions into failed must go through Fail.
func (st *Store) Transition(ctx context.Context, id uuid.UUID, to types.SessionState) error {
	return st.update(ctx, id, func(s *types.Session) error {
		if !transitionAllowed(s.State, to) {
			return &InvalidTransitionError{SessionID: id, From: s.State, To: to}
		}
		s.State = to
		return nil
	})
}

// SetIterationCount records the quality-loop iteration count.
func (st *Store) SetIterationCount(ctx context.Context, id uuid.UUID, n int) error {
	return st.update(ctx, id, func(s *types.Session) error {
		s.IterationCount = n
		return nil
	})
}

// SetPersona switches the session's dialogue persona, validating the move
// against the persona transition rules.
func (st *Store) SetPersona(ctx context.Context, id uuid.UUID, p types.Persona) error {
	return st.update(ctx, id, func(s *types.Session) error {
		if !PersonaTransitionAllowed(s.Persona, p) {
			return &InvalidPersonaError{SessionID: id, From: s.Persona, To: p}
		}
		s.Persona = p
		return nil
	})
}

// Complete marks the session done and records the final draft version.
func (st *Store) Complete(ctx context.Context, id uuid.UUID, iterations, finalVersion int) error {
	return st.update(ctx, id, func(s *types.Session) error {
		if !transitionAllowed(s.State, types.StateDone) {
			return &InvalidTransitionError{SessionID: id, From: s.State, To: types.StateDone}
		}
		v := finalVersion
		s.State = types.StateDone
		s.IterationCount = iterations
		s.FinalDraftVersion = &v
		return nil
	})
}

// Fail marks the session failed with the given failure kind. Failing an
// already-terminal session is rejected.
func (st *Store) Fail(ctx context.Context, id uuid.UUID, kind string) error {
	return st.update(ctx, id, func(s *types.Session) error {
		if s.State.Terminal() {
			return &InvalidTransitionError{SessionID: id, From: s.State, To: types.StateFailed}
		}
		s.State = types.StateFailed
		s.FailureKind = kind
		return nil
	})
}

// SweepExpired removes terminal sessions older than the retention window and
// returns how many were removed.
func (st *Store) SweepExpired(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, e := range st.sessions {
		e.mu.Lock()
		expired := e.s.State.Terminal() && now.Sub(e.s.UpdatedAt) > st.retention
		e.mu.Unlock()
		if expired {
			delete(st.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		st.logger.Info("expired sessions swept", zap.Int("removed", removed))
	}
	return removed
}

// List returns copies of all sessions, newest first.
func (st *Store) List() []types.Session {
	st.mu.RLock()
	entries := make([]*entry, 0, len(st.sessions))
	for _, e := range st.sessions {
		entries = append(entries, e)
	}
	st.mu.RUnlock()

	out := make([]types.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.s)
		e.mu.Unlock()
	}
	sortSessions(out)
	return out
}

func (st *Store) entry(id uuid.UUID) (*entry, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.sessions[id]
	if !ok {
		return nil, &NotFoundError{SessionID: id}
	}
	return e, nil
}

// update applies fn under the per-session lock and persists the result.
func (st *Store) update(ctx context.Context, id uuid.UUID, fn func(*types.Session) error) error {
	e, err := st.entry(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if err := fn(&e.s); err != nil {
		e.mu.Unlock()
		return err
	}
	e.s.UpdatedAt = time.Now()
	snapshot := e.s
	e.mu.Unlock()

	return st.persist(ctx, &snapshot)
}

func (st *Store) persist(ctx context.Context, s *types.Session) error {
	if st.persister == nil {
		return nil
	}
	if err := st.persister.SaveSession(ctx, s); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", s.ID, err)
	}
	return nil
}

func sortSessions(sessions []types.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID.String() < sessions[j].ID.String()
	})
}

func transitionAllowed(from, to types.SessionState) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
