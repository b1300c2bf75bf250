package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/career-copilot/internal/types"
)

// SaveSession upserts a session row. The in-memory store is the source of
// truth; this mirror exists so runs survive a process restart.
func (db *DB) SaveSession(ctx context.Context, s *types.Session) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO sessions (id, job_id, resume_id, state, persona, iteration_count, final_draft_version, failure_kind, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			state = $4, persona = $5, iteration_count = $6,
			final_draft_version = $7, failure_kind = $8, updated_at = $10`,
		s.ID, s.JobID, s.ResumeID, string(s.State), string(s.Persona),
		s.IterationCount, s.FinalDraftVersion, s.FailureKind, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID, or nil if it does not exist
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*types.Session, error) {
	var s types.Session
	var state, persona string
	err := db.pool.QueryRow(ctx,
		`SELECT id, job_id, resume_id, state, persona, iteration_count, final_draft_version, failure_kind, created_at, updated_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.JobID, &s.ResumeID, &state, &persona,
		&s.IterationCount, &s.FinalDraftVersion, &s.FailureKind, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	s.State = types.SessionState(state)
	s.Persona = types.Persona(persona)
	return &s, nil
}

// ListSessions retrieves recent sessions, newest first
func (db *DB) ListSessions(ctx context.Context, limit int) ([]types.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, job_id, resume_id, state, persona, iteration_count, final_draft_version, failure_kind, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		var s types.Session
		var state, persona string
		if err := rows.Scan(&s.ID, &s.JobID, &s.ResumeID, &state, &persona,
			&s.IterationCount, &s.FinalDraftVersion, &s.FailureKind, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.State = types.SessionState(state)
		s.Persona = types.Persona(persona)
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// DeleteSession removes a session and its drafts (via cascade)
func (db *DB) DeleteSession(ctx context.Context, id uuid.UUID) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}
