package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/career-copilot/internal/types"
)

// SaveDraft stores one draft version for a session. Versions are immutable;
// re-saving the same version overwrites it, which only happens when a run is
// resumed and replays its last step.
func (db *DB) SaveDraft(ctx context.Context, sessionID uuid.UUID, draft *types.DraftDocument) error {
	content, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO drafts (session_id, version, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id, version) DO UPDATE SET content = $3, created_at = NOW()`,
		sessionID, draft.Version, content,
	)
	if err != nil {
		return fmt.Errorf("failed to save draft v%d: %w", draft.Version, err)
	}
	return nil
}

// GetDraft retrieves a specific draft version, or nil if it does not exist
func (db *DB) GetDraft(ctx context.Context, sessionID uuid.UUID, version int) (*types.DraftDocument, error) {
	var content []byte
	err := db.pool.QueryRow(ctx,
		`SELECT content FROM drafts WHERE session_id = $1 AND version = $2`,
		sessionID, version,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get draft v%d: %w", version, err)
	}

	var draft types.DraftDocument
	if err := json.Unmarshal(content, &draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft v%d: %w", version, err)
	}
	return &draft, nil
}

// GetLatestDraft retrieves the highest-version draft for a session, or nil
// if the session has no drafts yet
func (db *DB) GetLatestDraft(ctx context.Context, sessionID uuid.UUID) (*types.DraftDocument, error) {
	var content []byte
	err := db.pool.QueryRow(ctx,
		`SELECT content FROM drafts WHERE session_id = $1 ORDER BY version DESC LIMIT 1`,
		sessionID,
	).Scan(&content)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest draft: %w", err)
	}

	var draft types.DraftDocument
	if err := json.Unmarshal(content, &draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	return &draft, nil
}

// ListDraftVersions returns the stored versions for a session in ascending order
func (db *DB) ListDraftVersions(ctx context.Context, sessionID uuid.UUID) ([]int, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT version FROM drafts WHERE session_id = $1 ORDER BY version ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list draft versions: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan draft version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, nil
}
