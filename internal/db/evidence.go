package db

import (
	"context"
	"fmt"

	"github.com/jonathan/career-copilot/internal/types"
)

// SaveEvidence upserts evidence items with their embeddings so the in-memory
// store can be warmed on startup without re-embedding unchanged text.
func (db *DB) SaveEvidence(ctx context.Context, items []types.EvidenceItem) error {
	for _, item := range items {
		_, err := db.pool.Exec(ctx,
			`INSERT INTO evidence (id, text_content, tags, embedding, content_hash, ingested_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET
				text_content = $2, tags = $3, embedding = $4, content_hash = $5, ingested_at = $6`,
			item.ID, item.Text, item.Tags, item.Embedding, item.ContentHash, item.IngestedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save evidence %s: %w", item.ID, err)
		}
	}
	return nil
}

// LoadEvidence retrieves all stored evidence items
func (db *DB) LoadEvidence(ctx context.Context) ([]types.EvidenceItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, text_content, tags, embedding, content_hash, ingested_at
		 FROM evidence ORDER BY ingested_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence: %w", err)
	}
	defer rows.Close()

	var items []types.EvidenceItem
	for rows.Next() {
		var item types.EvidenceItem
		if err := rows.Scan(&item.ID, &item.Text, &item.Tags, &item.Embedding, &item.ContentHash, &item.IngestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		items = append(items, item)
	}
	return items, nil
}

// DeleteEvidence removes an evidence item by ID
func (db *DB) DeleteEvidence(ctx context.Context, id string) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM evidence WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete evidence: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("evidence not found: %s", id)
	}
	return nil
}
