package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/career-copilot/internal/llm"
	"github.com/jonathan/career-copilot/internal/types"
)

// Record is a user-authored achievement or story submitted for ingestion,
// before embedding.
type Record struct {
	ID   string   `json:"id"`
	Text string   `json:"text"`
	Tags []string `json:"tags"`
}

// IngestStats summarizes one ingestion pass.
type IngestStats struct {
	Total     int
	Embedded  int
	Unchanged int
}

// Ingester rebuilds the store from user records, computing embeddings only
// for records whose content changed since the last pass.
type Ingester struct {
	store    *Store
	embedder llm.Embedder
	logger   *zap.Logger
}

// NewIngester creates an ingester writing into store.
func NewIngester(store *Store, embedder llm.Embedder, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{store: store, embedder: embedder, logger: logger}
}

// Ingest replaces the store contents with the given records. Records whose
// content hash matches the currently stored item keep their embedding and
// ingestion timestamp; everything else is re-embedded. The store is swapped
// once, at the end, so concurrent readers keep a consistent snapshot
// throughout.
func (ing *Ingester) Ingest(ctx context.Context, records []Record) (IngestStats, error) {
	stats := IngestStats{Total: len(records)}
	items := make([]types.EvidenceItem, 0, len(records))

	for _, rec := range records {
		if strings.TrimSpace(rec.Text) == "" {
			return stats, &IngestError{RecordID: rec.ID, Message: "record text is empty"}
		}
		if rec.ID == "" {
			return stats, &IngestError{Message: "record id is required"}
		}

		tags := normalizeTags(rec.Tags)
		hash := ContentHash(rec.Text, tags)

		if existing, ok := ing.store.Get(rec.ID); ok && existing.ContentHash == hash {
			items = append(items, existing)
			stats.Unchanged++
			continue
		}

		embedding, err := ing.embedder.EmbedText(ctx, rec.Text)
		if err != nil {
			return stats, &IngestError{RecordID: rec.ID, Message: "embedding failed", Cause: err}
		}

		items = append(items, types.EvidenceItem{
			ID:          rec.ID,
			Text:        rec.Text,
			Tags:        tags,
			Embedding:   embedding,
			ContentHash: hash,
			IngestedAt:  now(),
		})
		stats.Embedded++
	}

	ing.store.Replace(items)
	ing.logger.Info("evidence ingested",
		zap.Int("total", stats.Total),
		zap.Int("embedded", stats.Embedded),
		zap.Int("unchanged", stats.Unchanged),
	)
	return stats, nil
}

// ContentHash returns the hash that decides whether a record needs
// re-embedding.
func ContentHash(text string, tags []string) string {
	h := sha256.New()
	h.Write([]byte(text))
	for _, t := range tags {
		h.Write([]byte{0})
		h.Write([]byte(t))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeTags lowercases, trims, dedupes, and sorts tags.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		norm := strings.ToLower(strings.TrimSpace(t))
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	sort.Strings(out)
	return out
}

// IngestError reports a failed ingestion pass. The store is left untouched.
type IngestError struct {
	RecordID string
	Message  string
	Cause    error
}

func (e *IngestError) Error() string {
	msg := fmt.Sprintf("ingest error: %s", e.Message)
	if e.RecordID != "" {
		msg = fmt.Sprintf("ingest error for record %s: %s", e.RecordID, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *IngestError) Unwrap() error {
	return e.Cause
}
