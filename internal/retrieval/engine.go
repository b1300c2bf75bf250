// Package retrieval implements semantic search over the evidence store.
package retrieval

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/jonathan/career-copilot/internal/evidence"
	"github.com/jonathan/career-copilot/internal/llm"
	"github.com/jonathan/career-copilot/internal/types"
)

// DefaultEmbedDeadline bounds query embedding computation. Copilot callers
// typically configure something much tighter.
const DefaultEmbedDeadline = 10 * time.Second

// ScoredItem is one search result: an evidence item and its similarity score
// in [0,1].
type ScoredItem struct {
	Item  types.EvidenceItem `json:"item"`
	Score float64            `json:"score"`
}

// Engine ranks evidence items against a query by cosine similarity of their
// embeddings. It is safe for concurrent use; reads observe a consistent store
// snapshot even while ingestion runs.
type Engine struct {
	store         *evidence.Store
	embedder      llm.Embedder
	embedDeadline time.Duration
}

// NewEngine creates a search engine over store. embedDeadline bounds query
// embedding; zero means DefaultEmbedDeadline.
func NewEngine(store *evidence.Store, embedder llm.Embedder, embedDeadline time.Duration) *Engine {
	if embedDeadline <= 0 {
		embedDeadline = DefaultEmbedDeadline
	}
	return &Engine{store: store, embedder: embedder, embedDeadline: embedDeadline}
}

// Search returns at most topK items ranked by similarity to query, descending.
// Ties are broken most-recently-ingested first so the order is deterministic
// for an unchanged store. If filterTags is non-empty, only items carrying at
// least one of the tags are considered. Embedding overrun yields a
// *TimeoutError (transient).
func (e *Engine) Search(ctx context.Context, query string, topK int, filterTags []string) ([]ScoredItem, error) {
	if topK <= 0 {
		return nil, nil
	}

	start := time.Now()
	embedCtx, cancel := context.WithTimeout(ctx, e.embedDeadline)
	defer cancel()

	queryVec, err := e.embedder.EmbedText(embedCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &TimeoutError{Query: query, Elapsed: time.Since(start)}
		}
		return nil, err
	}

	items := e.store.Snapshot()
	scored := make([]ScoredItem, 0, len(items))
	for _, item := range items {
		if len(filterTags) > 0 && !hasAnyTag(&item, filterTags) {
			continue
		}
		scored = append(scored, ScoredItem{
			Item:  item,
			Score: similarity(queryVec, item.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Item.IngestedAt.After(scored[j].Item.IngestedAt)
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// similarity maps cosine similarity from [-1,1] into [0,1]. Mismatched or
// empty vectors score zero.
func similarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	score := (cos + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func hasAnyTag(item *types.EvidenceItem, tags []string) bool {
	for _, t := range tags {
		if item.HasTag(t) {
			return true
		}
	}
	return false
}
