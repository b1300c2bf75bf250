// Package types provides type definitions for structured data used throughout the career-copilot system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "time"

// EvidenceItem is a single achievement or experience story from the user's
// personal archive, with its embedding. Items are immutable once stored; a
// changed record is replaced wholesale by re-ingestion, never edited in place.
type EvidenceItem struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Tags        []string  `json:"tags"`
	Embedding   []float32 `json:"embedding,omitempty"`
	ContentHash string    `json:"content_hash"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// HasTag reports whether the item carries the given tag (case-insensitive
// comparison is the caller's responsibility; tags are normalized at ingestion).
func (e *EvidenceItem) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// EvidenceMatch links a job requirement to an evidence item with a similarity
// score in [0,1]. Accepted is true iff the score met the match threshold.
type EvidenceMatch struct {
	RequirementID string  `json:"requirement_id"`
	EvidenceID    string  `json:"evidence_id"`
	Score         float64 `json:"score"`
	Accepted      bool    `json:"accepted"`
}

// MatchReport is the Evidence Matcher's output for one pipeline run:
// per-requirement ordered matches plus the requirements that ended up with no
// accepted evidence at all.
type MatchReport struct {
	ByRequirement map[string][]EvidenceMatch `json:"by_requirement"`
	Uncovered     []string                   `json:"uncovered"`
}

// AcceptedCount returns the total number of accepted matches across all
// requirements.
func (r *MatchReport) AcceptedCount() int {
	n := 0
	for _, matches := range r.ByRequirement {
		for _, m := range matches {
			if m.Accepted {
				n++
			}
		}
	}
	return n
}

// Accepted returns the accepted matches for a requirement, preserving order.
func (r *MatchReport) Accepted(requirementID string) []EvidenceMatch {
	var out []EvidenceMatch
	for _, m := range r.ByRequirement[requirementID] {
		if m.Accepted {
			out = append(out, m)
		}
	}
	return out
}

// IsUncovered reports whether a requirement has no accepted evidence.
func (r *MatchReport) IsUncovered(requirementID string) bool {
	for _, id := range r.Uncovered {
		if id == requirementID {
			return true
		}
	}
	return false
}
