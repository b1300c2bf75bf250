package extraction

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/career-copilot/internal/types"
)

// skillSynonyms maps common alternate phrasings onto one canonical label, so
// repeated phrasing in a posting collapses into a single requirement.
var skillSynonyms = map[string]string{
	"golang":               "go",
	"postgres":             "postgresql",
	"js":                   "javascript",
	"k8s":                  "kubernetes",
	"ci":                   "ci/cd",
	"cicd":                 "ci/cd",
	"communication skills": "communication",
	"people management":    "management",
}

// Normalize dedupes near-identical skill labels (case/synonym-insensitive),
// keeping the maximum weight among duplicates so repeated phrasing does not
// inflate importance. The result is ordered by weight descending, ties broken
// by first appearance in the source text.
func Normalize(raw []rawRequirement, postingText string) []types.JobRequirement {
	lowerText := strings.ToLower(postingText)

	type bucket struct {
		req        types.JobRequirement
		firstIndex int
	}
	byLabel := make(map[string]*bucket)
	order := make([]string, 0, len(raw))

	for i, r := range raw {
		label := CanonicalLabel(r.Skill)
		if label == "" || r.Weight <= 0 {
			continue
		}

		span := locateSpan(lowerText, r.Quote, label)

		if b, ok := byLabel[label]; ok {
			if r.Weight > b.req.Weight {
				b.req.Weight = r.Weight
			}
			continue
		}

		byLabel[label] = &bucket{
			req: types.JobRequirement{
				ID:         fmt.Sprintf("req_%03d", i+1),
				Skill:      label,
				Category:   normalizeCategory(r.Category),
				Weight:     r.Weight,
				SourceSpan: span,
			},
			firstIndex: firstAppearance(span, i),
		}
		order = append(order, label)
	}

	out := make([]types.JobRequirement, 0, len(byLabel))
	for _, label := range order {
		out = append(out, byLabel[label].req)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return byLabel[out[i].Skill].firstIndex < byLabel[out[j].Skill].firstIndex
	})

	// Reassign ids in final order so ids are stable for a given posting.
	for i := range out {
		out[i].ID = fmt.Sprintf("req_%03d", i+1)
	}
	return out
}

// CanonicalLabel lowercases, trims, and resolves synonyms for a skill label.
func CanonicalLabel(skill string) string {
	label := strings.ToLower(strings.TrimSpace(skill))
	label = strings.Join(strings.Fields(label), " ")
	if canonical, ok := skillSynonyms[label]; ok {
		return canonical
	}
	return label
}

// normalizeCategory maps arbitrary model output onto the closed category set.
func normalizeCategory(category string) types.RequirementCategory {
	c := types.RequirementCategory(strings.ToLower(strings.TrimSpace(category)))
	if c.Valid() {
		return c
	}
	switch {
	case strings.Contains(string(c), "soft"):
		return types.CategorySoftSkill
	case strings.Contains(string(c), "qual"), strings.Contains(string(c), "edu"), strings.Contains(string(c), "cert"):
		return types.CategoryQualification
	default:
		return types.CategoryHardSkill
	}
}

// locateSpan finds the requirement's source span in the posting, preferring
// the model's quoted substring and falling back to the label itself.
func locateSpan(lowerText, quote, label string) types.SourceSpan {
	if q := strings.ToLower(strings.TrimSpace(quote)); q != "" {
		if idx := strings.Index(lowerText, q); idx >= 0 {
			return types.SourceSpan{Start: idx, End: idx + len(q)}
		}
	}
	if idx := strings.Index(lowerText, label); idx >= 0 {
		return types.SourceSpan{Start: idx, End: idx + len(label)}
	}
	return types.SourceSpan{}
}

// firstAppearance orders requirements by where they occur in the text; spans
// that could not be located sort after located ones, by extraction order.
func firstAppearance(span types.SourceSpan, extractionIndex int) int {
	if span.End > 0 {
		return span.Start
	}
	return 1<<30 + extractionIndex
}
