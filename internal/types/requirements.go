package types

// RequirementCategory classifies a job requirement.
type RequirementCategory string

// Requirement categories form a closed set; the extractor normalizes any other
// label the model emits into one of these.
const (
	CategoryHardSkill     RequirementCategory = "hard-skill"
	CategorySoftSkill     RequirementCategory = "soft-skill"
	CategoryQualification RequirementCategory = "qualification"
)

// Valid reports whether the category is one of the known values.
func (c RequirementCategory) Valid() bool {
	switch c {
	case CategoryHardSkill, CategorySoftSkill, CategoryQualification:
		return true
	}
	return false
}

// SourceSpan locates a requirement in the original posting text, for
// traceability. Offsets are byte offsets into the raw text.
type SourceSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// JobRequirement is a single skill or qualification extracted from a job
// posting, with a relative importance weight. Requirements are produced once
// per pipeline run and are immutable within that run.
type JobRequirement struct {
	ID         string              `json:"id"`
	Skill      string              `json:"skill"`
	Category   RequirementCategory `json:"category"`
	Weight     float64             `json:"weight"`
	SourceSpan SourceSpan          `json:"source_span"`
}
