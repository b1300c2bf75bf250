package types

// Severity classifies how serious a critique issue is.
type Severity string

// Severity levels. A blocking issue prevents a draft from passing regardless
// of its score.
const (
	SeverityBlocking Severity = "blocking"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// IssueKind classifies what a critique issue is about.
type IssueKind string

// Issue kinds emitted by the critic.
const (
	KindMissingCoverage IssueKind = "missing-coverage"
	KindIncorrectClaim  IssueKind = "incorrect-claim"
	KindTone            IssueKind = "tone"
	KindLength          IssueKind = "length"
)

// Issue is a single problem the critic found in a draft. RequirementID is
// empty for document-level issues (tone, length).
type Issue struct {
	RequirementID string    `json:"requirement_id,omitempty"`
	Kind          IssueKind `json:"kind"`
	Description   string    `json:"description"`
	Severity      Severity  `json:"severity"`
}

// Critique is the critic's verdict on one draft version. Pass is true iff the
// score met the acceptance threshold and no issue is blocking; a passing
// critique is terminal for the quality loop.
type Critique struct {
	Issues []Issue `json:"issues"`
	Score  float64 `json:"score"`
	Pass   bool    `json:"pass"`
}

// HasBlocking reports whether any issue is severity blocking.
func (c *Critique) HasBlocking() bool {
	for _, iss := range c.Issues {
		if iss.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}

// FlagsIncorrectClaim reports whether the critique explicitly flags a prior
// claim for the given requirement as incorrect. Only such a flag permits the
// covered set to shrink between versions.
func (c *Critique) FlagsIncorrectClaim(requirementID string) bool {
	for _, iss := range c.Issues {
		if iss.Kind == KindIncorrectClaim && iss.RequirementID == requirementID {
			return true
		}
	}
	return false
}

// DraftSection is one named section of a draft document. Sections are kept as
// an ordered slice rather than a map so the document order is stable.
type DraftSection struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// DraftDocument is one immutable version of the tailored document. The quality
// loop produces version N+1 from version N plus a Critique; versions start at 0
// and strictly increase within a session.
type DraftDocument struct {
	Version               int            `json:"version"`
	Sections              []DraftSection `json:"sections"`
	CoveredRequirementIDs []string       `json:"covered_requirement_ids"`
	CritiqueHistory       []Critique     `json:"critique_history"`
}

// Covers reports whether the draft claims coverage for a requirement.
func (d *DraftDocument) Covers(requirementID string) bool {
	for _, id := range d.CoveredRequirementIDs {
		if id == requirementID {
			return true
		}
	}
	return false
}

// Section returns the text of a named section, or "" if absent.
func (d *DraftDocument) Section(name string) string {
	for _, s := range d.Sections {
		if s.Name == name {
			return s.Text
		}
	}
	return ""
}

// QualityReport is the caller-visible summary attached to the final artifact:
// the last critique score plus anything left unresolved.
type QualityReport struct {
	Score                 float64  `json:"score"`
	UnresolvedIssues      []Issue  `json:"unresolved_issues"`
	UncoveredRequirements []string `json:"uncovered_requirements"`
	Converged             bool     `json:"converged"`
	Iterations            int      `json:"iterations"`
}
