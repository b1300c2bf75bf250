// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/career-copilot/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRequirements outputs a summary of extracted job requirements.
func (p *Printer) PrintRequirements(reqs []types.JobRequirement) {
	if len(reqs) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(reqs), maxItemsToShow)
	for i := 0; i < count; i++ {
		req := reqs[i]
		sb.WriteString(fmt.Sprintf("  • %s [%s] w=%.2f\n", req.Skill, req.Category, req.Weight))
	}
	if len(reqs) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(reqs)-maxItemsToShow))
	}

	p.printBox(fmt.Sprintf("Requirements (%d)", len(reqs)), sb.String())
}

// PrintMatchReport outputs per-requirement match results.
func (p *Printer) PrintMatchReport(reqs []types.JobRequirement, report *types.MatchReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	for _, req := range reqs {
		matches := report.ByRequirement[req.ID]
		accepted := 0
		best := 0.0
		for _, m := range matches {
			if m.Accepted {
				accepted++
			}
			if m.Score > best {
				best = m.Score
			}
		}
		marker := "✓"
		if report.IsUncovered(req.ID) {
			marker = "✗"
		}
		sb.WriteString(fmt.Sprintf("  %s %s: %d accepted (best %.2f)\n", marker, req.Skill, accepted, best))
	}
	if len(report.Uncovered) > 0 {
		sb.WriteString(fmt.Sprintf("\nUncovered: %d\n", len(report.Uncovered)))
	}

	p.printBox("Evidence Matches", sb.String())
}

// PrintDraft outputs a draft summary with its sections.
func (p *Printer) PrintDraft(draft *types.DraftDocument) {
	if draft == nil {
		return
	}

	var sb strings.Builder
	for _, section := range draft.Sections {
		sb.WriteString(fmt.Sprintf("  %s (%d chars)\n", section.Name, len(section.Text)))
	}
	sb.WriteString(fmt.Sprintf("\nClaims coverage of %d requirements\n", len(draft.CoveredRequirementIDs)))

	p.printBox(fmt.Sprintf("Draft v%d", draft.Version), sb.String())
}

// PrintCritique outputs a critique with its issues grouped by severity.
func (p *Printer) PrintCritique(critique *types.Critique) {
	if critique == nil {
		return
	}

	var sb strings.Builder
	verdict := "NEEDS REVISION"
	if critique.Pass {
		verdict = "PASS"
	}
	sb.WriteString(fmt.Sprintf("Score: %.2f  Verdict: %s\n", critique.Score, verdict))

	if len(critique.Issues) > 0 {
		sb.WriteString("\n")
		count := min(len(critique.Issues), maxItemsToShow)
		for i := 0; i < count; i++ {
			issue := critique.Issues[i]
			sb.WriteString(fmt.Sprintf("  [%s] %s: %s\n", issue.Severity, issue.Kind, issue.Description))
		}
		if len(critique.Issues) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(critique.Issues)-maxItemsToShow))
		}
	}

	p.printBox("Critique", sb.String())
}

// PrintQualityReport outputs the final quality summary for a finished run.
func (p *Printer) PrintQualityReport(report *types.QualityReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Score:      %.2f\n", report.Score))
	sb.WriteString(fmt.Sprintf("Iterations: %d\n", report.Iterations))
	sb.WriteString(fmt.Sprintf("Converged:  %t\n", report.Converged))
	if len(report.UncoveredRequirements) > 0 {
		sb.WriteString(fmt.Sprintf("Uncovered:  %d requirements\n", len(report.UncoveredRequirements)))
	}
	if len(report.UnresolvedIssues) > 0 {
		sb.WriteString(fmt.Sprintf("Unresolved: %d issues\n", len(report.UnresolvedIssues)))
	}

	p.printBox("Quality Report", sb.String())
}
