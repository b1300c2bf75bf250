// Package jobfeed loads job postings from local files or live job board
// pages and normalizes them into plain text for requirement extraction.
package jobfeed

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/career-copilot/internal/types"
)

// FromFile reads a posting from a local text file.
func FromFile(path string) (*types.JobPosting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read posting file: %w", err)
	}
	return FromText(string(data)), nil
}

// FromText builds a posting from raw text, guessing title and company from
// the leading lines when they look like a header.
func FromText(raw string) *types.JobPosting {
	text := NormalizeText(raw)
	posting := &types.JobPosting{
		ID:      uuid.NewString(),
		RawText: text,
	}

	lines := strings.SplitN(text, "\n", 3)
	if len(lines) > 0 {
		posting.Title = headerValue(lines[0])
	}
	if len(lines) > 1 {
		posting.Company = headerValue(lines[1])
	}
	return posting
}

// NormalizeText collapses whitespace so downstream prompts and source spans
// work against a stable representation.
func NormalizeText(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// headerValue treats a short leading line as a header field. Long lines are
// body text, not titles.
func headerValue(line string) string {
	line = strings.TrimSpace(line)
	if len(line) == 0 || len(line) > 120 {
		return ""
	}
	return line
}
