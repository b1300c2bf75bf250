package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/jonathan/career-copilot/internal/llm"
)

type stubGenerator struct {
	response string
	err      error
}

func (s *stubGenerator) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return s.GenerateJSON(ctx, prompt, tier)
}

func (s *stubGenerator) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

const samplePosting = `Senior Backend Engineer

We are looking for an engineer with strong Go experience.
You will design PostgreSQL schemas and deploy to Kubernetes.
Golang expertise and communication skills are a must.`

func TestExtract(t *testing.T) {
	gen := &stubGenerator{response: `{
		"requirements": [
			{"skill": "Golang", "category": "hard-skill", "weight": 0.9, "quote": "strong Go experience"},
			{"skill": "Go", "category": "hard-skill", "weight": 0.7, "quote": "Golang expertise"},
			{"skill": "PostgreSQL", "category": "hard-skill", "weight": 0.6, "quote": "design PostgreSQL schemas"},
			{"skill": "Communication Skills", "category": "soft-skill", "weight": 0.4, "quote": "communication skills"}
		]
	}`}
	ex := NewExtractor(gen, nil)

	reqs, err := ex.Extract(context.Background(), samplePosting)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	// Golang and Go collapse to one requirement keeping the higher weight.
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requirements after dedup, got %d", len(reqs))
	}
	if reqs[0].Skill != "go" || reqs[0].Weight != 0.9 {
		t.Errorf("expected go with weight 0.9 first, got %s %.1f", reqs[0].Skill, reqs[0].Weight)
	}
	if reqs[1].Skill != "postgresql" {
		t.Errorf("expected postgresql second, got %s", reqs[1].Skill)
	}
	if reqs[2].Skill != "communication" {
		t.Errorf("expected communication last, got %s", reqs[2].Skill)
	}
	for i, r := range reqs {
		want := []string{"req_001", "req_002", "req_003"}[i]
		if r.ID != want {
			t.Errorf("requirement %d id = %s, want %s", i, r.ID, want)
		}
	}
}

func TestExtract_EmptyPosting(t *testing.T) {
	ex := NewExtractor(&stubGenerator{}, nil)

	for _, text := range []string{"", "   \n\t  "} {
		_, err := ex.Extract(context.Background(), text)
		var exErr *ExtractionError
		if !errors.As(err, &exErr) {
			t.Errorf("Extract(%q): expected *ExtractionError, got %v", text, err)
		}
	}
}

func TestExtract_NoRequirementsFound(t *testing.T) {
	ex := NewExtractor(&stubGenerator{response: `{"requirements": []}`}, nil)

	_, err := ex.Extract(context.Background(), "My grocery list: milk, eggs")
	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected *ExtractionError for non-job text, got %v", err)
	}
}

func TestExtract_InvalidModelOutput(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not json", "here are the requirements: Go, SQL"},
		{"missing required field", `{"requirements": [{"category": "hard-skill", "weight": 0.5}]}`},
		{"wrong shape", `{"skills": ["go"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := NewExtractor(&stubGenerator{response: tt.response}, nil)
			_, err := ex.Extract(context.Background(), samplePosting)
			var exErr *ExtractionError
			if !errors.As(err, &exErr) {
				t.Fatalf("expected *ExtractionError, got %v", err)
			}
		})
	}
}

func TestExtract_GeneratorErrorPassesThrough(t *testing.T) {
	wantErr := errors.New("model unavailable")
	ex := NewExtractor(&stubGenerator{err: wantErr}, nil)

	_, err := ex.Extract(context.Background(), samplePosting)
	if !errors.Is(err, wantErr) {
		t.Fatalf("generator errors should pass through for retry classification, got %v", err)
	}
	var exErr *ExtractionError
	if errors.As(err, &exErr) {
		t.Error("generator failure must not be wrapped as a terminal extraction error")
	}
}
