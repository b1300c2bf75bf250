package copilot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/career-copilot/internal/llm"
	"github.com/jonathan/career-copilot/internal/retrieval"
	"github.com/jonathan/career-copilot/internal/session"
	"github.com/jonathan/career-copilot/internal/types"
)

type fixedSessions struct {
	session types.Session
	err     error
}

func (f *fixedSessions) Get(id uuid.UUID) (types.Session, error) {
	if f.err != nil {
		return types.Session{}, f.err
	}
	return f.session, nil
}

type fixedSearcher struct {
	items []retrieval.ScoredItem
	err   error
}

func (f *fixedSearcher) Search(ctx context.Context, query string, topK int, filterTags []string) ([]retrieval.ScoredItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.items) > topK {
		return f.items[:topK], nil
	}
	return f.items, nil
}

type stubGenerator struct {
	response string
	err      error
	delay    time.Duration
}

func (s *stubGenerator) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return s.GenerateJSON(ctx, prompt, tier)
}

func (s *stubGenerator) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func evidenceItems() []retrieval.ScoredItem {
	return []retrieval.ScoredItem{
		{Item: types.EvidenceItem{ID: "e1", Text: "Led a team of five"}, Score: 0.85},
		{Item: types.EvidenceItem{ID: "e2", Text: "Shipped the billing rewrite"}, Score: 0.7},
	}
}

func newTestService(searcher Searcher, gen llm.Generator) *Service {
	sessions := &fixedSessions{session: types.Session{
		ID:      uuid.New(),
		State:   types.StateDone,
		Persona: types.PersonaInterviewerFriendly,
	}}
	return NewService(sessions, searcher, gen, 3, 50*time.Millisecond, nil)
}

func TestAsk_ReturnsEvidenceAndPoints(t *testing.T) {
	gen := &stubGenerator{response: `{"talking_points": ["Mention the team you led.", "Bring up the billing rewrite."]}`}
	svc := newTestService(&fixedSearcher{items: evidenceItems()}, gen)

	answer, err := svc.Ask(context.Background(), uuid.New(), "Tell me about your leadership experience")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if len(answer.Evidence) != 2 {
		t.Errorf("evidence count = %d, want 2", len(answer.Evidence))
	}
	if len(answer.TalkingPoints) != 2 {
		t.Errorf("talking points = %v", answer.TalkingPoints)
	}
	if answer.Degraded {
		t.Error("successful answer marked degraded")
	}
	if answer.Persona != types.PersonaInterviewerFriendly {
		t.Errorf("persona = %s", answer.Persona)
	}
}

func TestAsk_SlowModelDegrades(t *testing.T) {
	gen := &stubGenerator{
		response: `{"talking_points": ["too late"]}`,
		delay:    500 * time.Millisecond,
	}
	svc := newTestService(&fixedSearcher{items: evidenceItems()}, gen)

	start := time.Now()
	answer, err := svc.Ask(context.Background(), uuid.New(), "Tell me about a conflict")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("degraded answer took %s, deadline is 50ms", elapsed)
	}
	if !answer.Degraded {
		t.Error("slow model should degrade the answer")
	}
	if len(answer.TalkingPoints) != 0 {
		t.Errorf("degraded answer carries talking points: %v", answer.TalkingPoints)
	}
	if len(answer.Evidence) != 2 {
		t.Error("retrieval results must survive model degradation")
	}
}

func TestAsk_ModelErrorDegrades(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model unavailable")}
	svc := newTestService(&fixedSearcher{items: evidenceItems()}, gen)

	answer, err := svc.Ask(context.Background(), uuid.New(), "What is your biggest weakness?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !answer.Degraded {
		t.Error("model failure should degrade, not fail, the answer")
	}
}

func TestAsk_NoEvidenceSkipsModel(t *testing.T) {
	gen := &stubGenerator{err: errors.New("should never be called")}
	svc := newTestService(&fixedSearcher{items: nil}, gen)

	answer, err := svc.Ask(context.Background(), uuid.New(), "Any experience with COBOL?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answer.Degraded {
		t.Error("empty retrieval is not a degradation")
	}
	if len(answer.Evidence) != 0 || len(answer.TalkingPoints) != 0 {
		t.Errorf("answer = %+v", answer)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	svc := newTestService(&fixedSearcher{}, &stubGenerator{})

	if _, err := svc.Ask(context.Background(), uuid.New(), "   "); err == nil {
		t.Error("expected error for empty question")
	}
}

func TestAsk_UnknownSession(t *testing.T) {
	id := uuid.New()
	sessions := &fixedSessions{err: &session.NotFoundError{SessionID: id}}
	svc := NewService(sessions, &fixedSearcher{}, &stubGenerator{}, 3, 0, nil)

	_, err := svc.Ask(context.Background(), id, "question?")
	var nf *session.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected session not-found to surface, got %v", err)
	}
}

func TestAsk_RetrievalErrorFails(t *testing.T) {
	svc := newTestService(&fixedSearcher{err: errors.New("store down")}, &stubGenerator{})

	if _, err := svc.Ask(context.Background(), uuid.New(), "question?"); err == nil {
		t.Error("retrieval failure should fail the answer")
	}
}

func TestAsk_InvalidTalkingPointsDegrade(t *testing.T) {
	gen := &stubGenerator{response: `{"points": ["wrong shape"]}`}
	svc := newTestService(&fixedSearcher{items: evidenceItems()}, gen)

	answer, err := svc.Ask(context.Background(), uuid.New(), "question?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !answer.Degraded {
		t.Error("schema-invalid talking points should degrade the answer")
	}
}
