package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/career-copilot/internal/evidence"
	"github.com/jonathan/career-copilot/internal/jobfeed"
	"github.com/jonathan/career-copilot/internal/pipeline"
	"github.com/jonathan/career-copilot/internal/types"
)

// CreateSessionRequest is the payload for POST /sessions.
type CreateSessionRequest struct {
	JobText string `json:"job_text" validate:"required_without=JobURL"`
	JobURL  string `json:"job_url" validate:"omitempty,url"`
	JobID   string `json:"job_id"`
}

// SessionResponse is the wire form of a session.
type SessionResponse struct {
	ID                string `json:"id"`
	JobID             string `json:"job_id"`
	State             string `json:"state"`
	Persona           string `json:"persona"`
	IterationCount    int    `json:"iteration_count"`
	FinalDraftVersion *int   `json:"final_draft_version,omitempty"`
	FailureKind       string `json:"failure_kind,omitempty"`
}

// PersonaRequest is the payload for POST /sessions/{id}/persona.
type PersonaRequest struct {
	Persona string `json:"persona" validate:"required"`
}

// CopilotRequest is the payload for POST /copilot/query.
type CopilotRequest struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
	Question  string `json:"question" validate:"required,min=3"`
}

// EvidenceRequest is the payload for POST /evidence.
type EvidenceRequest struct {
	Items []EvidenceRecord `json:"items" validate:"required,min=1,dive"`
}

// EvidenceRecord is one archive entry in an ingestion request.
type EvidenceRecord struct {
	ID   string   `json:"id"`
	Text string   `json:"text" validate:"required"`
	Tags []string `json:"tags"`
}

// resultCache keeps the latest run output per session for draft reads when
// no database is configured.
type resultCache struct {
	mu      sync.RWMutex
	results map[uuid.UUID]*pipeline.Result
}

func newResultCache() *resultCache {
	return &resultCache{results: make(map[uuid.UUID]*pipeline.Result)}
}

func (c *resultCache) put(id uuid.UUID, r *pipeline.Result) {
	c.mu.Lock()
	c.results[id] = r
	c.mu.Unlock()
}

func (c *resultCache) get(id uuid.UUID) (*pipeline.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[id]
	return r, ok
}

// prune drops cached results whose session id no longer passes keep and
// returns how many were dropped.
func (c *resultCache) prune(keep func(uuid.UUID) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for id := range c.results {
		if !keep(id) {
			delete(c.results, id)
			dropped++
		}
	}
	return dropped
}

// handleCreateSession starts a tailoring run in the background and returns
// the session immediately.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	req, postingText, ok := s.decodeSessionRequest(w, r)
	if !ok {
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.JobID, "")
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	go func() {
		runner := s.newPipeline(nil)
		result, err := runner.Run(s.baseCtx, sess.ID, postingText)
		if result != nil {
			s.results.put(sess.ID, result)
		}
		if err != nil {
			s.logger.Warn("background run failed",
				zap.String("session_id", sess.ID.String()),
				zap.Error(err),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, sessionResponse(sess))
}

// handleCreateSessionStream runs the pipeline synchronously and streams
// stage events over SSE.
func (s *Server) handleCreateSessionStream(w http.ResponseWriter, r *http.Request) {
	req, postingText, ok := s.decodeSessionRequest(w, r)
	if !ok {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.JobID, "")
	if err != nil {
		sse.WriteError(err.Error())
		return
	}
	sse.WriteSession(sess.ID.String())

	runner := s.newPipeline(func(event pipeline.ProgressEvent) {
		sse.WriteProgress(event)
	})
	result, runErr := runner.Run(r.Context(), sess.ID, postingText)
	if result != nil {
		s.results.put(sess.ID, result)
	}
	if runErr != nil {
		sse.WriteError(runErr.Error())
		return
	}

	final, err := s.sessions.Get(sess.ID)
	if err != nil {
		sse.WriteError(err.Error())
		return
	}
	sse.WriteComplete(sess.ID.String(), string(final.State))
}

func (s *Server) decodeSessionRequest(w http.ResponseWriter, r *http.Request) (CreateSessionRequest, string, bool) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return req, "", false
	}
	if err := s.validator.Struct(req); err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return req, "", false
	}

	postingText := req.JobText
	if postingText == "" {
		posting, err := jobfeed.FromURL(r.Context(), req.JobURL, jobfeed.FetchOptions{UseBrowser: s.useBrowser})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return req, "", false
		}
		postingText = posting.RawText
		if req.JobID == "" {
			req.JobID = posting.ID
		}
	} else {
		postingText = jobfeed.NormalizeText(postingText)
	}
	return req, postingText, true
}

// handleGetSession returns the current session state.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// handleListSessions returns all known sessions, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List()
	out := make([]SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionResponse(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetDraft returns the latest draft and quality report for a session.
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if _, err := s.sessions.Get(id); err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}

	if result, ok := s.results.get(id); ok && result.Draft != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"draft":   result.Draft,
			"quality": result.Quality,
		})
		return
	}

	if s.db != nil {
		draft, err := s.db.GetLatestDraft(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if draft != nil {
			writeJSON(w, http.StatusOK, map[string]any{"draft": draft})
			return
		}
	}

	http.Error(w, "no draft available for session", http.StatusNotFound)
}

// handleSetPersona switches the session's dialogue persona.
func (s *Server) handleSetPersona(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req PersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	persona := types.Persona(req.Persona)
	if !persona.Valid() {
		http.Error(w, "unknown persona: "+req.Persona, http.StatusBadRequest)
		return
	}
	if err := s.sessions.SetPersona(r.Context(), id, persona); err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// handleCopilotQuery answers an interview question against a session.
func (s *Server) handleCopilotQuery(w http.ResponseWriter, r *http.Request) {
	var req CopilotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validator.Struct(req); err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	answer, err := s.copilot.Ask(r.Context(), sessionID, req.Question)
	if err != nil {
		http.Error(w, err.Error(), HTTPStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// handleIngestEvidence adds or refreshes evidence archive entries.
func (s *Server) handleIngestEvidence(w http.ResponseWriter, r *http.Request) {
	var req EvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validator.Struct(req); err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	records := make([]evidence.Record, 0, len(req.Items))
	for _, item := range req.Items {
		records = append(records, evidence.Record{ID: item.ID, Text: item.Text, Tags: item.Tags})
	}

	stats, err := s.ingester.Ingest(r.Context(), records)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	if s.db != nil {
		if err := s.db.SaveEvidence(r.Context(), s.evidence.Snapshot()); err != nil {
			s.logger.Warn("evidence persistence failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"evidence_size": s.evidence.Len(),
	})
}

func sessionResponse(sess types.Session) SessionResponse {
	return SessionResponse{
		ID:                sess.ID.String(),
		JobID:             sess.JobID,
		State:             string(sess.State),
		Persona:           string(sess.Persona),
		IterationCount:    sess.IterationCount,
		FinalDraftVersion: sess.FinalDraftVersion,
		FailureKind:       sess.FailureKind,
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
