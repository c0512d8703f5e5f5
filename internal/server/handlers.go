package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/helicon-ai/mnemo/internal/config"
	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/internal/engine"
	"github.com/helicon-ai/mnemo/internal/privacy"
	"github.com/helicon-ai/mnemo/pkg/log"
)

type appendTurnRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type appendTurnResponse struct {
	TurnID      int64            `json:"turn_id"`
	Tokens      int              `json:"tokens"`
	Pressure    float64          `json:"pressure"`
	Permissions core.Permissions `json:"permissions"`
}

func (s *Server) handleAppendTurn(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req appendTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}

	perms := s.gate.Evaluate(req.Content)

	turn := core.Turn{
		Role:      req.Role,
		Content:   req.Content,
		Tokens:    s.counter.Count(req.Content),
		CreatedAt: time.Now(),
	}
	id, err := s.turns.AppendTurn(r.Context(), conversationID, turn)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	window, err := s.turns.Window(r.Context(), conversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total := 0
	for _, t := range window {
		total += t.Tokens
	}
	// A zero window budget is a legal policy; report no pressure rather
	// than dividing by it.
	pressure := 0.0
	if s.policy.ShortTermTokens > 0 {
		pressure = float64(total) / float64(s.policy.ShortTermTokens)
	}

	writeJSON(w, http.StatusCreated, appendTurnResponse{
		TurnID:      id,
		Tokens:      turn.Tokens,
		Pressure:    pressure,
		Permissions: perms,
	})
}

type assembleContextRequest struct {
	Query     string           `json:"query"`
	ProjectID string           `json:"project_id"`
	UserID    string           `json:"user_id"`
	Scopes    []string         `json:"scopes"`
	TopK      int              `json:"top_k"`
	Policy    *policyOverrides `json:"policy"`
}

// policyOverrides patches the session default policy for one assembly call.
// Absent fields keep the default; the patched policy is re-validated.
type policyOverrides struct {
	ShortTermTokens    *int     `json:"short_term_tokens"`
	LongTermTokens     *int     `json:"long_term_tokens"`
	SkillTokens        *int     `json:"skill_tokens"`
	ResponseReserve    *int     `json:"response_reserve"`
	RelevanceThreshold *float64 `json:"relevance_threshold"`
}

func (o *policyOverrides) apply(base config.Policy) config.Policy {
	if o.ShortTermTokens != nil {
		base.ShortTermTokens = *o.ShortTermTokens
	}
	if o.LongTermTokens != nil {
		base.LongTermTokens = *o.LongTermTokens
	}
	if o.SkillTokens != nil {
		base.SkillTokens = *o.SkillTokens
	}
	if o.ResponseReserve != nil {
		base.ResponseReserve = *o.ResponseReserve
	}
	if o.RelevanceThreshold != nil {
		base.RelevanceThreshold = *o.RelevanceThreshold
	}
	return base
}

type assembleContextResponse struct {
	*engine.AssembleResult
	JobID string `json:"job_id,omitempty"`
}

func (s *Server) handleAssembleContext(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	var req assembleContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}

	scopes := make([]core.Scope, 0, len(req.Scopes))
	for _, sc := range req.Scopes {
		scopes = append(scopes, core.Scope(sc))
	}

	var policy *config.Policy
	if req.Policy != nil {
		patched := req.Policy.apply(s.policy)
		if err := patched.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		policy = &patched
	}

	result, err := s.pipeline.Assemble(r.Context(), engine.AssembleRequest{
		ConversationID: conversationID,
		ProjectID:      req.ProjectID,
		UserID:         req.UserID,
		Query:          req.Query,
		Scopes:         scopes,
		TopK:           req.TopK,
		Policy:         policy,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := assembleContextResponse{AssembleResult: result}
	if result.Signal.Enqueue {
		// The job carries the pre-compaction snapshot: the evicted turns
		// are already gone from storage and this is their last chance to
		// be summarized.
		job, err := s.enqueueJob(r, conversationID, req.ProjectID, req.UserID,
			result.Signal.Reason, result.Snapshot, result.Compaction.Evicted)
		if err != nil {
			log.FromCtx(r.Context()).Error().Err(err).Msg("consolidation enqueue failed")
		} else {
			resp.JobID = job.ID
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type consolidateRequest struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	s.enqueueAndRespond(w, r, core.ReasonManual)
}

func (s *Server) handleEndConversation(w http.ResponseWriter, r *http.Request) {
	s.enqueueAndRespond(w, r, core.ReasonSessionEnd)
}

func (s *Server) enqueueAndRespond(w http.ResponseWriter, r *http.Request, reason string) {
	conversationID := chi.URLParam(r, "conversationID")

	var req consolidateRequest
	if r.Body != nil {
		// An empty body is fine; project and user are optional.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	window, err := s.turns.Window(r.Context(), conversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	job, err := s.enqueueJob(r, conversationID, req.ProjectID, req.UserID, reason, window, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(core.JobPending),
		"reason": reason,
	})
}

// newConsolidationJob builds a pending job over a transcript snapshot. The
// caller supplies the snapshot so that pressure-triggered jobs can carry
// turns the compactor has already evicted from storage. Permissions are
// evaluated over the user-authored turns of the snapshot.
func newConsolidationJob(gate *privacy.Gate, conversationID, projectID, userID, reason string, transcript []core.Turn, evicted int) core.ConsolidationJob {
	var userText strings.Builder
	for _, t := range transcript {
		if t.Role != "user" {
			continue
		}
		userText.WriteString(t.Content)
		userText.WriteString("\n")
	}

	return core.ConsolidationJob{
		ID:             ulid.Make().String(),
		ConversationID: conversationID,
		ProjectID:      projectID,
		UserID:         userID,
		Reason:         reason,
		Transcript:     transcript,
		Evicted:        evicted,
		Permissions:    gate.Evaluate(userText.String()),
		Status:         core.JobPending,
		CreatedAt:      time.Now(),
	}
}

func (s *Server) enqueueJob(r *http.Request, conversationID, projectID, userID, reason string, transcript []core.Turn, evicted int) (*core.ConsolidationJob, error) {
	ctx := r.Context()

	job := newConsolidationJob(s.gate, conversationID, projectID, userID, reason, transcript, evicted)
	if err := s.jobs.EnqueueJob(ctx, job); err != nil {
		return nil, err
	}

	log.FromCtx(ctx).Info().
		Str("job", job.ID).
		Str("conversation", conversationID).
		Str("reason", reason).
		Int("turns", len(transcript)).
		Int("evicted", evicted).
		Msg("consolidation job enqueued")
	return &job, nil
}

type createRecordRequest struct {
	Kind       string   `json:"kind"`
	Scope      string   `json:"scope"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
	UserID     string   `json:"user_id"`
	SessionID  string   `json:"session_id"`
	ProjectID  string   `json:"project_id"`
}

var validKinds = map[core.MemoryKind]struct{}{
	core.KindEpisodic: {},
	core.KindSemantic: {},
	core.KindSummary:  {},
}

var validScopes = map[core.Scope]struct{}{
	core.ScopeConversation: {},
	core.ScopeProject:      {},
	core.ScopeGlobal:       {},
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	if _, ok := validKinds[core.MemoryKind(req.Kind)]; !ok {
		writeError(w, http.StatusBadRequest, "kind must be episodic, semantic, or summary")
		return
	}
	if _, ok := validScopes[core.Scope(req.Scope)]; !ok {
		writeError(w, http.StatusBadRequest, "scope must be conversation, project, or global")
		return
	}

	content := req.Content
	switch s.gate.ClassifyFact(content) {
	case privacy.DecisionBlock:
		writeError(w, http.StatusUnprocessableEntity, "content blocked by privacy gate")
		return
	case privacy.DecisionRedact:
		content = s.gate.Redact(content)
	}

	confidence := req.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 1.0
	}

	now := time.Now()
	rec := core.MemoryRecord{
		ID:             ulid.Make().String(),
		Kind:           core.MemoryKind(req.Kind),
		Scope:          core.Scope(req.Scope),
		Content:        content,
		Tags:           req.Tags,
		Confidence:     confidence,
		Tokens:         s.counter.Count(content),
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		ProjectID:      req.ProjectID,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	if s.embedder != nil {
		if vec, err := s.embedder.Embed(r.Context(), content); err != nil {
			log.FromCtx(r.Context()).Warn().Err(err).Msg("record embedding failed")
		} else {
			rec.Embedding = vec
		}
	}

	if err := s.records.InsertRecord(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
