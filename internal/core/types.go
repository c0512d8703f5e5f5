package core

import "time"

const (
	AppName    = "mnemo"
	AppVersion = "0.1.0"
)

// MemoryKind classifies a durable record.
type MemoryKind string

const (
	KindEpisodic MemoryKind = "episodic"
	KindSemantic MemoryKind = "semantic"
	KindSummary  MemoryKind = "summary"
)

// Scope bounds where a record is visible.
type Scope string

const (
	ScopeConversation Scope = "conversation"
	ScopeProject      Scope = "project"
	ScopeGlobal       Scope = "global"
)

// MemoryRecord is a durable fact or summary. Records are created by user
// input, consolidation extraction, or a manual API write; they are mutated
// only by decay refresh and access touch. The engine never deletes them.
type MemoryRecord struct {
	ID             string     `json:"id"`
	Kind           MemoryKind `json:"kind"`
	Scope          Scope      `json:"scope"`
	Content        string     `json:"content"`
	Embedding      []float32  `json:"-"`
	Tags           []string   `json:"tags,omitempty"`
	Confidence     float64    `json:"confidence"`
	Decay          float64    `json:"decay"`
	Tokens         int        `json:"tokens"`
	UserID         string     `json:"user_id,omitempty"`
	SessionID      string     `json:"session_id,omitempty"`
	ProjectID      string     `json:"project_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
}

// Turn is one raw conversation message in the short-term window.
type Turn struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	CreatedAt time.Time `json:"created_at"`
}

// Candidate origins.
const (
	OriginShortTerm = "short_term_window"
	OriginLongTerm  = "long_term_store"
	OriginSkill     = "skill_fragment"
)

// ScoreVector holds the six scoring dimensions. DecayPenalty is stored as
// the raw staleness value and subtracted during aggregation.
type ScoreVector struct {
	Relevance    float64 `json:"relevance"`
	Recency      float64 `json:"recency"`
	ScopeMatch   float64 `json:"scope_match"`
	TypePriority float64 `json:"type_priority"`
	DecayPenalty float64 `json:"decay_penalty"`
	SkillWeight  float64 `json:"skill_weight"`
}

// Citation is provenance metadata attached to a surfaced context block.
type Citation struct {
	Origin    string  `json:"origin"`
	Relevance float64 `json:"relevance"`
	Excerpt   string  `json:"excerpt"`
}

// ScoredCandidate is created fresh for every retrieval pass and never
// persisted.
type ScoredCandidate struct {
	RecordID   string      `json:"record_id"`
	Origin     string      `json:"origin"`
	Content    string      `json:"content"`
	Tokens     int         `json:"tokens"`
	Scores     ScoreVector `json:"scores"`
	Final      float64     `json:"final"`
	Citation   *Citation   `json:"citation,omitempty"`
	Dropped    bool        `json:"dropped,omitempty"`
	DropReason string      `json:"drop_reason,omitempty"`
}

// RequestContext describes the retrieval request beyond the query text.
type RequestContext struct {
	ConversationID string
	ProjectID      string
	UserID         string
	Scopes         []Scope
	SkillTags      []string
	QueryEmbedding []float32
}

// ContextBlock is one labeled, redacted memory block in the assembled prompt.
type ContextBlock struct {
	Label    string   `json:"label"`
	Content  string   `json:"content"`
	Citation Citation `json:"citation"`
}

// TokenBreakdown reports where the budget went, the primary observability
// surface for "why didn't the agent remember X".
type TokenBreakdown struct {
	System    int `json:"system"`
	Context   int `json:"context"`
	History   int `json:"history"`
	User      int `json:"user"`
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

// PackedPrompt is the assembled context window plus the full candidate
// trace.
type PackedPrompt struct {
	System    string            `json:"system"`
	Context   []ContextBlock    `json:"context"`
	History   []Turn            `json:"history"`
	User      string            `json:"user"`
	Breakdown TokenBreakdown    `json:"breakdown"`
	Packed    []ScoredCandidate `json:"packed"`
	Dropped   []ScoredCandidate `json:"dropped"`
}

// SentimentLabel is the coarse classification produced by the privacy gate.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentVolatile SentimentLabel = "volatile"
)

// Permissions gate what the consolidation worker may persist for a turn.
type Permissions struct {
	WriteEpisodic       bool           `json:"write_episodic"`
	WriteSemantic       bool           `json:"write_semantic"`
	WriteSummary        bool           `json:"write_summary"`
	Sentiment           SentimentLabel `json:"sentiment"`
	SentimentScore      float64        `json:"sentiment_score"`
	RetentionOverride   bool           `json:"retention_override"`
	SensitiveCategories []string       `json:"sensitive_categories,omitempty"`
}

// JobStatus tracks a consolidation job through its lifecycle.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// ConsolidationJob is a unit of background work. The transcript snapshot is
// immutable once enqueued; the live conversation continues independently.
type ConsolidationJob struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	ProjectID      string      `json:"project_id,omitempty"`
	UserID         string      `json:"user_id,omitempty"`
	Reason         string      `json:"reason"`
	Transcript     []Turn      `json:"transcript"`
	// Evicted is how many of the transcript's oldest turns the compactor
	// removed from storage in the pass that produced this job. The
	// transcript still contains them; only this job can still summarize
	// them durably.
	Evicted        int         `json:"evicted,omitempty"`
	Permissions    Permissions `json:"permissions"`
	Status         JobStatus   `json:"status"`
	Result         *MemoryDiff `json:"result,omitempty"`
	Error          string      `json:"error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Consolidation trigger reasons.
const (
	ReasonTokenPressure = "token_pressure"
	ReasonSessionEnd    = "session_end"
	ReasonManual        = "manual"
)

// MemoryDiff is the structured result of a consolidation pass.
type MemoryDiff struct {
	Added      int      `json:"added"`
	Updated    int      `json:"updated"`
	Removed    int      `json:"removed"`
	TouchedIDs []string `json:"touched_ids,omitempty"`
	Facts      []string `json:"facts,omitempty"`
}
