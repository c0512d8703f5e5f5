package core

import "context"

// RecordFilter selects durable records. A zero field means "no constraint".
type RecordFilter struct {
	IDs       []string
	Kinds     []MemoryKind
	Scopes    []Scope
	UserID    string
	SessionID string
	ProjectID string
	// DecayCeiling, when > 0, excludes records whose decay score is at or
	// above the ceiling even if they would otherwise match.
	DecayCeiling float64
	Limit        int
}

type RecordRepository interface {
	QueryRecords(ctx context.Context, filter RecordFilter) ([]MemoryRecord, error)
	InsertRecord(ctx context.Context, record MemoryRecord) error
	UpdateDecay(ctx context.Context, id string, score float64) error
	// Touch bumps last_accessed_at. Callers issue it fire-and-forget; no
	// ordering is guaranteed relative to subsequent reads.
	Touch(ctx context.Context, id string) error
}

type TurnRepository interface {
	AppendTurn(ctx context.Context, conversationID string, turn Turn) (int64, error)
	Window(ctx context.Context, conversationID string) ([]Turn, error)
	// EvictOldest physically removes the n oldest turns of the stored window.
	EvictOldest(ctx context.Context, conversationID string, n int) error
	CompactionPass(ctx context.Context, conversationID string) (int, error)
	IncrementCompactionPass(ctx context.Context, conversationID string) (int, error)
}

type JobRepository interface {
	EnqueueJob(ctx context.Context, job ConsolidationJob) error
	// PendingJobs returns up to limit jobs in pending state, oldest first.
	// There is no visibility timeout: two concurrent consumers may pick up
	// the same job, which is tolerated because processing is idempotent.
	PendingJobs(ctx context.Context, limit int) ([]ConsolidationJob, error)
	SetJobStatus(ctx context.Context, id string, status JobStatus, result *MemoryDiff, errMsg string) error
	GetJob(ctx context.Context, id string) (*ConsolidationJob, error)
}
