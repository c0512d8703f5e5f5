package consolidate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/internal/privacy"
	"github.com/helicon-ai/mnemo/internal/providers/llm"
	"github.com/helicon-ai/mnemo/pkg/tokens"
)

type fakeJobs struct {
	mu    sync.Mutex
	jobs  map[string]*core.ConsolidationJob
	order []string
}

func newFakeJobs(jobs ...core.ConsolidationJob) *fakeJobs {
	f := &fakeJobs{jobs: make(map[string]*core.ConsolidationJob)}
	for i := range jobs {
		j := jobs[i]
		f.jobs[j.ID] = &j
		f.order = append(f.order, j.ID)
	}
	return f
}

func (f *fakeJobs) EnqueueJob(ctx context.Context, job core.ConsolidationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = &job
	f.order = append(f.order, job.ID)
	return nil
}

func (f *fakeJobs) PendingJobs(ctx context.Context, limit int) ([]core.ConsolidationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.ConsolidationJob
	for _, id := range f.order {
		if len(out) >= limit {
			break
		}
		if f.jobs[id].Status == core.JobPending {
			out = append(out, *f.jobs[id])
		}
	}
	return out, nil
}

func (f *fakeJobs) SetJobStatus(ctx context.Context, id string, status core.JobStatus, result *core.MemoryDiff, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return errors.New("job not found")
	}
	j.Status = status
	j.Result = result
	j.Error = errMsg
	return nil
}

func (f *fakeJobs) GetJob(ctx context.Context, id string) (*core.ConsolidationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

type fakeRecords struct {
	mu       sync.Mutex
	existing []core.MemoryRecord
	inserted []core.MemoryRecord
	decays   map[string]float64
	queryErr error
}

func newFakeRecords(existing ...core.MemoryRecord) *fakeRecords {
	return &fakeRecords{existing: existing, decays: make(map[string]float64)}
}

func (f *fakeRecords) QueryRecords(ctx context.Context, filter core.RecordFilter) ([]core.MemoryRecord, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.MemoryRecord(nil), f.existing...), nil
}

func (f *fakeRecords) InsertRecord(ctx context.Context, record core.MemoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, record)
	return nil
}

func (f *fakeRecords) UpdateDecay(ctx context.Context, id string, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decays[id] = score
	return nil
}

func (f *fakeRecords) Touch(ctx context.Context, id string) error { return nil }

func testTranscript() []core.Turn {
	return []core.Turn{
		{ID: 1, Role: "user", Content: "I switched the project to postgres last week"},
		{ID: 2, Role: "assistant", Content: "Noted, postgres it is"},
		{ID: 3, Role: "user", Content: "Also I work at Helicon now"},
	}
}

func testJob(perms core.Permissions) core.ConsolidationJob {
	return core.ConsolidationJob{
		ID:             "job-1",
		ConversationID: "conv-1",
		Reason:         core.ReasonSessionEnd,
		Transcript:     testTranscript(),
		Permissions:    perms,
		Status:         core.JobPending,
		CreatedAt:      time.Now(),
	}
}

func allWrites() core.Permissions {
	return core.Permissions{WriteEpisodic: true, WriteSemantic: true, WriteSummary: true}
}

func newTestWorker(jobs *fakeJobs, records *fakeRecords, gen *llm.Mock) *Worker {
	w := NewWorker(jobs, records, gen, nil, privacy.NewGate(false), tokens.HeuristicCounter{})
	w.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return w
}

const summaryJSON = `{"summary": "User migrated the project to postgres and joined Helicon.", "key_facts": ["User uses postgres", "User works at Helicon"]}`

const factsJSON = `[
  {"fact": "User's project uses postgres", "tags": ["database"], "confidence": 0.9, "scope": "project"},
  {"fact": "User works at Helicon", "tags": ["job"], "confidence": 0.8, "scope": "bogus"}
]`

func TestWorkerRunOnce(t *testing.T) {
	jobs := newFakeJobs(testJob(allWrites()))
	records := newFakeRecords()
	gen := &llm.Mock{Responses: []string{summaryJSON, factsJSON}}

	w := newTestWorker(jobs, records, gen)
	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, core.JobDone, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, 3, job.Result.Added)
	assert.Len(t, job.Result.TouchedIDs, 3)

	require.Len(t, records.inserted, 3)

	summary := records.inserted[0]
	assert.Equal(t, core.KindSummary, summary.Kind)
	assert.Equal(t, core.ScopeConversation, summary.Scope)
	assert.Equal(t, "conv-1", summary.SessionID)
	assert.Contains(t, summary.Content, "postgres")
	assert.Greater(t, summary.Tokens, 0)

	fact := records.inserted[1]
	assert.Equal(t, core.KindSemantic, fact.Kind)
	assert.Equal(t, core.ScopeProject, fact.Scope)
	assert.InDelta(t, 0.9, fact.Confidence, 1e-9)

	// Invalid scope from the model normalizes to conversation.
	assert.Equal(t, core.ScopeConversation, records.inserted[2].Scope)
}

func TestWorkerMalformedSummaryStoresRawText(t *testing.T) {
	jobs := newFakeJobs(testJob(core.Permissions{WriteSummary: true}))
	records := newFakeRecords()
	gen := &llm.Mock{Responses: []string{"plain prose without structure"}}

	w := newTestWorker(jobs, records, gen)
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	job, _ := jobs.GetJob(context.Background(), "job-1")
	assert.Equal(t, core.JobDone, job.Status)

	require.Len(t, records.inserted, 1)
	assert.Equal(t, "plain prose without structure", records.inserted[0].Content)
}

func TestWorkerSummarizesShortTranscriptAfterEviction(t *testing.T) {
	job := testJob(core.Permissions{WriteSummary: true})
	job.Reason = core.ReasonTokenPressure
	job.Transcript = job.Transcript[:2]
	job.Evicted = 4

	jobs := newFakeJobs(job)
	records := newFakeRecords()
	gen := &llm.Mock{Responses: []string{summaryJSON}}

	w := newTestWorker(jobs, records, gen)
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	// Two turns is below the usual summarization minimum, but the evicted
	// turns only survive in this transcript, so the summary still runs.
	require.Len(t, records.inserted, 1)
	assert.Equal(t, core.KindSummary, records.inserted[0].Kind)
}

func TestWorkerPermissionsGateSteps(t *testing.T) {
	jobs := newFakeJobs(testJob(core.Permissions{}))
	records := newFakeRecords()
	gen := &llm.Mock{Responses: []string{summaryJSON}}

	w := newTestWorker(jobs, records, gen)
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	// Neither summarize nor extract ran; the generator was never called.
	assert.Empty(t, gen.Prompts)
	assert.Empty(t, records.inserted)

	job, _ := jobs.GetJob(context.Background(), "job-1")
	assert.Equal(t, core.JobDone, job.Status)
}

func TestWorkerBlockedFactsSkipped(t *testing.T) {
	jobs := newFakeJobs(testJob(core.Permissions{WriteSemantic: true}))
	records := newFakeRecords()
	facts := `[
  {"fact": "deploy password: hunter2", "confidence": 0.9, "scope": "global"},
  {"fact": "user's email is jane@example.com", "confidence": 0.9, "scope": "global"},
  {"fact": "user prefers dark mode", "confidence": 0.9, "scope": "global"}
]`
	gen := &llm.Mock{Responses: []string{facts}}

	w := newTestWorker(jobs, records, gen)
	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, records.inserted, 2)
	assert.Contains(t, records.inserted[0].Content, "[REDACTED:EMAIL]")
	assert.NotContains(t, records.inserted[0].Content, "jane@example.com")
	assert.Equal(t, "user prefers dark mode", records.inserted[1].Content)
}

func TestWorkerDecayRefresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stale := core.MemoryRecord{
		ID: "stale", Kind: core.KindSemantic, Scope: core.ScopeConversation,
		SessionID: "conv-1", Decay: 0, LastAccessedAt: now.Add(-100 * time.Hour),
	}
	fresh := core.MemoryRecord{
		ID: "fresh", Kind: core.KindSemantic, Scope: core.ScopeConversation,
		SessionID: "conv-1", Decay: 0.13, LastAccessedAt: now,
	}

	jobs := newFakeJobs(testJob(core.Permissions{}))
	records := newFakeRecords(stale, fresh)
	w := newTestWorker(jobs, records, &llm.Mock{})

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	job, _ := jobs.GetJob(context.Background(), "job-1")
	require.NotNil(t, job.Result)
	assert.Equal(t, 1, job.Result.Updated)

	// Only the record that moved beyond the epsilon was written.
	assert.Contains(t, records.decays, "stale")
	assert.NotContains(t, records.decays, "fresh")
	assert.Greater(t, records.decays["stale"], 0.9)
}

func TestWorkerJobFailsWhenAllStepsFail(t *testing.T) {
	jobs := newFakeJobs(testJob(core.Permissions{}))
	records := newFakeRecords()
	records.queryErr = errors.New("store offline")

	w := newTestWorker(jobs, records, &llm.Mock{})
	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, _ := jobs.GetJob(context.Background(), "job-1")
	assert.Equal(t, core.JobFailed, job.Status)
	assert.True(t, strings.Contains(job.Error, "store offline"))
}

func TestParseSummaryResponse(t *testing.T) {
	t.Run("extracts embedded json", func(t *testing.T) {
		raw := "Here you go:\n" + summaryJSON + "\nHope that helps."
		parsed, err := parseSummaryResponse(raw)
		require.NoError(t, err)
		assert.Contains(t, parsed.Summary, "postgres")
		assert.Len(t, parsed.KeyFacts, 2)
	})

	t.Run("rejects missing summary", func(t *testing.T) {
		_, err := parseSummaryResponse(`{"key_facts": ["a"]}`)
		assert.Error(t, err)
	})

	t.Run("rejects no json", func(t *testing.T) {
		_, err := parseSummaryResponse("no structure here")
		assert.Error(t, err)
	})

	t.Run("truncates excess facts", func(t *testing.T) {
		raw := `{"summary": "s", "key_facts": ["1","2","3","4","5","6","7","8","9"]}`
		parsed, err := parseSummaryResponse(raw)
		require.NoError(t, err)
		assert.Len(t, parsed.KeyFacts, maxKeyFacts)
	})
}

func TestParseExtractionResponse(t *testing.T) {
	t.Run("normalizes confidence and scope", func(t *testing.T) {
		raw := `[{"fact": "a", "confidence": 7.5, "scope": "galaxy"}]`
		facts, err := parseExtractionResponse(raw)
		require.NoError(t, err)
		require.Len(t, facts, 1)
		assert.InDelta(t, 0.5, facts[0].Confidence, 1e-9)
		assert.Equal(t, string(core.ScopeConversation), facts[0].Scope)
	})

	t.Run("caps fact count", func(t *testing.T) {
		raw := `[{"fact":"1"},{"fact":"2"},{"fact":"3"},{"fact":"4"},{"fact":"5"},{"fact":"6"},{"fact":"7"}]`
		facts, err := parseExtractionResponse(raw)
		require.NoError(t, err)
		assert.Len(t, facts, maxExtractedFacts)
	})

	t.Run("rejects missing array", func(t *testing.T) {
		_, err := parseExtractionResponse("nothing structured")
		assert.Error(t, err)
	})
}

func TestFormatTranscript(t *testing.T) {
	turns := []core.Turn{
		{Role: "system", Content: "hidden"},
		{Role: "user", Content: "hello"},
		{Role: "tool", Content: "hidden too"},
		{Role: "assistant", Content: "hi"},
	}
	out := formatTranscript(turns)
	assert.Equal(t, "USER: hello\nASSISTANT: hi\n", out)
}
