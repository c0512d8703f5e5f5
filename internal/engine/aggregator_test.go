package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helicon-ai/mnemo/internal/core"
)

type fakeRecordRepo struct {
	mu       sync.Mutex
	records  []core.MemoryRecord
	touched  []string
	queryErr error
}

func (r *fakeRecordRepo) QueryRecords(ctx context.Context, filter core.RecordFilter) ([]core.MemoryRecord, error) {
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	if len(filter.IDs) > 0 {
		wanted := make(map[string]struct{}, len(filter.IDs))
		for _, id := range filter.IDs {
			wanted[id] = struct{}{}
		}
		var out []core.MemoryRecord
		for _, rec := range r.records {
			if _, ok := wanted[rec.ID]; ok {
				out = append(out, rec)
			}
		}
		return out, nil
	}
	return r.records, nil
}

func (r *fakeRecordRepo) InsertRecord(ctx context.Context, record core.MemoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeRecordRepo) UpdateDecay(ctx context.Context, id string, score float64) error {
	return nil
}

func (r *fakeRecordRepo) Touch(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touched = append(r.touched, id)
	return nil
}

func (r *fakeRecordRepo) touchedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.touched...)
}

type fakeIndex struct {
	hits []core.SemanticHit
	err  error
}

func (f *fakeIndex) Search(ctx context.Context, queryEmbedding []float32, threshold float64, count int) ([]core.SemanticHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func testRecords(now time.Time) []core.MemoryRecord {
	return []core.MemoryRecord{
		{ID: "rec-exact", Kind: core.KindSemantic, Scope: core.ScopeGlobal, Content: "postgres tuning guide", Tokens: 5, LastAccessedAt: now},
		{ID: "rec-partial", Kind: core.KindSemantic, Scope: core.ScopeGlobal, Content: "postgres only notes", Tokens: 5, LastAccessedAt: now},
		{ID: "rec-off", Kind: core.KindSemantic, Scope: core.ScopeGlobal, Content: "weekend cooking recipe", Tokens: 5, LastAccessedAt: now},
	}
}

func TestRetrieveRanksByScore(t *testing.T) {
	now := time.Now()
	repo := &fakeRecordRepo{records: testRecords(now)}
	agg := NewAggregator(repo, nil, fixedScorer(now), 0.9)

	candidates, err := agg.Retrieve(context.Background(), "postgres tuning", core.RequestContext{}, nil, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, "rec-exact", candidates[0].RecordID)
	assert.Equal(t, "rec-partial", candidates[1].RecordID)
	assert.Equal(t, "rec-off", candidates[2].RecordID)
	assert.Equal(t, core.OriginLongTerm, candidates[0].Origin)
	require.NotNil(t, candidates[0].Citation)
	assert.Equal(t, 1.0, candidates[0].Citation.Relevance)
}

func TestRetrieveTopKTruncation(t *testing.T) {
	now := time.Now()
	repo := &fakeRecordRepo{records: testRecords(now)}
	agg := NewAggregator(repo, nil, fixedScorer(now), 0.9)

	candidates, err := agg.Retrieve(context.Background(), "postgres tuning", core.RequestContext{}, nil, 2)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
	assert.Equal(t, "rec-exact", candidates[0].RecordID)
}

func TestRetrieveDeduplicatesSources(t *testing.T) {
	now := time.Now()
	repo := &fakeRecordRepo{records: testRecords(now)}
	index := &fakeIndex{hits: []core.SemanticHit{{ID: "rec-exact", Similarity: 0.95}}}
	agg := NewAggregator(repo, index, fixedScorer(now), 0.9)

	req := core.RequestContext{QueryEmbedding: []float32{1, 0}}
	candidates, err := agg.Retrieve(context.Background(), "postgres tuning", req, nil, 10)
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, c := range candidates {
		seen[c.RecordID]++
	}
	assert.Equal(t, 1, seen["rec-exact"])
}

func TestRetrieveIndexFailureDegrades(t *testing.T) {
	now := time.Now()
	repo := &fakeRecordRepo{records: testRecords(now)}
	index := &fakeIndex{err: errors.New("index offline")}
	agg := NewAggregator(repo, index, fixedScorer(now), 0.9)

	req := core.RequestContext{QueryEmbedding: []float32{1, 0}}
	candidates, err := agg.Retrieve(context.Background(), "postgres tuning", req, nil, 10)
	require.NoError(t, err)
	assert.Len(t, candidates, 3)
}

func TestRetrieveStoreFailureIsFatal(t *testing.T) {
	repo := &fakeRecordRepo{queryErr: errors.New("disk gone")}
	agg := NewAggregator(repo, nil, NewScorer(), 0.9)

	_, err := agg.Retrieve(context.Background(), "anything", core.RequestContext{}, nil, 10)
	assert.Error(t, err)
}

func TestRetrieveShortTermTurns(t *testing.T) {
	now := time.Now()
	repo := &fakeRecordRepo{}
	agg := NewAggregator(repo, nil, fixedScorer(now), 0.9)

	window := []core.Turn{
		{ID: 7, Role: "user", Content: "we discussed postgres tuning earlier", Tokens: 6, CreatedAt: now},
		{ID: 8, Role: "assistant", Content: "completely unrelated chatter", Tokens: 4, CreatedAt: now},
	}
	candidates, err := agg.Retrieve(context.Background(), "postgres tuning", core.RequestContext{}, window, 10)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "turn:7", candidates[0].RecordID)
	assert.Equal(t, core.OriginShortTerm, candidates[0].Origin)
}

func TestRetrieveTouchesLongTermAsync(t *testing.T) {
	now := time.Now()
	repo := &fakeRecordRepo{records: testRecords(now)}
	agg := NewAggregator(repo, nil, fixedScorer(now), 0.9)

	window := []core.Turn{{ID: 1, Role: "user", Content: "postgres tuning question", Tokens: 3, CreatedAt: now}}
	_, err := agg.Retrieve(context.Background(), "postgres tuning", core.RequestContext{}, window, 10)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		touched := repo.touchedIDs()
		for _, id := range touched {
			if id == "turn:1" {
				return false
			}
		}
		return len(touched) == 3
	}, 2*time.Second, 10*time.Millisecond)
}
