package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/pkg/tokens"
)

func newTestPipeline(t *testing.T, turns *fakeTurnRepo, records *fakeRecordRepo) *Pipeline {
	t.Helper()
	policy := testPolicy()
	skills, err := NewSkillSet([]skillDef{
		{ID: "code", Pattern: "review", Priority: 1, Content: "check error handling first", Tags: []string{"code"}},
	}, tokens.HeuristicCounter{})
	require.NoError(t, err)

	return NewPipeline(
		policy,
		turns,
		NewAggregator(records, nil, NewScorer(), policy.DecayCeiling),
		NewPacker(policy, nopRedactor{}, tokens.HeuristicCounter{}),
		skills,
		nil,
		"Base instructions.",
	)
}

func TestAssemble(t *testing.T) {
	turns := newFakeTurnRepo()
	records := &fakeRecordRepo{records: []core.MemoryRecord{
		{ID: "r1", Kind: core.KindSummary, Scope: core.ScopeGlobal, Content: "user asked for a code review checklist", Tokens: 8, LastAccessedAt: time.Now()},
	}}
	turns.windows["conv"] = []core.Turn{
		{ID: 1, Role: "user", Content: "hello", Tokens: 2},
		{ID: 2, Role: "assistant", Content: "hi there", Tokens: 3},
	}

	p := newTestPipeline(t, turns, records)
	result, err := p.Assemble(context.Background(), AssembleRequest{
		ConversationID: "conv",
		Query:          "review my checklist",
	})
	require.NoError(t, err)

	// Skill fragment matched and landed in the system text.
	assert.Contains(t, result.Prompt.System, "check error handling first")
	// The long-term record surfaced as a context block.
	require.NotEmpty(t, result.Prompt.Context)
	assert.Contains(t, result.Prompt.Context[0].Content, "code review checklist")
	// Window pressure is low, nothing to consolidate.
	assert.False(t, result.Signal.Enqueue)
	assert.Equal(t, 0, result.Compaction.Evicted)
}

func TestAssembleUnderPressure(t *testing.T) {
	turns := newFakeTurnRepo()
	var window []core.Turn
	for i := 1; i <= 10; i++ {
		window = append(window, core.Turn{ID: int64(i), Role: "user", Content: "filler", Tokens: 250})
	}
	turns.windows["conv"] = window

	p := newTestPipeline(t, turns, &fakeRecordRepo{})
	result, err := p.Assemble(context.Background(), AssembleRequest{
		ConversationID: "conv",
		Query:          "anything",
	})
	require.NoError(t, err)

	assert.Greater(t, result.Compaction.Evicted, 0)
	assert.True(t, result.Signal.Enqueue)
	assert.Equal(t, core.ReasonTokenPressure, result.Signal.Reason)

	// The snapshot predates eviction so the consolidation job can still
	// summarize the turns that no longer exist in storage.
	require.Len(t, result.Snapshot, 10)
	assert.Equal(t, int64(1), result.Snapshot[0].ID)
	assert.Less(t, len(turns.windows["conv"]), 10)
}

func TestAssembleNoSnapshotWithoutSignal(t *testing.T) {
	turns := newFakeTurnRepo()
	turns.windows["conv"] = []core.Turn{{ID: 1, Role: "user", Content: "hello", Tokens: 2}}

	p := newTestPipeline(t, turns, &fakeRecordRepo{})
	result, err := p.Assemble(context.Background(), AssembleRequest{
		ConversationID: "conv",
		Query:          "anything",
	})
	require.NoError(t, err)
	assert.False(t, result.Signal.Enqueue)
	assert.Nil(t, result.Snapshot)
}

func TestAssembleRequestPolicyOverride(t *testing.T) {
	turns := newFakeTurnRepo()
	turns.windows["conv"] = []core.Turn{{ID: 1, Role: "user", Content: "hello", Tokens: 2}}
	records := &fakeRecordRepo{records: []core.MemoryRecord{
		{ID: "r1", Kind: core.KindSummary, Scope: core.ScopeGlobal, Content: "user asked for a code review checklist", Tokens: 8, LastAccessedAt: time.Now()},
	}}

	p := newTestPipeline(t, turns, records)

	strict := testPolicy()
	strict.RelevanceThreshold = 0.99
	result, err := p.Assemble(context.Background(), AssembleRequest{
		ConversationID: "conv",
		Query:          "review my checklist",
		Policy:         &strict,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Prompt.Context)

	// The same request under the session default surfaces the record.
	result, err = p.Assemble(context.Background(), AssembleRequest{
		ConversationID: "conv",
		Query:          "review my checklist",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Prompt.Context)
}

func TestAssembleDegradesOnAggregationFailure(t *testing.T) {
	turns := newFakeTurnRepo()
	turns.windows["conv"] = []core.Turn{{ID: 1, Role: "user", Content: "hello", Tokens: 2}}
	records := &fakeRecordRepo{queryErr: errors.New("store offline")}

	p := newTestPipeline(t, turns, records)
	result, err := p.Assemble(context.Background(), AssembleRequest{
		ConversationID: "conv",
		Query:          "anything at all",
	})
	require.NoError(t, err)

	// No memory blocks, but instructions and history still assemble.
	assert.Empty(t, result.Prompt.Context)
	assert.Contains(t, result.Prompt.System, "Base instructions.")
	assert.Len(t, result.Prompt.History, 1)
}
