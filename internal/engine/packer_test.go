package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helicon-ai/mnemo/internal/config"
	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/pkg/tokens"
)

type nopRedactor struct{}

func (nopRedactor) Redact(text string) string { return text }

type markingRedactor struct{}

func (markingRedactor) Redact(text string) string { return "masked:" + text }

func testPolicy() config.Policy {
	return config.Policy{
		ShortTermTokens:    2048,
		LongTermTokens:     1024,
		SkillTokens:        512,
		ResponseReserve:    1024,
		RelevanceThreshold: 0.35,
		PressureTrigger:    0.8,
		CompactionTarget:   0.6,
		MinWindowTurns:     2,
		DecayCeiling:       0.9,
	}
}

func memCandidate(id string, tokens int, final float64) core.ScoredCandidate {
	return core.ScoredCandidate{
		RecordID: id,
		Origin:   core.OriginLongTerm,
		Content:  "content of " + id,
		Tokens:   tokens,
		Scores:   core.ScoreVector{Relevance: final},
		Final:    final,
		Citation: &core.Citation{Origin: core.OriginLongTerm, Relevance: final, Excerpt: id},
	}
}

func TestPackDeterministic(t *testing.T) {
	p := NewPacker(testPolicy(), nopRedactor{}, tokens.HeuristicCounter{})
	req := PackRequest{
		BaseInstructions: "Base instructions.",
		UserInput:        "what do you remember",
		Candidates: []core.ScoredCandidate{
			memCandidate("b", 100, 0.7),
			memCandidate("a", 100, 0.7),
			memCandidate("c", 100, 0.9),
		},
		Window: []core.Turn{{ID: 1, Role: "user", Content: "hi", Tokens: 2}},
	}

	first := p.Pack(req)
	second := p.Pack(req)
	assert.Equal(t, first, second)

	// Equal finals fall back to record id ordering.
	require.Len(t, first.Packed, 3)
	assert.Equal(t, "c", first.Packed[0].RecordID)
	assert.Equal(t, "a", first.Packed[1].RecordID)
	assert.Equal(t, "b", first.Packed[2].RecordID)
}

func TestPackThresholdGate(t *testing.T) {
	p := NewPacker(testPolicy(), nopRedactor{}, tokens.HeuristicCounter{})
	out := p.Pack(PackRequest{
		Candidates: []core.ScoredCandidate{
			memCandidate("keep", 10, 0.40),
			memCandidate("drop", 10, 0.20),
		},
	})

	require.Len(t, out.Packed, 1)
	assert.Equal(t, "keep", out.Packed[0].RecordID)

	require.Len(t, out.Dropped, 1)
	assert.Equal(t, "drop", out.Dropped[0].RecordID)
	assert.True(t, out.Dropped[0].Dropped)
	assert.Equal(t, "below_threshold:0.35", out.Dropped[0].DropReason)
}

func TestPackMemoryBudget(t *testing.T) {
	policy := testPolicy()
	policy.LongTermTokens = 40
	policy.RelevanceThreshold = 0.72
	p := NewPacker(policy, nopRedactor{}, tokens.HeuristicCounter{})

	// Over threshold but over budget: dropped for the budget, not relevance.
	out := p.Pack(PackRequest{
		Candidates: []core.ScoredCandidate{memCandidate("big", 50, 0.80)},
	})

	assert.Empty(t, out.Packed)
	require.Len(t, out.Dropped, 1)
	assert.Equal(t, DropMemoryBudget, out.Dropped[0].DropReason)
}

func TestPackSkillBudgetGreedy(t *testing.T) {
	policy := testPolicy()
	policy.SkillTokens = 30
	p := NewPacker(policy, nopRedactor{}, tokens.HeuristicCounter{})

	out := p.Pack(PackRequest{
		Skills: []SkillFragment{
			{ID: "s1", Content: "first", Tokens: 20},
			{ID: "s2", Content: "second", Tokens: 20},
			{ID: "s3", Content: "third", Tokens: 10},
		},
	})

	// s2 exceeds the remaining budget, s3 still fits after it.
	var packedIDs, droppedIDs []string
	for _, c := range out.Packed {
		packedIDs = append(packedIDs, c.RecordID)
	}
	for _, c := range out.Dropped {
		droppedIDs = append(droppedIDs, c.RecordID)
	}
	assert.Equal(t, []string{"s1", "s3"}, packedIDs)
	assert.Equal(t, []string{"s2"}, droppedIDs)
	assert.Equal(t, DropSkillBudget, out.Dropped[0].DropReason)
}

func TestPackRedactsContextBlocks(t *testing.T) {
	p := NewPacker(testPolicy(), markingRedactor{}, tokens.HeuristicCounter{})
	out := p.Pack(PackRequest{
		Candidates: []core.ScoredCandidate{memCandidate("a", 10, 0.9)},
	})

	require.Len(t, out.Context, 1)
	assert.Equal(t, "memory-1", out.Context[0].Label)
	assert.True(t, strings.HasPrefix(out.Context[0].Content, "masked:"))
	// The trace keeps the raw candidate; only the assembled block is masked.
	assert.Equal(t, "content of a", out.Packed[0].Content)
}

func TestPackBreakdown(t *testing.T) {
	counter := tokens.HeuristicCounter{}
	p := NewPacker(testPolicy(), nopRedactor{}, counter)

	window := []core.Turn{
		{ID: 1, Role: "user", Content: "first message", Tokens: 4},
		{ID: 2, Role: "assistant", Content: "second message", Tokens: 4},
	}
	out := p.Pack(PackRequest{
		BaseInstructions: "You are helpful.",
		UserInput:        "remind me about postgres",
		Candidates:       []core.ScoredCandidate{memCandidate("a", 10, 0.9)},
		Window:           window,
	})

	assert.Equal(t, counter.Count(out.System), out.Breakdown.System)
	assert.Equal(t, counter.Count(out.Context[0].Content), out.Breakdown.Context)
	assert.Equal(t, 8, out.Breakdown.History)
	assert.Equal(t, counter.Count("remind me about postgres"), out.Breakdown.User)
	sum := out.Breakdown.System + out.Breakdown.Context + out.Breakdown.History + out.Breakdown.User
	assert.Equal(t, sum, out.Breakdown.Total)
	assert.Equal(t, testPolicy().TotalBudget()-sum, out.Breakdown.Remaining)
}

func TestPackRemainingClampedAtZero(t *testing.T) {
	policy := testPolicy()
	policy.ShortTermTokens = 10
	policy.LongTermTokens = 0
	policy.SkillTokens = 0
	policy.ResponseReserve = 0
	p := NewPacker(policy, nopRedactor{}, tokens.HeuristicCounter{})

	out := p.Pack(PackRequest{
		BaseInstructions: strings.Repeat("instructions ", 50),
		Window:           []core.Turn{{ID: 1, Content: "short", Tokens: 2}},
	})
	assert.Equal(t, 0, out.Breakdown.Remaining)
}
