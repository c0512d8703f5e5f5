package engine

import (
	"context"
	"fmt"

	"github.com/helicon-ai/mnemo/internal/config"
	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/pkg/log"
)

// SelectTail keeps the most recent turns that fit the budget, walking from
// the tail backward. Older turns are silently excluded from the prompt but
// remain stored.
func SelectTail(window []core.Turn, budget int) []core.Turn {
	total := 0
	start := len(window)
	for i := len(window) - 1; i >= 0; i-- {
		if total+window[i].Tokens > budget {
			break
		}
		total += window[i].Tokens
		start = i
	}
	return window[start:]
}

// CompactionResult reports what an eviction pass did, so the consolidation
// worker can be told that history was lost and should be durably
// summarized.
type CompactionResult struct {
	Pressure     float64 `json:"pressure"`
	Evicted      int     `json:"evicted"`
	Pass         int     `json:"compaction_pass"`
	WindowTokens int     `json:"window_tokens"`
}

// Compactor physically evicts the oldest stored turns once window pressure
// crosses the trigger ratio.
type Compactor struct {
	turns  core.TurnRepository
	policy config.Policy
}

func NewCompactor(turns core.TurnRepository, policy config.Policy) *Compactor {
	return &Compactor{turns: turns, policy: policy}
}

// Compact checks window pressure and, when the trigger ratio is crossed,
// evicts from the oldest end until the stored window fits the reduced
// target, always retaining the minimum floor of turns. The per-conversation
// compaction pass counter increments exactly once per eviction pass.
func (c *Compactor) Compact(ctx context.Context, conversationID string, window []core.Turn) (CompactionResult, []core.Turn, error) {
	total := 0
	for _, t := range window {
		total += t.Tokens
	}

	result := CompactionResult{WindowTokens: total}
	if c.policy.ShortTermTokens == 0 {
		return result, window, nil
	}
	result.Pressure = float64(total) / float64(c.policy.ShortTermTokens)
	if result.Pressure < c.policy.PressureTrigger {
		return result, window, nil
	}

	target := int(c.policy.CompactionTarget * float64(c.policy.ShortTermTokens))
	evict := 0
	for evict < len(window)-c.policy.MinWindowTurns && total > target {
		total -= window[evict].Tokens
		evict++
	}
	if evict == 0 {
		return result, window, nil
	}

	if err := c.turns.EvictOldest(ctx, conversationID, evict); err != nil {
		return result, window, fmt.Errorf("evict turns: %w", err)
	}
	pass, err := c.turns.IncrementCompactionPass(ctx, conversationID)
	if err != nil {
		return result, window, fmt.Errorf("bump compaction pass: %w", err)
	}

	result.Evicted = evict
	result.Pass = pass
	result.WindowTokens = total

	log.FromCtx(ctx).Info().
		Str("conversation", conversationID).
		Int("evicted", evict).
		Int("pass", pass).
		Float64("pressure", result.Pressure).
		Msg("window compacted")

	return result, window[evict:], nil
}
