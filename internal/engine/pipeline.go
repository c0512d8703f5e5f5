package engine

import (
	"context"
	"fmt"

	"github.com/helicon-ai/mnemo/internal/config"
	"github.com/helicon-ai/mnemo/internal/core"
	"github.com/helicon-ai/mnemo/pkg/log"
)

// AssembleRequest is one context-window assembly call.
type AssembleRequest struct {
	ConversationID string
	ProjectID      string
	UserID         string
	Query          string
	Scopes         []core.Scope
	TopK           int
	// Policy, when set, replaces the session default for this request
	// (budgets, threshold, compaction). Callers validate it first.
	Policy *config.Policy
}

// AssembleResult bundles the packed prompt with the compaction outcome and
// the consolidation signal for this request.
type AssembleResult struct {
	Prompt     *core.PackedPrompt  `json:"prompt"`
	Compaction CompactionResult    `json:"compaction"`
	Signal     ConsolidationSignal `json:"consolidation"`
	// Snapshot is the window as it stood before compaction evicted
	// anything, populated only when Signal asks for consolidation. The
	// enqueued job must summarize from this copy: the evicted turns no
	// longer exist in storage.
	Snapshot []core.Turn `json:"-"`
}

// Pipeline wires the per-request retrieval stages together: compact window,
// aggregate and score, pack under budgets. Requests share no mutable state;
// each call computes its own candidate list and packs independently.
type Pipeline struct {
	policy     config.Policy
	turns      core.TurnRepository
	aggregator *Aggregator
	packer     *Packer
	skills     *SkillSet
	embedder   core.Embedder // optional
	baseText   string
}

func NewPipeline(
	policy config.Policy,
	turns core.TurnRepository,
	aggregator *Aggregator,
	packer *Packer,
	skills *SkillSet,
	embedder core.Embedder,
	baseText string,
) *Pipeline {
	return &Pipeline{
		policy:     policy,
		turns:      turns,
		aggregator: aggregator,
		packer:     packer,
		skills:     skills,
		embedder:   embedder,
		baseText:   baseText,
	}
}

// Assemble produces the context window for one model call. Collaborator
// failures degrade: a missing embedder means lexical scoring, an empty
// candidate list means a prompt of instructions plus history. The only
// errors returned are storage failures on the window itself.
func (p *Pipeline) Assemble(ctx context.Context, req AssembleRequest) (*AssembleResult, error) {
	logger := log.FromCtx(ctx)

	policy := p.policy
	packer := p.packer
	if req.Policy != nil {
		policy = *req.Policy
		packer = p.packer.WithPolicy(policy)
	}

	window, err := p.turns.Window(ctx, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load window: %w", err)
	}
	snapshot := window

	compaction, window, err := NewCompactor(p.turns, policy).Compact(ctx, req.ConversationID, window)
	if err != nil {
		// Eviction failure is not fatal for assembly; the oversized window
		// is still tail-selected under budget.
		logger.Warn().Err(err).Msg("window compaction failed")
	}

	fragments := p.skills.Match(req.Query)

	reqCtx := core.RequestContext{
		ConversationID: req.ConversationID,
		ProjectID:      req.ProjectID,
		UserID:         req.UserID,
		Scopes:         req.Scopes,
		SkillTags:      Tags(fragments),
	}
	if p.embedder != nil {
		if vec, err := p.embedder.Embed(ctx, req.Query); err != nil {
			logger.Warn().Err(err).Msg("query embedding failed, lexical scoring only")
		} else {
			reqCtx.QueryEmbedding = vec
		}
	}

	candidates, err := p.aggregator.Retrieve(ctx, req.Query, reqCtx, window, req.TopK)
	if err != nil {
		logger.Warn().Err(err).Msg("aggregation degraded")
		candidates = nil
	}

	prompt := packer.Pack(PackRequest{
		BaseInstructions: p.baseText,
		UserInput:        req.Query,
		Candidates:       candidates,
		Skills:           fragments,
		Window:           window,
	})

	signal := ShouldConsolidate(compaction.Pressure, policy.PressureTrigger, false, false)

	logger.Debug().
		Int("packed", len(prompt.Packed)).
		Int("dropped", len(prompt.Dropped)).
		Int("total_tokens", prompt.Breakdown.Total).
		Msg("context assembled")

	result := &AssembleResult{Prompt: prompt, Compaction: compaction, Signal: signal}
	if signal.Enqueue {
		result.Snapshot = snapshot
	}
	return result, nil
}
