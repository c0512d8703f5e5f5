package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/helicon-ai/mnemo/internal/config"
	"github.com/helicon-ai/mnemo/internal/core"
)

// Drop reasons. Threshold drops tag the threshold value that was in effect,
// since policies may change it per session.
const (
	DropSkillBudget  = "skill_budget_exceeded"
	DropMemoryBudget = "memory_budget_exceeded"
)

func dropBelowThreshold(threshold float64) string {
	return fmt.Sprintf("below_threshold:%.2f", threshold)
}

// Redactor masks sensitive spans before content is shown to the model.
type Redactor interface {
	Redact(text string) string
}

// PackRequest carries everything one packing pass needs. Packing is pure:
// identical inputs produce byte-identical output.
type PackRequest struct {
	BaseInstructions string
	UserInput        string
	Candidates       []core.ScoredCandidate
	Skills           []SkillFragment
	Window           []core.Turn
}

// Packer runs the gate → rank → greedy-pack → assemble pipeline under the
// session policy's nested budgets.
type Packer struct {
	policy   config.Policy
	redactor Redactor
	counter  tokenCounter
}

func NewPacker(policy config.Policy, redactor Redactor, counter tokenCounter) *Packer {
	return &Packer{
		policy:   policy,
		redactor: redactor,
		counter:  counter,
	}
}

// WithPolicy returns a packer that shares the redactor and counter but packs
// under a different policy, for per-request policy overrides.
func (p *Packer) WithPolicy(policy config.Policy) *Packer {
	return &Packer{
		policy:   policy,
		redactor: p.redactor,
		counter:  p.counter,
	}
}

// Pack never fails: budget exhaustion is a designed outcome recorded as
// dropped candidates, not an error.
func (p *Packer) Pack(req PackRequest) *core.PackedPrompt {
	viable, dropped := p.gate(req.Candidates)
	rank(viable)

	skills, skillsDropped := p.packSkills(req.Skills)
	memory, memoryDropped := p.packMemory(viable)
	dropped = append(dropped, skillsDropped...)
	dropped = append(dropped, memoryDropped...)

	return p.assemble(req, skills, memory, dropped)
}

// gate partitions candidates at the relevance threshold.
func (p *Packer) gate(candidates []core.ScoredCandidate) (viable, dropped []core.ScoredCandidate) {
	threshold := p.policy.RelevanceThreshold
	for _, c := range candidates {
		if c.Final >= threshold {
			viable = append(viable, c)
			continue
		}
		c.Dropped = true
		c.DropReason = dropBelowThreshold(threshold)
		dropped = append(dropped, c)
	}
	return viable, dropped
}

func rank(candidates []core.ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Final != candidates[j].Final {
			return candidates[i].Final > candidates[j].Final
		}
		return candidates[i].RecordID < candidates[j].RecordID
	})
}

// packSkills walks the priority-ordered fragments, accepting while the
// cumulative size stays within the skill budget. Classic greedy, not
// optimal: ordering must stay stable, explainable, and cheap.
func (p *Packer) packSkills(fragments []SkillFragment) (packed, dropped []core.ScoredCandidate) {
	used := 0
	for _, f := range fragments {
		c := core.ScoredCandidate{
			RecordID: f.ID,
			Origin:   core.OriginSkill,
			Content:  f.Content,
			Tokens:   f.Tokens,
			Scores:   core.ScoreVector{Relevance: skillScore},
			Final:    skillScore,
			Citation: &core.Citation{
				Origin:    core.OriginSkill,
				Relevance: skillScore,
				Excerpt:   excerpt(f.Content),
			},
		}
		if used+f.Tokens > p.policy.SkillTokens {
			c.Dropped = true
			c.DropReason = DropSkillBudget
			dropped = append(dropped, c)
			continue
		}
		used += f.Tokens
		packed = append(packed, c)
	}
	return packed, dropped
}

func (p *Packer) packMemory(candidates []core.ScoredCandidate) (packed, dropped []core.ScoredCandidate) {
	used := 0
	for _, c := range candidates {
		if used+c.Tokens > p.policy.LongTermTokens {
			c.Dropped = true
			c.DropReason = DropMemoryBudget
			dropped = append(dropped, c)
			continue
		}
		used += c.Tokens
		packed = append(packed, c)
	}
	return packed, dropped
}

func (p *Packer) assemble(req PackRequest, skills, memory, dropped []core.ScoredCandidate) *core.PackedPrompt {
	var system strings.Builder
	system.WriteString(strings.TrimSpace(req.BaseInstructions))
	for _, s := range skills {
		if system.Len() > 0 {
			system.WriteString("\n\n")
		}
		system.WriteString(s.Content)
	}

	blocks := make([]core.ContextBlock, 0, len(memory))
	for i, c := range memory {
		blocks = append(blocks, core.ContextBlock{
			Label:    fmt.Sprintf("memory-%d", i+1),
			Content:  p.redactor.Redact(c.Content),
			Citation: *c.Citation,
		})
	}

	history := SelectTail(req.Window, p.policy.ShortTermTokens)

	breakdown := core.TokenBreakdown{
		System: p.counter.Count(system.String()),
		User:   p.counter.Count(req.UserInput),
	}
	for _, b := range blocks {
		breakdown.Context += p.counter.Count(b.Content)
	}
	for _, t := range history {
		breakdown.History += t.Tokens
	}
	breakdown.Total = breakdown.System + breakdown.Context + breakdown.History + breakdown.User
	breakdown.Remaining = p.policy.TotalBudget() - breakdown.Total
	if breakdown.Remaining < 0 {
		breakdown.Remaining = 0
	}

	packed := make([]core.ScoredCandidate, 0, len(skills)+len(memory))
	packed = append(packed, skills...)
	packed = append(packed, memory...)

	return &core.PackedPrompt{
		System:    system.String(),
		Context:   blocks,
		History:   history,
		User:      req.UserInput,
		Breakdown: breakdown,
		Packed:    packed,
		Dropped:   dropped,
	}
}
