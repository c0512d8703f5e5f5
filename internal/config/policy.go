package config

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/helicon-ai/mnemo/pkg/log"
)

// Policy is the per-session budgeting policy. Budget exhaustion is a
// designed outcome, not an error; invalid policy values are the one thing
// that fails fast at load time instead of mid-request.
type Policy struct {
	ShortTermTokens int `env:"MNEMO_SHORT_TERM_TOKENS" envDefault:"2048"`
	LongTermTokens  int `env:"MNEMO_LONG_TERM_TOKENS" envDefault:"1024"`
	SkillTokens     int `env:"MNEMO_SKILL_TOKENS" envDefault:"512"`
	ResponseReserve int `env:"MNEMO_RESPONSE_RESERVE" envDefault:"1024"`

	// RelevanceThreshold gates candidates before packing. A "deep" policy
	// may lower it to admit more context.
	RelevanceThreshold float64 `env:"MNEMO_RELEVANCE_THRESHOLD" envDefault:"0.35"`

	// PressureTrigger is the fraction of the window budget at which
	// compaction and consolidation kick in.
	PressureTrigger float64 `env:"MNEMO_PRESSURE_TRIGGER" envDefault:"0.8"`

	// CompactionTarget is the fraction of the window budget the compactor
	// shrinks the stored window down to.
	CompactionTarget float64 `env:"MNEMO_COMPACTION_TARGET" envDefault:"0.6"`

	// MinWindowTurns is never evicted below, so the window cannot go empty.
	MinWindowTurns int `env:"MNEMO_MIN_WINDOW_TURNS" envDefault:"2"`

	// DecayCeiling excludes records at or above this staleness from
	// retrieval entirely.
	DecayCeiling float64 `env:"MNEMO_DECAY_CEILING" envDefault:"0.9"`

	// StrictPrivacy additionally blocks episodic writes on volatile
	// sentiment.
	StrictPrivacy bool `env:"MNEMO_STRICT_PRIVACY" envDefault:"false"`
}

func NewPolicy(ctx context.Context) *Policy {
	p := &Policy{}
	if err := env.Parse(p); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse budget policy")
	}
	if err := p.Validate(); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("invalid budget policy")
	}
	return p
}

func (p Policy) Validate() error {
	if p.ShortTermTokens < 0 || p.LongTermTokens < 0 || p.SkillTokens < 0 || p.ResponseReserve < 0 {
		return fmt.Errorf("budgets must be non-negative: short=%d long=%d skill=%d reserve=%d",
			p.ShortTermTokens, p.LongTermTokens, p.SkillTokens, p.ResponseReserve)
	}
	if p.RelevanceThreshold < 0 || p.RelevanceThreshold > 1 {
		return fmt.Errorf("relevance threshold %v out of [0,1]", p.RelevanceThreshold)
	}
	if p.PressureTrigger < 0 || p.PressureTrigger > 1 {
		return fmt.Errorf("pressure trigger %v out of [0,1]", p.PressureTrigger)
	}
	if p.CompactionTarget <= 0 || p.CompactionTarget > 1 {
		return fmt.Errorf("compaction target %v out of (0,1]", p.CompactionTarget)
	}
	if p.DecayCeiling <= 0 || p.DecayCeiling > 1 {
		return fmt.Errorf("decay ceiling %v out of (0,1]", p.DecayCeiling)
	}
	if p.MinWindowTurns < 1 {
		return fmt.Errorf("minimum window turns %d must be at least 1", p.MinWindowTurns)
	}
	return nil
}

// TotalBudget is the denominator for overall budget-pressure reporting.
func (p Policy) TotalBudget() int {
	return p.ShortTermTokens + p.LongTermTokens + p.SkillTokens + p.ResponseReserve
}
