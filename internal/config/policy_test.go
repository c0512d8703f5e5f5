package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPolicy() Policy {
	return Policy{
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

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, validPolicy().Validate())

	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"negative budget", func(p *Policy) { p.LongTermTokens = -1 }},
		{"threshold above one", func(p *Policy) { p.RelevanceThreshold = 1.2 }},
		{"threshold below zero", func(p *Policy) { p.RelevanceThreshold = -0.1 }},
		{"pressure trigger above one", func(p *Policy) { p.PressureTrigger = 1.5 }},
		{"compaction target zero", func(p *Policy) { p.CompactionTarget = 0 }},
		{"decay ceiling above one", func(p *Policy) { p.DecayCeiling = 1.01 }},
		{"window floor below one", func(p *Policy) { p.MinWindowTurns = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPolicy()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestPolicyZeroBudgetsAreLegal(t *testing.T) {
	p := validPolicy()
	p.LongTermTokens = 0
	p.SkillTokens = 0
	assert.NoError(t, p.Validate())
}

func TestPolicyTotalBudget(t *testing.T) {
	assert.Equal(t, 2048+1024+512+1024, validPolicy().TotalBudget())
}
