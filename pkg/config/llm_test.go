package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelPricing_CostCents(t *testing.T) {
	p := ModelPricing{
		PromptCentsPerMillion:      100,
		CompletionCentsPerMillion:  300,
		CachedInputCentsPerMillion: 10,
		ThinkingCentsPerMillion:    300,
	}

	cost := p.CostCents(1_000_000, 500_000, 1_000_000, 0)
	assert.InDelta(t, 100+150+10, cost, 0.0001)
}

func TestGlobalModelConfig_ResolveFallsBackToWildcard(t *testing.T) {
	g := &GlobalModelConfig{
		Default: map[string]ProviderModel{
			"acme": {Provider: "anthropic", Model: "claude-sonnet"},
			"*":    {Provider: "openai", Model: "gpt-4"},
		},
	}

	pm, ok := g.Resolve("acme")
	assert.True(t, ok)
	assert.Equal(t, "anthropic", pm.Provider)

	pm, ok = g.Resolve("globex")
	assert.True(t, ok)
	assert.Equal(t, "openai", pm.Provider)
}

func TestGlobalModelConfig_ResolveUnconfigured(t *testing.T) {
	g := &GlobalModelConfig{}
	_, ok := g.Resolve("acme")
	assert.False(t, ok)

	var nilCfg *GlobalModelConfig
	_, ok = nilCfg.Resolve("acme")
	assert.False(t, ok)
}

func TestGlobalModelConfig_PricingForUnknownPairIsZero(t *testing.T) {
	g := &GlobalModelConfig{}
	assert.Equal(t, ModelPricing{}, g.PricingFor("anthropic", "claude-sonnet"))
}
