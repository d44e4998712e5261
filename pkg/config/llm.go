package config

// ModelPricing gives the per-million-token price, in cents, for a single
// provider/model pair, used by the LLM Gateway's cost computation.
type ModelPricing struct {
	PromptCentsPerMillion        float64 `yaml:"prompt_cents_per_million"`
	CompletionCentsPerMillion    float64 `yaml:"completion_cents_per_million"`
	CachedInputCentsPerMillion   float64 `yaml:"cached_input_cents_per_million,omitempty"`
	ThinkingCentsPerMillion      float64 `yaml:"thinking_cents_per_million,omitempty"`
}

// CostCents computes the UsageRecord cost for the given token counts.
func (p ModelPricing) CostCents(promptTokens, completionTokens, cachedInputTokens, thinkingTokens int) float64 {
	return float64(promptTokens)*p.PromptCentsPerMillion/1_000_000 +
		float64(completionTokens)*p.CompletionCentsPerMillion/1_000_000 +
		float64(cachedInputTokens)*p.CachedInputCentsPerMillion/1_000_000 +
		float64(thinkingTokens)*p.ThinkingCentsPerMillion/1_000_000
}

// GlobalModelConfig is the org-scoped fallback provider/model used by the
// LLM Gateway when a request's options don't specify one (spec.md §4.4).
// It is populated from settings.yaml's `model` section or from the
// MODEL_CONFIG_GLOBAL_JSON environment variable; when both are present the
// env var replaces the YAML value and a warning is logged on every load
// (startup and each reload). There is no database-backed source.
type GlobalModelConfig struct {
	// Default is keyed by org slug; "*" is the fallback for orgs with no
	// specific entry.
	Default map[string]ProviderModel `yaml:"default"`
	// Pricing is keyed by "<provider>/<model>".
	Pricing map[string]ModelPricing `yaml:"pricing"`
}

// ProviderModel names a provider/model pair.
type ProviderModel struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// Resolve returns the provider/model for orgSlug, falling back to the "*"
// entry, and reports whether anything was configured at all.
func (g *GlobalModelConfig) Resolve(orgSlug string) (ProviderModel, bool) {
	if g == nil {
		return ProviderModel{}, false
	}
	if pm, ok := g.Default[orgSlug]; ok {
		return pm, true
	}
	if pm, ok := g.Default["*"]; ok {
		return pm, true
	}
	return ProviderModel{}, false
}

// PricingFor returns the configured pricing for provider/model, or the
// zero value (meaning zero-cost) if unconfigured.
func (g *GlobalModelConfig) PricingFor(provider, model string) ModelPricing {
	if g == nil {
		return ModelPricing{}
	}
	return g.Pricing[provider+"/"+model]
}
