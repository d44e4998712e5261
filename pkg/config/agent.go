package config

import "encoding/json"

// RunnerType enumerates the known runner types a registered agent can
// dispatch to (spec.md §4.6). Validated against this fixed set so an
// unrecognized value fails config validation rather than surfacing as a
// runtime ErrUnknown from the registry.
type RunnerType string

const (
	RunnerContext      RunnerType = "context"
	RunnerAPI          RunnerType = "api"
	RunnerExternal     RunnerType = "external"
	RunnerOrchestrator RunnerType = "orchestrator"
	RunnerRAG          RunnerType = "rag"
	RunnerMedia        RunnerType = "media"
)

func (t RunnerType) valid() bool {
	switch t {
	case RunnerContext, RunnerAPI, RunnerExternal, RunnerOrchestrator, RunnerRAG, RunnerMedia:
		return true
	default:
		return false
	}
}

// EndpointConfig configures an outbound call target, used by the api,
// external, and media runners.
type EndpointConfig struct {
	URL        string            `yaml:"url" validate:"required"`
	Method     string            `yaml:"method,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	TimeoutSec int               `yaml:"timeout_seconds,omitempty"`
}

// LLMSelectionConfig pins an agent to a default provider/model pair, and
// the options the LLM Gateway applies when the caller's request does not
// override them.
type LLMSelectionConfig struct {
	Provider    string   `yaml:"provider,omitempty"`
	Model       string   `yaml:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
}

// AgentConfig is one entry in the agent registry: spec.md's Agent entity,
// as loaded from YAML.
type AgentConfig struct {
	Slug       string              `yaml:"slug" validate:"required"`
	OrgSlugs   []string            `yaml:"org_slugs,omitempty"` // empty means global (every org)
	RunnerType RunnerType          `yaml:"runner_type" validate:"required"`
	Endpoint   *EndpointConfig     `yaml:"endpoint,omitempty"`
	LLM        *LLMSelectionConfig `yaml:"llm,omitempty"`
	IOSchema   json.RawMessage     `yaml:"io_schema,omitempty"`
	Context    map[string]any      `yaml:"context,omitempty"`
}

// AllowsOrg reports whether this agent can be dispatched to for orgSlug.
// An empty OrgSlugs list means the agent is global.
func (a AgentConfig) AllowsOrg(orgSlug string) bool {
	if len(a.OrgSlugs) == 0 {
		return true
	}
	for _, s := range a.OrgSlugs {
		if s == orgSlug {
			return true
		}
	}
	return false
}

// AgentRegistry is an in-memory, read-mostly lookup of agents by slug,
// swapped atomically on config reload (see Config.Swap).
type AgentRegistry struct {
	bySlug map[string]AgentConfig
}

// NewAgentRegistry builds a registry from a slug-keyed map.
func NewAgentRegistry(agents map[string]AgentConfig) *AgentRegistry {
	reg := &AgentRegistry{bySlug: make(map[string]AgentConfig, len(agents))}
	for slug, a := range agents {
		a.Slug = slug
		reg.bySlug[slug] = a
	}
	return reg
}

// Lookup returns the agent registered under slug for orgSlug, or false if
// it does not exist or is not visible to orgSlug.
func (r *AgentRegistry) Lookup(orgSlug, slug string) (AgentConfig, bool) {
	if r == nil {
		return AgentConfig{}, false
	}
	a, ok := r.bySlug[slug]
	if !ok || !a.AllowsOrg(orgSlug) {
		return AgentConfig{}, false
	}
	return a, true
}

// All returns every registered agent, for discovery/admin surfaces.
func (r *AgentRegistry) All() []AgentConfig {
	out := make([]AgentConfig, 0, len(r.bySlug))
	for _, a := range r.bySlug {
		out = append(out, a)
	}
	return out
}
