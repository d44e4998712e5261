package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
	"github.com/agentgov/pipeline/pkg/llmgateway"
)

// charsPerToken approximates English text token density — the same
// heuristic and justification as pkg/mcp/tokens.go's EstimateTokens:
// exact tokenization would add a dependency for a soft, configurable
// limit that doesn't need precision.
const charsPerToken = 4

// Generator is the subset of the LLM Gateway the context and rag
// controllers call.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts llmgateway.Options, cap capsule.Capsule) (string, llmgateway.Metadata, error)
}

// SourceLoader fetches named context sources an agent config lists under
// its `context.sources` key (spec.md §4.6: "configured sources").
type SourceLoader interface {
	Load(ctx context.Context, source string) (string, error)
}

// ContextController assembles context, compresses it to a token budget,
// interpolates a template, and makes one LLM Gateway call.
type ContextController struct {
	generator      Generator
	sources        SourceLoader // optional
	maxContextChars int
}

// NewContextController builds a ContextController. maxContextChars <= 0
// uses a 32k-token budget (128000 chars at 4 chars/token), generous
// enough for most assembled context blocks without risking the provider's
// own context window.
func NewContextController(generator Generator, sources SourceLoader, maxContextChars int) *ContextController {
	if maxContextChars <= 0 {
		maxContextChars = 32000 * charsPerToken
	}
	return &ContextController{generator: generator, sources: sources, maxContextChars: maxContextChars}
}

func (c *ContextController) Type() config.RunnerType { return config.RunnerContext }

// Run assembles agent.Context plus any configured sources, compresses to
// the token budget, interpolates it into a system prompt, and issues one
// Generate call using req.Payload["input"] as the user prompt.
func (c *ContextController) Run(ctx context.Context, agent config.AgentConfig, cap capsule.Capsule, req Request) (Output, error) {
	input, _ := req.Payload["input"].(string)
	if input == "" {
		return Output{}, errs.New(errs.BadRequest, "context runner requires a non-empty payload.input")
	}

	assembled := c.assemble(ctx, agent)
	assembled = truncateToCharBudget(assembled, c.maxContextChars)

	systemPrompt := fmt.Sprintf("You are the %q agent.\n\nContext:\n%s", agent.Slug, assembled)

	opts := llmOptionsFromAgent(agent)
	content, meta, err := c.generator.Generate(ctx, systemPrompt, input, opts, cap)
	if err != nil {
		return Output{}, err
	}

	return Output{
		Content: []byte(content),
		Extra: map[string]any{
			"provider": meta.Provider, "model": meta.Model, "costCents": meta.CostCents,
		},
	}, nil
}

// assemble renders agent.Context's key/value pairs as plain text lines,
// in sorted key order for deterministic output, then appends any
// configured sources' content.
func (c *ContextController) assemble(ctx context.Context, agent config.AgentConfig) string {
	var b strings.Builder

	keys := make([]string, 0, len(agent.Context))
	for k := range agent.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "sources" {
			continue
		}
		fmt.Fprintf(&b, "%s: %v\n", k, agent.Context[k])
	}

	if c.sources == nil {
		return b.String()
	}
	raw, ok := agent.Context["sources"].([]any)
	if !ok {
		return b.String()
	}
	for _, s := range raw {
		name, ok := s.(string)
		if !ok || name == "" {
			continue
		}
		content, err := c.sources.Load(ctx, name)
		if err != nil {
			continue // a missing/failed source degrades gracefully, never fails the call
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", name, content)
	}
	return b.String()
}

// truncateToCharBudget cuts content at the last newline before maxChars,
// the same line-boundary-preserving approach pkg/mcp/tokens.go uses.
func truncateToCharBudget(content string, maxChars int) string {
	if maxChars <= 0 || len(content) <= maxChars {
		return content
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	truncated := content[:cut]
	if idx := strings.LastIndex(truncated, "\n"); idx > 0 {
		truncated = truncated[:idx]
	}
	return truncated + "\n\n[TRUNCATED: context exceeded token budget]"
}

// llmOptionsFromAgent maps an agent's LLM selection config onto
// llmgateway.Options, leaving Provider/Model empty (so the Gateway falls
// back to global config) when the agent doesn't pin one.
func llmOptionsFromAgent(agent config.AgentConfig) llmgateway.Options {
	opts := llmgateway.Options{CallerType: "runner", CallerName: agent.Slug}
	if agent.LLM == nil {
		return opts
	}
	opts.Provider = agent.LLM.Provider
	opts.Model = agent.LLM.Model
	opts.MaxTokens = agent.LLM.MaxTokens
	if agent.LLM.Temperature != nil {
		opts.Temperature = *agent.LLM.Temperature
	}
	return opts
}
