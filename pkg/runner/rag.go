package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentgov/pipeline/pkg/capsule"
	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

// RetrievalStore is the subset of a retrieval-augmented-generation backend
// the rag runner queries. No pack example models a vector/retrieval store,
// and this module has no implementation of it: cmd/govpipe does not
// register a RAGController.
type RetrievalStore interface {
	Query(ctx context.Context, query string, topK int) ([]string, error)
}

const defaultRAGTopK = 5

// RAGController queries a retrieval store, augments the prompt with the
// results, and makes one LLM Gateway call.
type RAGController struct {
	retrieval RetrievalStore
	generator Generator
	topK      int
}

// NewRAGController builds a RAGController. topK <= 0 uses defaultRAGTopK.
func NewRAGController(retrieval RetrievalStore, generator Generator, topK int) *RAGController {
	if topK <= 0 {
		topK = defaultRAGTopK
	}
	return &RAGController{retrieval: retrieval, generator: generator, topK: topK}
}

func (c *RAGController) Type() config.RunnerType { return config.RunnerRAG }

func (c *RAGController) Run(ctx context.Context, agent config.AgentConfig, cap capsule.Capsule, req Request) (Output, error) {
	query, _ := req.Payload["query"].(string)
	if query == "" {
		return Output{}, errs.New(errs.BadRequest, "rag runner requires a non-empty payload.query")
	}

	passages, err := c.retrieval.Query(ctx, query, c.topK)
	if err != nil {
		return Output{}, errs.Wrap(errs.Internal, "retrieval query failed", err)
	}

	var augmented strings.Builder
	fmt.Fprintf(&augmented, "You are the %q agent. Answer using the retrieved passages below.\n\n", agent.Slug)
	for i, p := range passages {
		fmt.Fprintf(&augmented, "[%d] %s\n\n", i+1, p)
	}

	opts := llmOptionsFromAgent(agent)
	content, meta, err := c.generator.Generate(ctx, augmented.String(), query, opts, cap)
	if err != nil {
		return Output{}, err
	}

	return Output{
		Content: []byte(content),
		Extra:   map[string]any{"provider": meta.Provider, "model": meta.Model, "passagesUsed": len(passages)},
	}, nil
}
