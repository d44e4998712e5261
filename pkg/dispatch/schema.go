package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentgov/pipeline/pkg/config"
	"github.com/agentgov/pipeline/pkg/errs"
)

// schemaCache compiles and memoizes one jsonschema/v6 schema per
// (agentSlug, mode, action) tuple, carved out of the agent's ioSchema
// document — a JSON object keyed by "<mode>.<action>" (SPEC_FULL.md §9:
// "compiled schemas, one per (mode, action) pair"). An agent with no
// ioSchema, or no entry for the pair being dispatched, validates
// unconditionally: spec.md's ioSchema is opt-in per action, not a blanket
// requirement.
type schemaCache struct {
	mu    sync.Mutex
	byKey map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{byKey: make(map[string]*jsonschema.Schema)}
}

func (s *schemaCache) validate(agent config.AgentConfig, mode, action string, payload map[string]any) error {
	if len(agent.IOSchema) == 0 {
		return nil
	}

	key := agent.Slug + ":" + mode + "." + action

	s.mu.Lock()
	schema, cached := s.byKey[key]
	s.mu.Unlock()

	if !cached {
		compiled, err := compileActionSchema(agent, mode, action)
		if err != nil {
			return errs.Wrap(errs.BadRequest, "invalid ioSchema for agent "+agent.Slug, err)
		}
		s.mu.Lock()
		s.byKey[key] = compiled
		s.mu.Unlock()
		schema = compiled
	}
	if schema == nil {
		return nil
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(errs.BadRequest, "failed to encode payload for validation", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return errs.Wrap(errs.BadRequest, "failed to decode payload for validation", err)
	}

	if err := schema.Validate(instance); err != nil {
		return errs.Wrap(errs.BadRequest, "payload failed ioSchema validation", err)
	}
	return nil
}

// compileActionSchema returns the compiled schema for "<mode>.<action>" out
// of agent.IOSchema, or nil if that key is absent.
func compileActionSchema(agent config.AgentConfig, mode, action string) (*jsonschema.Schema, error) {
	var byAction map[string]json.RawMessage
	if err := json.Unmarshal(agent.IOSchema, &byAction); err != nil {
		return nil, fmt.Errorf("ioSchema must be a JSON object keyed by \"mode.action\": %w", err)
	}

	raw, ok := byAction[mode+"."+action]
	if !ok {
		return nil, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("schema for %s.%s is not valid JSON: %w", mode, action, err)
	}

	url := "mem://" + agent.Slug + "/" + mode + "." + action
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}
