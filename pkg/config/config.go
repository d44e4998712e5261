package config

import "sync/atomic"

// Config is the fully loaded, validated, ready-to-use configuration for one
// process. It is read-mostly: fields that can change at runtime (the agent
// registry and the global model config) are held behind Config.swap so a
// hot reload can atomically replace them without readers ever seeing a
// half-updated Config.
type Config struct {
	configDir string

	registry atomic.Pointer[AgentRegistry]
	model    atomic.Pointer[GlobalModelConfig]

	PII            PIIConfig
	Observability  ObservabilityConfig
	Dispatch       DispatchConfig
	Retention      RetentionConfig
	Server         ServerConfig
	A2A            A2AConfig
	Telemetry      TelemetryConfig

	// ModelConfigFromEnv records whether GlobalModelConfig came from
	// MODEL_CONFIG_GLOBAL_JSON (true) or from loaded YAML (false); the env
	// var always shadows YAML, and Initialize logs a warning when both are
	// present.
	ModelConfigFromEnv bool
}

// Agents returns the current agent registry.
func (c *Config) Agents() *AgentRegistry {
	return c.registry.Load()
}

// Model returns the current global model config.
func (c *Config) Model() *GlobalModelConfig {
	return c.model.Load()
}

// Swap atomically replaces the agent registry and global model config,
// used by the fsnotify-driven hot-reload watcher.
func (c *Config) Swap(registry *AgentRegistry, model *GlobalModelConfig) {
	c.registry.Store(registry)
	c.model.Store(model)
}

// Stats summarizes the loaded configuration for startup logging.
type Stats struct {
	Agents        int
	PIIPatterns   int
}

// Stats computes a snapshot of Config for logging.
func (c *Config) Stats() Stats {
	return Stats{
		Agents:      len(c.Agents().All()),
		PIIPatterns: len(c.PII.Patterns),
	}
}
