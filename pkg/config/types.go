package config

import "time"

// PIIPatternConfig is one regex pattern the PII Transformer applies after
// dictionary substitution (spec.md §4.3: email, phone, national-id,
// card-number, and any org-specific additions).
type PIIPatternConfig struct {
	Name    string `yaml:"name" validate:"required"`
	Pattern string `yaml:"pattern" validate:"required"`
}

// PIIConfig configures the PII Transformer.
type PIIConfig struct {
	Patterns []PIIPatternConfig `yaml:"patterns"`
	// DictionaryCacheTTL bounds how long a loaded org/agent dictionary is
	// reused before being refetched.
	DictionaryCacheTTL time.Duration `yaml:"dictionary_cache_ttl,omitempty"`
}

// ObservabilityConfig configures the Observability Bus (C5).
type ObservabilityConfig struct {
	// BufferCapacity is the ring buffer size B (OBS_BUFFER_CAPACITY).
	BufferCapacity int `yaml:"buffer_capacity,omitempty"`
	// SubscriberQueue is the per-subscriber queue depth K
	// (OBS_SUBSCRIBER_QUEUE) after which a slow subscriber is dropped.
	SubscriberQueue int `yaml:"subscriber_queue,omitempty"`
	// UsernameCacheSize and UsernameCacheTTL bound the userId->displayName
	// enrichment cache.
	UsernameCacheSize int           `yaml:"username_cache_size,omitempty"`
	UsernameCacheTTL  time.Duration `yaml:"username_cache_ttl,omitempty"`
	// HistoryMaxLimit caps a single history() query (spec.md: ≤5000).
	HistoryMaxLimit int `yaml:"history_max_limit,omitempty"`
}

// DispatchConfig configures the Dispatcher and LLM Gateway timeouts.
type DispatchConfig struct {
	// DispatchTimeout is T_dispatch (DISPATCH_TIMEOUT_MS), the default
	// deadline for a single dispatch() call; overridable per agent via
	// AgentConfig.Endpoint.TimeoutSec.
	DispatchTimeout time.Duration `yaml:"dispatch_timeout,omitempty"`
	// ProviderTimeout is T_provider (PROVIDER_TIMEOUT_MS), the deadline
	// for a single LLM provider call.
	ProviderTimeout time.Duration `yaml:"provider_timeout,omitempty"`
	// UsageBatchWindow bounds how long the usage log batches records
	// before flushing (USAGE_BATCH_WINDOW_MS).
	UsageBatchWindow time.Duration `yaml:"usage_batch_window,omitempty"`
}

// RetentionConfig configures the soft-delete cleanup job for artifact
// versions and observability history (supplemented feature; see
// SPEC_FULL.md).
type RetentionConfig struct {
	Enabled             bool          `yaml:"enabled"`
	DeletedRetention    time.Duration `yaml:"deleted_retention,omitempty"`
	ObservabilityTTL    time.Duration `yaml:"observability_ttl,omitempty"`
	CleanupInterval     time.Duration `yaml:"cleanup_interval,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// A2AConfig configures the External Agent Client (C8).
type A2AConfig struct {
	// DiscoveryCacheTTL bounds how long a fetched agent.json discovery
	// document is reused before being refetched (spec.md §6: 10 min).
	DiscoveryCacheTTL time.Duration `yaml:"discovery_cache_ttl,omitempty"`
}

// TelemetryConfig configures the ambient Prometheus metrics and OpenTelemetry
// tracing the pipeline carries independently of spec.md's own Observability
// Bus — operational signal for the process itself, not the domain event
// stream spec.md §4.5 describes.
type TelemetryConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr,omitempty"`

	TracingEnabled bool    `yaml:"tracing_enabled"`
	ServiceName    string  `yaml:"service_name,omitempty"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint,omitempty"`
	SamplingRatio  float64 `yaml:"sampling_ratio,omitempty"`
}
