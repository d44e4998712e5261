package config

import "time"

// Built-in defaults, applied by Initialize for any value the YAML files and
// environment leave unset. Mirrors spec.md §6's config-key table.
const (
	DefaultBufferCapacity      = 500
	DefaultSubscriberQueue     = 128
	DefaultUsernameCacheSize   = 1024
	DefaultUsernameCacheTTL    = 30 * time.Minute
	DefaultHistoryMaxLimit     = 5000
	DefaultDispatchTimeout     = 600 * time.Second
	DefaultProviderTimeout     = 120 * time.Second
	DefaultUsageBatchWindow    = 50 * time.Millisecond
	DefaultDeletedRetention    = 30 * 24 * time.Hour
	DefaultObservabilityTTL    = 90 * 24 * time.Hour
	DefaultCleanupInterval     = 1 * time.Hour
	DefaultServerAddr          = ":8080"
	DefaultShutdownTimeout     = 15 * time.Second
	DefaultDictionaryCacheTTL  = 5 * time.Minute
	DefaultDiscoveryCacheTTL   = 10 * time.Minute
	DefaultMetricsAddr         = ":9090"
	DefaultServiceName         = "govpipe"
	DefaultSamplingRatio       = 1.0
)

func defaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		BufferCapacity:    DefaultBufferCapacity,
		SubscriberQueue:   DefaultSubscriberQueue,
		UsernameCacheSize: DefaultUsernameCacheSize,
		UsernameCacheTTL:  DefaultUsernameCacheTTL,
		HistoryMaxLimit:   DefaultHistoryMaxLimit,
	}
}

func defaultDispatch() DispatchConfig {
	return DispatchConfig{
		DispatchTimeout:  DefaultDispatchTimeout,
		ProviderTimeout:  DefaultProviderTimeout,
		UsageBatchWindow: DefaultUsageBatchWindow,
	}
}

func defaultRetention() RetentionConfig {
	return RetentionConfig{
		Enabled:          true,
		DeletedRetention: DefaultDeletedRetention,
		ObservabilityTTL: DefaultObservabilityTTL,
		CleanupInterval:  DefaultCleanupInterval,
	}
}

func defaultServer() ServerConfig {
	return ServerConfig{
		Addr:            DefaultServerAddr,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

func defaultA2A() A2AConfig {
	return A2AConfig{DiscoveryCacheTTL: DefaultDiscoveryCacheTTL}
}

func defaultTelemetry() TelemetryConfig {
	return TelemetryConfig{
		MetricsAddr:   DefaultMetricsAddr,
		ServiceName:   DefaultServiceName,
		SamplingRatio: DefaultSamplingRatio,
	}
}

func defaultPII() PIIConfig {
	return PIIConfig{
		DictionaryCacheTTL: DefaultDictionaryCacheTTL,
		Patterns: []PIIPatternConfig{
			{Name: "email", Pattern: `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`},
			{Name: "phone", Pattern: `\+?[0-9][0-9\-. ()]{7,}[0-9]`},
			{Name: "national_id", Pattern: `\b\d{3}-\d{2}-\d{4}\b`},
			{Name: "card_number", Pattern: `\b(?:\d[ -]?){13,19}\b`},
		},
	}
}
