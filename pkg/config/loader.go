package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// modelConfigEnvVar is the MODEL_CONFIG_GLOBAL_JSON key from spec.md §6. Its
// value, when set, shadows whatever model-config.yaml loaded.
const modelConfigEnvVar = "MODEL_CONFIG_GLOBAL_JSON"

// agentsYAML is the top-level shape of agents.yaml.
type agentsYAML struct {
	Agents map[string]AgentConfig `yaml:"agents"`
}

// settingsYAML is the top-level shape of settings.yaml, holding the ambient
// stack's tunables (spec.md §6's config-key table).
type settingsYAML struct {
	Observability *ObservabilityConfig `yaml:"observability"`
	Dispatch      *dispatchYAML        `yaml:"dispatch"`
	Retention     *RetentionConfig     `yaml:"retention"`
	Server        *ServerConfig        `yaml:"server"`
	PII           *PIIConfig           `yaml:"pii"`
	Model         *GlobalModelConfig   `yaml:"model"`
	A2A           *A2AConfig           `yaml:"a2a"`
	Telemetry     *TelemetryConfig     `yaml:"telemetry"`
}

// dispatchYAML mirrors DispatchConfig but accepts the millisecond env-var
// names from spec.md §6 as well as duration strings.
type dispatchYAML struct {
	DispatchTimeoutMS  int `yaml:"dispatch_timeout_ms,omitempty"`
	ProviderTimeoutMS  int `yaml:"provider_timeout_ms,omitempty"`
	UsageBatchWindowMS int `yaml:"usage_batch_window_ms,omitempty"`
}

// Initialize loads, merges, validates, and returns ready-to-use
// configuration. It is the single entry point cmd/govpipe calls at
// startup.
//
// Steps:
//  1. load agents.yaml and settings.yaml from configDir
//  2. apply MODEL_CONFIG_GLOBAL_JSON, if set, over any YAML-configured
//     global model config (env always wins; a warning is logged if both
//     are present)
//  3. merge built-in defaults under whatever was loaded
//  4. validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.InfoContext(ctx, "loading configuration")

	agents, err := loadAgentsYAML(configDir)
	if err != nil {
		return nil, NewLoadError("agents.yaml", err)
	}

	settings, err := loadSettingsYAML(configDir)
	if err != nil {
		return nil, NewLoadError("settings.yaml", err)
	}

	cfg := &Config{
		configDir:     configDir,
		PII:           defaultPII(),
		Observability: defaultObservability(),
		Dispatch:      defaultDispatch(),
		Retention:     defaultRetention(),
		Server:        defaultServer(),
		A2A:           defaultA2A(),
		Telemetry:     defaultTelemetry(),
	}

	if settings.PII != nil {
		if err := mergo.Merge(&cfg.PII, settings.PII, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging pii config: %w", err)
		}
	}
	if settings.Observability != nil {
		if err := mergo.Merge(&cfg.Observability, settings.Observability, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging observability config: %w", err)
		}
	}
	if settings.Retention != nil {
		if err := mergo.Merge(&cfg.Retention, settings.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging retention config: %w", err)
		}
	}
	if settings.Server != nil {
		if err := mergo.Merge(&cfg.Server, settings.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging server config: %w", err)
		}
	}
	if settings.Dispatch != nil {
		applyDispatchOverride(&cfg.Dispatch, *settings.Dispatch)
	}
	if settings.A2A != nil {
		if err := mergo.Merge(&cfg.A2A, settings.A2A, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging a2a config: %w", err)
		}
	}
	if settings.Telemetry != nil {
		if err := mergo.Merge(&cfg.Telemetry, settings.Telemetry, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging telemetry config: %w", err)
		}
	}

	model, fromEnv, err := resolveGlobalModelConfig(settings.Model)
	if err != nil {
		return nil, err
	}
	cfg.ModelConfigFromEnv = fromEnv

	cfg.registry.Store(NewAgentRegistry(agents))
	cfg.model.Store(model)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.InfoContext(ctx, "configuration loaded",
		"agents", stats.Agents,
		"pii_patterns", stats.PIIPatterns,
		"model_config_from_env", cfg.ModelConfigFromEnv)

	return cfg, nil
}

func loadAgentsYAML(configDir string) (map[string]AgentConfig, error) {
	var doc agentsYAML
	doc.Agents = make(map[string]AgentConfig)
	if err := loadYAML(configDir, "agents.yaml", &doc); err != nil {
		return nil, err
	}
	return doc.Agents, nil
}

func loadSettingsYAML(configDir string) (settingsYAML, error) {
	var doc settingsYAML
	if err := loadYAML(configDir, "settings.yaml", &doc); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return settingsYAML{}, nil
		}
		return settingsYAML{}, err
	}
	return doc, nil
}

func loadYAML(configDir, filename string, target any) error {
	path := filepath.Join(configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func applyDispatchOverride(dst *DispatchConfig, src dispatchYAML) {
	if src.DispatchTimeoutMS > 0 {
		dst.DispatchTimeout = msToDuration(src.DispatchTimeoutMS)
	}
	if src.ProviderTimeoutMS > 0 {
		dst.ProviderTimeout = msToDuration(src.ProviderTimeoutMS)
	}
	if src.UsageBatchWindowMS > 0 {
		dst.UsageBatchWindow = msToDuration(src.UsageBatchWindowMS)
	}
}

// resolveGlobalModelConfig applies spec.md §6's MODEL_CONFIG_GLOBAL_JSON
// override. The env var, when set, entirely replaces the YAML-configured
// value; a warning is logged so an operator notices the shadowing.
func resolveGlobalModelConfig(fromYAML *GlobalModelConfig) (*GlobalModelConfig, bool, error) {
	raw := os.Getenv(modelConfigEnvVar)
	if raw == "" {
		if fromYAML == nil {
			return &GlobalModelConfig{}, false, nil
		}
		return fromYAML, false, nil
	}

	if fromYAML != nil {
		slog.Warn("MODEL_CONFIG_GLOBAL_JSON overrides settings.yaml model config",
			"env_var", modelConfigEnvVar)
	}

	var cfg GlobalModelConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, false, fmt.Errorf("parsing %s: %w", modelConfigEnvVar, err)
	}
	return &cfg, true, nil
}
