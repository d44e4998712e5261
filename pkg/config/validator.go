package config

import (
	"errors"
	"fmt"
	"regexp"
)

// validate runs every structural check Initialize requires before a Config
// is handed to the rest of the process. It collects every failure it finds
// rather than stopping at the first, joining them with errors.Join so a
// misconfigured deployment gets one report instead of a fix-one-rerun loop.
func validate(cfg *Config) error {
	var errs []error

	for _, agent := range cfg.Agents().All() {
		if err := validateAgent(agent); err != nil {
			errs = append(errs, err)
		}
	}

	for _, p := range cfg.PII.Patterns {
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, NewValidationError("pii_pattern", p.Name, "pattern", err))
		}
	}

	if cfg.Observability.BufferCapacity <= 0 {
		errs = append(errs, NewValidationError("observability", "", "buffer_capacity", errors.New("must be positive")))
	}
	if cfg.Observability.SubscriberQueue <= 0 {
		errs = append(errs, NewValidationError("observability", "", "subscriber_queue", errors.New("must be positive")))
	}
	if cfg.Observability.HistoryMaxLimit <= 0 || cfg.Observability.HistoryMaxLimit > 5000 {
		errs = append(errs, NewValidationError("observability", "", "history_max_limit", errors.New("must be in (0, 5000]")))
	}

	if cfg.Dispatch.DispatchTimeout <= 0 {
		errs = append(errs, NewValidationError("dispatch", "", "dispatch_timeout", errors.New("must be positive")))
	}
	if cfg.Dispatch.ProviderTimeout <= 0 {
		errs = append(errs, NewValidationError("dispatch", "", "provider_timeout", errors.New("must be positive")))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func validateAgent(a AgentConfig) error {
	if a.Slug == "" {
		return NewValidationError("agent", a.Slug, "slug", errors.New("required"))
	}
	if !a.RunnerType.valid() {
		return NewValidationError("agent", a.Slug, "runner_type", fmt.Errorf("unknown runner type %q", a.RunnerType))
	}
	switch a.RunnerType {
	case RunnerAPI, RunnerExternal, RunnerMedia:
		if a.Endpoint == nil || a.Endpoint.URL == "" {
			return NewValidationError("agent", a.Slug, "endpoint", errors.New("required for this runner type"))
		}
	}
	return nil
}
