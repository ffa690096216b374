package config

import (
	"fmt"
)

// Validator checks a loaded Config for internal consistency beyond what
// per-field yaml struct tags express: cross-references between agents
// and model providers, and sane queue/registry timing relationships.
type Validator struct {
	cfg *Config
}

// NewValidator creates a Validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every validation check in a fixed, fail-fast order and
// returns the first error encountered.
func (v *Validator) ValidateAll() error {
	if err := v.validateQueue(); err != nil {
		return err
	}
	if err := v.validateRegistry(); err != nil {
		return err
	}
	if err := v.validateModelProviders(); err != nil {
		return err
	}
	if err := v.validateAgents(); err != nil {
		return err
	}
	if err := v.validateHTTP(); err != nil {
		return err
	}
	if err := v.validateRetention(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return NewValidationError("queue", "", "", ErrMissingRequiredField)
	}
	if q.LeaseDuration <= 0 {
		return NewValidationError("queue", "", "lease_duration", ErrInvalidValue)
	}
	if q.BackoffBase <= 0 {
		return NewValidationError("queue", "", "backoff_base", ErrInvalidValue)
	}
	if q.BackoffMax < q.BackoffBase {
		return NewValidationError("queue", "", "backoff_max", fmt.Errorf("%w: must be >= backoff_base", ErrInvalidValue))
	}
	if q.MaxAttemptsDefault < 1 {
		return NewValidationError("queue", "", "max_attempts_default", ErrInvalidValue)
	}
	if q.PollInterval <= 0 {
		return NewValidationError("queue", "", "poll_interval", ErrInvalidValue)
	}
	if q.ReclaimSweepInterval <= 0 {
		return NewValidationError("queue", "", "reclaim_sweep_interval", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateRegistry() error {
	r := v.cfg.Registry
	if r == nil {
		return NewValidationError("registry", "", "", ErrMissingRequiredField)
	}
	if r.HeartbeatInterval <= 0 {
		return NewValidationError("registry", "", "heartbeat_interval", ErrInvalidValue)
	}
	if r.StaleThreshold <= r.HeartbeatInterval {
		return NewValidationError("registry", "", "stale_threshold", fmt.Errorf("%w: must exceed heartbeat_interval", ErrInvalidValue))
	}
	if r.SweepInterval <= 0 {
		return NewValidationError("registry", "", "sweep_interval", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateModelProviders() error {
	for name, provider := range v.cfg.ModelProviderRegistry.GetAll() {
		if !provider.Type.IsValid() {
			return NewValidationError("model_provider", name, "type", ErrInvalidValue)
		}
		if provider.Model == "" {
			return NewValidationError("model_provider", name, "model", ErrMissingRequiredField)
		}
		if provider.APIKeyEnv == "" {
			return NewValidationError("model_provider", name, "api_key_env", ErrMissingRequiredField)
		}
	}
	return nil
}

func (v *Validator) validateAgents() error {
	if v.cfg.AgentRegistry.Len() == 0 {
		return NewValidationError("agent", "", "", fmt.Errorf("%w: at least one agent must be configured", ErrMissingRequiredField))
	}
	for id, agent := range v.cfg.AgentRegistry.GetAll() {
		if agent.SystemPrompt == "" {
			return NewValidationError("agent", id, "system_prompt", ErrMissingRequiredField)
		}
		if agent.ModelProvider == "" {
			return NewValidationError("agent", id, "model_provider", ErrMissingRequiredField)
		}
		if !v.cfg.ModelProviderRegistry.Has(agent.ModelProvider) {
			return NewValidationError("agent", id, "model_provider", fmt.Errorf("%w: %q", ErrInvalidReference, agent.ModelProvider))
		}
		seen := make(map[int]string, len(agent.Capabilities))
		for _, ref := range agent.Capabilities {
			if ref.Name == "" {
				return NewValidationError("agent", id, "capabilities", ErrMissingRequiredField)
			}
			if existing, ok := seen[ref.Position]; ok {
				return NewValidationError("agent", id, "capabilities", fmt.Errorf("%w: position %d used by both %q and %q", ErrInvalidValue, ref.Position, existing, ref.Name))
			}
			seen[ref.Position] = ref.Name
		}
	}
	return nil
}

func (v *Validator) validateHTTP() error {
	h := v.cfg.HTTP
	if h == nil {
		return NewValidationError("http", "", "", ErrMissingRequiredField)
	}
	if h.Port < 1 || h.Port > 65535 {
		return NewValidationError("http", "", "port", ErrInvalidValue)
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		return NewValidationError("retention", "", "", ErrMissingRequiredField)
	}
	if r.StreamDeltaGracePeriod <= 0 {
		return NewValidationError("retention", "", "stream_delta_grace_period", ErrInvalidValue)
	}
	if r.CompactionInterval <= 0 {
		return NewValidationError("retention", "", "compaction_interval", ErrInvalidValue)
	}
	return nil
}
