package orchestrator

import (
	"github.com/kbukum/recipeflow/resilience"
	"github.com/kbukum/recipeflow/validation"
)

// DefaultMaxParallel bounds concurrent nodes per level in parallel mode.
const DefaultMaxParallel = 4

// Config controls how runs are scheduled.
type Config struct {
	// Parallel runs independent nodes of a level concurrently.
	Parallel bool `yaml:"parallel" mapstructure:"parallel"`
	// MaxParallel bounds concurrent nodes when Parallel is set.
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel" validate:"gte=0,lte=256"`
	// StrictInputs fails a node whose input mapping references an output
	// that does not exist instead of passing nil.
	StrictInputs bool `yaml:"strict_inputs" mapstructure:"strict_inputs"`
	// Retry is the backoff policy for nodes with the retry error policy.
	// A node's MaxRetries overrides MaxAttempts.
	Retry resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.MaxParallel <= 0 {
		c.MaxParallel = DefaultMaxParallel
	}
	c.Retry.ApplyDefaults()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if appErr := validation.New().
		Min("retry.max_attempts", c.Retry.MaxAttempts, 1).
		RangeFloat("retry.jitter", c.Retry.Jitter, 0, 1).
		Validate(); appErr != nil {
		return appErr
	}
	return nil
}
