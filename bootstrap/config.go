package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/recipeflow/capability"
	"github.com/kbukum/recipeflow/config"
	"github.com/kbukum/recipeflow/observability"
	"github.com/kbukum/recipeflow/orchestrator"
	"github.com/kbukum/recipeflow/provider"
	"github.com/kbukum/recipeflow/provider/ollama"
	"github.com/kbukum/recipeflow/provider/openai"
	"github.com/kbukum/recipeflow/recipe"
	"github.com/kbukum/recipeflow/redis"
	"github.com/kbukum/recipeflow/storage"
	"github.com/kbukum/recipeflow/validation"
	"github.com/kbukum/recipeflow/version"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the full engine configuration.
//
//	name: recipeflow
//	engine:
//	  parallel: true
//	  max_parallel: 4
//	  node_timeout: 90s
//	capabilities:
//	  text: {provider: ollama, model: llama3}
//	store:
//	  driver: redis
//	  redis: {addr: localhost:6379}
//	storage:
//	  provider: s3
//	  bucket: artifacts
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`
	// Capabilities is the global default tier keyed by capability. Keys
	// may be the capability name or its short form (text, image, video).
	Capabilities map[string]capability.Setting `yaml:"capabilities" mapstructure:"capabilities"`
	Store        StoreConfig                   `yaml:"store" mapstructure:"store"`
	Storage      storage.Config                `yaml:"storage" mapstructure:"storage"`
	Providers    ProvidersConfig               `yaml:"providers" mapstructure:"providers"`
	Telemetry    observability.Config          `yaml:"telemetry" mapstructure:"telemetry"`
	// RecipeDirs are scanned for recipe files at startup and loaded into
	// the store.
	RecipeDirs []string `yaml:"recipe_dirs" mapstructure:"recipe_dirs"`
}

// EngineConfig holds scheduling settings.
type EngineConfig struct {
	orchestrator.Config `yaml:",inline" mapstructure:",squash"`
	// NodeTimeout bounds one provider call for nodes without timeoutMs.
	NodeTimeout time.Duration `yaml:"node_timeout" mapstructure:"node_timeout"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Driver       string        `yaml:"driver" mapstructure:"driver"`
	Redis        redis.Config  `yaml:"redis" mapstructure:"redis"`
	ExecutionTTL time.Duration `yaml:"execution_ttl" mapstructure:"execution_ttl"`
}

// ProvidersConfig configures the built-in providers and the resilience
// middleware applied to every provider. OpenAI is only registered when an
// API key is set.
type ProvidersConfig struct {
	Ollama     ollama.Config             `yaml:"ollama" mapstructure:"ollama"`
	OpenAI     openai.Config             `yaml:"openai" mapstructure:"openai"`
	Resilience provider.ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`
}

// Load reads the configuration for serviceName with config.LoadConfig and
// applies defaults.
func Load(serviceName string, opts ...config.LoaderOption) (*Config, error) {
	var cfg Config
	if err := config.LoadConfig(serviceName, &cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = serviceName
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields in every section.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Version == "" {
		c.Version = version.Short()
	}
	c.Engine.Config.ApplyDefaults()
	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	if c.Store.Driver == StoreRedis {
		c.Store.Redis.ApplyDefaults()
	}
	c.Storage.ApplyDefaults()
	c.Providers.Ollama.ApplyDefaults()
	if c.Providers.OpenAI.APIKey != "" {
		c.Providers.OpenAI.ApplyDefaults()
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name
	}
	if c.Telemetry.ServiceVersion == "" {
		c.Telemetry.ServiceVersion = c.Version
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = c.Environment
	}
	c.Telemetry.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Config.Validate(); err != nil {
		return fmt.Errorf("config.engine: %w", err)
	}
	if c.Engine.NodeTimeout < 0 {
		return fmt.Errorf("config.engine.node_timeout must not be negative (got: %s)", c.Engine.NodeTimeout)
	}
	if _, err := c.GlobalDefaults(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreRedis:
		if err := c.Store.Redis.Validate(); err != nil {
			return fmt.Errorf("config.store.redis: %w", err)
		}
	default:
		return fmt.Errorf("config.store.driver must be one of [%s %s] (got: %s)", StoreMemory, StoreRedis, c.Store.Driver)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("config.storage: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("config.%w", err)
	}
	return nil
}

// GlobalDefaults converts the capabilities section into the resolver's
// global tier, on top of the built-in defaults.
func (c *Config) GlobalDefaults() (map[recipe.Capability]capability.Setting, error) {
	out := capability.BuiltinDefaults()
	for key, s := range c.Capabilities {
		capName, ok := ParseCapability(key)
		if !ok {
			return nil, fmt.Errorf("config.capabilities: unknown capability %q", key)
		}
		if err := validation.Validate(s); err != nil {
			return nil, fmt.Errorf("config.capabilities.%s: %w", key, err)
		}
		out[capName] = s
	}
	return out, nil
}

// ParseCapability accepts a capability name in any case, or the short
// forms text, image and video. Config keys arrive lower-cased.
func ParseCapability(key string) (recipe.Capability, bool) {
	for _, c := range []recipe.Capability{recipe.CapabilityText, recipe.CapabilityImage, recipe.CapabilityVideo} {
		short := strings.TrimSuffix(string(c), "Generation")
		if strings.EqualFold(key, string(c)) || strings.EqualFold(key, short) {
			return c, true
		}
	}
	return "", false
}
