// Package config provides configuration loading for the engine.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CODEFORGE_MAX_ITERATIONS, CODEFORGE_MODEL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CODEFORGE_"

// EngineConfig holds every tunable of a workflow run.
type EngineConfig struct {
	// Model is the collaborator model identifier.
	Model string `koanf:"model"`

	// Temperature and MaxTokens are passed to the collaborator.
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`

	// MaxIterations bounds the verification loop. Required: there is no
	// default, a missing value fails validation rather than running forever.
	MaxIterations int `koanf:"max_iterations"`

	// MaxRepairAttempts bounds schema repair re-prompts per stage.
	MaxRepairAttempts int `koanf:"max_repair_attempts"`

	// ExecutionTimeout bounds one sandboxed run.
	ExecutionTimeout time.Duration `koanf:"execution_timeout"`

	// OTLPEndpoint, when set, enables trace export.
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// Load reads configuration from an optional YAML file plus CODEFORGE_*
// environment overrides, applies defaults, and validates.
func Load(configPath string) (*EngineConfig, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	// CODEFORGE_MAX_ITERATIONS -> max_iterations
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg EngineConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Parse loads configuration from raw YAML plus environment overrides.
// Exposed for tests and embedders.
func Parse(content []byte) (*EngineConfig, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var cfg EngineConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *EngineConfig) {
	if cfg.Model == "" {
		cfg.Model = "qwen2.5-coder"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.MaxRepairAttempts == 0 {
		cfg.MaxRepairAttempts = 2
	}
	if cfg.ExecutionTimeout == 0 {
		cfg.ExecutionTimeout = 60 * time.Second
	}
}

// Validate rejects configurations that could not run safely.
func (c *EngineConfig) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be set to a positive value, got %d", c.MaxIterations)
	}
	if c.MaxRepairAttempts < 0 {
		return fmt.Errorf("max_repair_attempts must not be negative, got %d", c.MaxRepairAttempts)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %v", c.Temperature)
	}
	if c.ExecutionTimeout <= 0 {
		return fmt.Errorf("execution_timeout must be positive, got %v", c.ExecutionTimeout)
	}
	return nil
}
