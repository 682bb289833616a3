// Package config provides configuration management for PDDFR.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Logging  LoggingConfig
	Strategy StrategyConfig
	LLM      LLMConfig
	Sandbox  SandboxConfig
	Planner  PlannerConfig
}

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// StrategyConfig holds C8 scan defaults not otherwise carried on a
// per-invocation StrategyPlan (spec.md §9, FLOW_STRAT_MEMORY_MB).
type StrategyConfig struct {
	MemoryLimitMB int
}

// LLMConfig selects and configures the provider behind pkg/sandbox's and
// pkg/planner's LLM adapters (LLM_PROVIDER, LLM_MODEL).
type LLMConfig struct {
	Provider string
	Model    string

	PlanProvider string // PLAN_LLM_PROVIDER, falls back to Provider
	PlanModel    string // PLAN_LLM_MODEL, falls back to Model
	PlanAPIKey   string // PLAN_LLM_API_KEY

	FnProvider string // FN_LLM_PROVIDER, falls back to Provider
	FnModel    string // FN_LLM_MODEL, falls back to Model
	FnAPIKey   string // FN_LLM_API_KEY
}

// SandboxConfig holds C3/C4 gas/fuel defaults.
type SandboxConfig struct {
	DefaultGasLimit  int64
	DefaultFuelLimit int64
	UseWASI          bool
}

// PlannerConfig holds C7 defaults not already covered by cmd/plannerhost's
// per-run flags (artifacts directory, consensus gate toggle).
type PlannerConfig struct {
	ArtifactsDir    string
	EnableConsensus bool // FLOW_ENABLE_CONSENSUS
}

// Load loads the configuration from environment variables, bootstrapping
// from a .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	llmProvider := getEnv("LLM_PROVIDER", "openai")
	llmModel := getEnv("LLM_MODEL", "gpt-4o-mini")

	cfg := &Config{
		Logging: LoggingConfig{
			Level:  getEnv("PDDFR_LOG_LEVEL", "info"),
			Format: getEnv("PDDFR_LOG_FORMAT", "json"),
		},
		Strategy: StrategyConfig{
			MemoryLimitMB: getEnvAsInt("FLOW_STRAT_MEMORY_MB", 256),
		},
		LLM: LLMConfig{
			Provider:     llmProvider,
			Model:        llmModel,
			PlanProvider: getEnv("PLAN_LLM_PROVIDER", llmProvider),
			PlanModel:    getEnv("PLAN_LLM_MODEL", llmModel),
			PlanAPIKey:   getEnv("PLAN_LLM_API_KEY", ""),
			FnProvider:   getEnv("FN_LLM_PROVIDER", llmProvider),
			FnModel:      getEnv("FN_LLM_MODEL", llmModel),
			FnAPIKey:     getEnv("FN_LLM_API_KEY", ""),
		},
		Sandbox: SandboxConfig{
			DefaultGasLimit:  getEnvAsInt64("PDDFR_GAS_LIMIT", 1_000_000),
			DefaultFuelLimit: getEnvAsInt64("PDDFR_FUEL_LIMIT", 10_000_000),
			UseWASI:          getEnvAsBool("PDDFR_USE_WASI", false),
		},
		Planner: PlannerConfig{
			ArtifactsDir:    getEnv("PDDFR_ARTIFACTS_DIR", "./artifacts"),
			EnableConsensus: getEnvAsBool("FLOW_ENABLE_CONSENSUS", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Strategy.MemoryLimitMB < 0 {
		return fmt.Errorf("FLOW_STRAT_MEMORY_MB must not be negative")
	}

	if c.Sandbox.DefaultGasLimit <= 0 {
		return fmt.Errorf("PDDFR_GAS_LIMIT must be positive")
	}

	if c.Sandbox.DefaultFuelLimit <= 0 {
		return fmt.Errorf("PDDFR_FUEL_LIMIT must be positive")
	}

	return nil
}

// Helper functions for environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
