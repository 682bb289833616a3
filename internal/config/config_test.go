package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	envVars := []string{
		"PDDFR_LOG_LEVEL", "PDDFR_LOG_FORMAT",
		"FLOW_STRAT_MEMORY_MB",
		"LLM_PROVIDER", "LLM_MODEL",
		"PLAN_LLM_PROVIDER", "PLAN_LLM_MODEL", "PLAN_LLM_API_KEY",
		"FN_LLM_PROVIDER", "FN_LLM_MODEL", "FN_LLM_API_KEY",
		"PDDFR_GAS_LIMIT", "PDDFR_FUEL_LIMIT", "PDDFR_USE_WASI",
		"PDDFR_ARTIFACTS_DIR", "FLOW_ENABLE_CONSENSUS",
	}
	for _, key := range envVars {
		os.Unsetenv(key)
	}
}

func TestConfig_Load_DefaultValues(t *testing.T) {
	clearEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 256, cfg.Strategy.MemoryLimitMB)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "openai", cfg.LLM.PlanProvider)
	assert.Equal(t, "openai", cfg.LLM.FnProvider)
	assert.Equal(t, int64(1_000_000), cfg.Sandbox.DefaultGasLimit)
	assert.Equal(t, int64(10_000_000), cfg.Sandbox.DefaultFuelLimit)
	assert.False(t, cfg.Sandbox.UseWASI)
	assert.Equal(t, "./artifacts", cfg.Planner.ArtifactsDir)
	assert.False(t, cfg.Planner.EnableConsensus)
}

func TestConfig_Load_CustomValues(t *testing.T) {
	clearEnv()
	defer clearEnv()

	os.Setenv("PDDFR_LOG_LEVEL", "debug")
	os.Setenv("PDDFR_LOG_FORMAT", "text")
	os.Setenv("FLOW_STRAT_MEMORY_MB", "512")
	os.Setenv("LLM_PROVIDER", "anthropic")
	os.Setenv("LLM_MODEL", "claude")
	os.Setenv("PLAN_LLM_MODEL", "claude-plan")
	os.Setenv("FN_LLM_PROVIDER", "openai")
	os.Setenv("PDDFR_GAS_LIMIT", "42")
	os.Setenv("PDDFR_FUEL_LIMIT", "43")
	os.Setenv("PDDFR_USE_WASI", "true")
	os.Setenv("PDDFR_ARTIFACTS_DIR", "/tmp/artifacts")
	os.Setenv("FLOW_ENABLE_CONSENSUS", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 512, cfg.Strategy.MemoryLimitMB)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude", cfg.LLM.Model)
	assert.Equal(t, "claude-plan", cfg.LLM.PlanModel)
	assert.Equal(t, "openai", cfg.LLM.FnProvider)
	assert.Equal(t, int64(42), cfg.Sandbox.DefaultGasLimit)
	assert.Equal(t, int64(43), cfg.Sandbox.DefaultFuelLimit)
	assert.True(t, cfg.Sandbox.UseWASI)
	assert.Equal(t, "/tmp/artifacts", cfg.Planner.ArtifactsDir)
	assert.True(t, cfg.Planner.EnableConsensus)
}

func TestConfig_Load_InvalidValuesUseDefaults(t *testing.T) {
	clearEnv()
	defer clearEnv()

	os.Setenv("FLOW_STRAT_MEMORY_MB", "not_a_number")
	os.Setenv("PDDFR_GAS_LIMIT", "invalid")
	os.Setenv("PDDFR_USE_WASI", "not_a_bool")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 256, cfg.Strategy.MemoryLimitMB)
	assert.Equal(t, int64(1_000_000), cfg.Sandbox.DefaultGasLimit)
	assert.False(t, cfg.Sandbox.UseWASI)
}

func TestConfig_Validate_Success(t *testing.T) {
	cfg := &Config{
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Sandbox:  SandboxConfig{DefaultGasLimit: 1, DefaultFuelLimit: 1},
		Strategy: StrategyConfig{MemoryLimitMB: 0},
	}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_InvalidLogLevel(t *testing.T) {
	tests := []string{"trace", "verbose", "critical", "invalid", ""}
	for _, level := range tests {
		t.Run("Level "+level, func(t *testing.T) {
			cfg := &Config{
				Logging: LoggingConfig{Level: level, Format: "json"},
				Sandbox: SandboxConfig{DefaultGasLimit: 1, DefaultFuelLimit: 1},
			}
			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "invalid log level")
		})
	}
}

func TestConfig_Validate_ValidLogLevels(t *testing.T) {
	tests := []string{"debug", "info", "warn", "error"}
	for _, level := range tests {
		t.Run("Level "+level, func(t *testing.T) {
			cfg := &Config{
				Logging: LoggingConfig{Level: level, Format: "json"},
				Sandbox: SandboxConfig{DefaultGasLimit: 1, DefaultFuelLimit: 1},
			}
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestConfig_Validate_InvalidLogFormat(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "info", Format: "xml"},
		Sandbox: SandboxConfig{DefaultGasLimit: 1, DefaultFuelLimit: 1},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestConfig_Validate_NegativeMemoryLimit(t *testing.T) {
	cfg := &Config{
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Sandbox:  SandboxConfig{DefaultGasLimit: 1, DefaultFuelLimit: 1},
		Strategy: StrategyConfig{MemoryLimitMB: -1},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "FLOW_STRAT_MEMORY_MB")
}

func TestConfig_Validate_NonPositiveGasOrFuel(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Sandbox: SandboxConfig{DefaultGasLimit: 0, DefaultFuelLimit: 1},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "PDDFR_GAS_LIMIT")

	cfg.Sandbox = SandboxConfig{DefaultGasLimit: 1, DefaultFuelLimit: 0}
	err = cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "PDDFR_FUEL_LIMIT")
}

func TestGetEnv_WithValue(t *testing.T) {
	os.Setenv("TEST_KEY", "test_value")
	defer os.Unsetenv("TEST_KEY")

	assert.Equal(t, "test_value", getEnv("TEST_KEY", "default"))
}

func TestGetEnv_WithoutValue(t *testing.T) {
	os.Unsetenv("TEST_KEY")
	assert.Equal(t, "default", getEnv("TEST_KEY", "default"))
}

func TestGetEnvAsInt_ValidInteger(t *testing.T) {
	os.Setenv("TEST_INT", "42")
	defer os.Unsetenv("TEST_INT")
	assert.Equal(t, 42, getEnvAsInt("TEST_INT", 10))
}

func TestGetEnvAsInt_InvalidInteger(t *testing.T) {
	os.Setenv("TEST_INT", "not_a_number")
	defer os.Unsetenv("TEST_INT")
	assert.Equal(t, 10, getEnvAsInt("TEST_INT", 10))
}

func TestGetEnvAsInt64_ValidInteger(t *testing.T) {
	os.Setenv("TEST_INT64", "4200000000")
	defer os.Unsetenv("TEST_INT64")
	assert.Equal(t, int64(4200000000), getEnvAsInt64("TEST_INT64", 10))
}

func TestGetEnvAsBool_True(t *testing.T) {
	tests := []string{"true", "True", "TRUE", "1", "t", "T"}
	for _, value := range tests {
		t.Run("Value "+value, func(t *testing.T) {
			os.Setenv("TEST_BOOL", value)
			defer os.Unsetenv("TEST_BOOL")
			assert.True(t, getEnvAsBool("TEST_BOOL", false))
		})
	}
}

func TestGetEnvAsBool_Invalid(t *testing.T) {
	os.Setenv("TEST_BOOL", "invalid")
	defer os.Unsetenv("TEST_BOOL")
	assert.True(t, getEnvAsBool("TEST_BOOL", true))
}
