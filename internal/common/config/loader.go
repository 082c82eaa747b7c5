// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TEXTAGENTS"

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Load reads configs/config.yaml, merges config.<env>.yaml on top, then applies
// TEXTAGENTS_* environment overrides and provider key fallbacks.
func Load() (*Config, error) {
	LoadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv(envPrefix + "_APP_ENVIRONMENT")
	if env == "" {
		env = os.Getenv("APP_ENVIRONMENT")
	}
	if env == "" {
		env = "development"
	}
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	LoadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

// FromEnv builds a configuration from defaults and the environment only, for
// callers that load agents without a config file.
func FromEnv() (*Config, error) {
	return finish(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it even when the
// yaml file omits it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "textagents")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("agent.timeout", 120000)
	v.SetDefault("agent.transport_retries", 2)
	v.SetDefault("agent.backoff_base", 500)
	v.SetDefault("agent.max_tokens", 4096)
	v.SetDefault("agent.model_override", "")

	v.SetDefault("providers.openai.api_key", "")
	v.SetDefault("providers.openai.base_url", "")
	v.SetDefault("providers.openai.organization", "")
	v.SetDefault("providers.anthropic.api_key", "")
	v.SetDefault("providers.anthropic.base_url", "")
	v.SetDefault("providers.anthropic.use_bedrock", false)
	v.SetDefault("providers.anthropic.aws_region", "")
	v.SetDefault("providers.anthropic.aws_profile", "")
	v.SetDefault("providers.google.api_key", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "textagents")
	v.SetDefault("telemetry.token", "")
	v.SetDefault("telemetry.jaeger_endpoint", "")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 3600)
	v.SetDefault("cache.key_prefix", "textagents:result:")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("camunda.broker_address", "localhost:26500")
	v.SetDefault("camunda.use_plaintext", true)
	v.SetDefault("camunda.max_jobs_active", 10)
	v.SetDefault("camunda.timeout", 300000)
	v.SetDefault("camunda.request_timeout", 30000)

	v.SetDefault("registry.path", "configs/agents.yaml")
	v.SetDefault("registry.agents_dir", "agents")

	v.SetDefault("server.address", ":8080")
}

// LoadEnvFile loads the first .env found in the working directory, its parents or
// the module root. It returns the path loaded, or "" when none was found.
func LoadEnvFile() string {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig falls back to the provider SDKs' conventional variable names.
func overrideEmptyConfig(cfg *Config) {
	fillFromEnv(&cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	fillFromEnv(&cfg.Providers.OpenAI.BaseURL, "OPENAI_BASE_URL")
	fillFromEnv(&cfg.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	fillFromEnv(&cfg.Providers.Anthropic.AWSRegion, "AWS_REGION")
	fillFromEnv(&cfg.Providers.Anthropic.AWSProfile, "AWS_PROFILE")
	fillFromEnv(&cfg.Providers.Google.APIKey, "GOOGLE_API_KEY")
	fillFromEnv(&cfg.Providers.Google.APIKey, "GEMINI_API_KEY")
	fillFromEnv(&cfg.Telemetry.Token, "LOGFIRE_TOKEN")
	fillFromEnv(&cfg.Telemetry.JaegerEndpoint, "OTEL_EXPORTER_JAEGER_ENDPOINT")

	if cfg.Telemetry.Token != "" || cfg.Telemetry.JaegerEndpoint != "" {
		cfg.Telemetry.Enabled = true
	}
}

func fillFromEnv(dst *string, name string) {
	if *dst != "" {
		return
	}
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Workers == nil {
		cfg.Workers = map[string]WorkerConfig{}
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = cfg.Camunda.MaxJobsActive
		}
		if worker.Timeout == 0 {
			worker.Timeout = cfg.Agent.Timeout
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
}

func validateConfig(cfg *Config) error {
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", cfg.Logging.Level)
	}
	if cfg.Agent.Timeout <= 0 {
		return fmt.Errorf("agent.timeout must be positive")
	}
	if cfg.Agent.TransportRetries < 0 {
		return fmt.Errorf("agent.transport_retries must not be negative")
	}
	if cfg.Cache.Enabled && cfg.Cache.Redis.Address == "" {
		return fmt.Errorf("cache.redis.address is required when cache is enabled")
	}
	if cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required")
	}
	for name, w := range cfg.Workers {
		if w.Enabled && w.MaxJobsActive <= 0 {
			return fmt.Errorf("workers.%s.max_jobs_active must be positive", name)
		}
	}
	return nil
}

// GetWorkerConfig retrieves task-type specific configuration with fallback to
// the camunda and agent defaults.
func GetWorkerConfig(cfg *Config, taskType string) WorkerConfig {
	if worker, exists := cfg.Workers[taskType]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: cfg.Camunda.MaxJobsActive,
		Timeout:       cfg.Agent.Timeout,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled reports whether a task type is enabled; unknown task types are.
func IsWorkerEnabled(cfg *Config, taskType string) bool {
	if worker, exists := cfg.Workers[taskType]; exists {
		return worker.Enabled
	}
	return true
}
