// internal/common/config/config.go
package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Logging   LoggingConfig           `mapstructure:"logging"`
	Agent     AgentConfig             `mapstructure:"agent"`
	Providers ProvidersConfig         `mapstructure:"providers"`
	Telemetry TelemetryConfig         `mapstructure:"telemetry"`
	Cache     CacheConfig             `mapstructure:"cache"`
	Camunda   CamundaConfig           `mapstructure:"camunda"`
	Workers   map[string]WorkerConfig `mapstructure:"workers"`
	Registry  RegistryConfig          `mapstructure:"registry"`
	Server    ServerConfig            `mapstructure:"server"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// AgentConfig holds defaults applied to every agent invocation.
type AgentConfig struct {
	Timeout          int    `mapstructure:"timeout"`      // milliseconds, per run
	TransportRetries int    `mapstructure:"transport_retries"`
	BackoffBase      int    `mapstructure:"backoff_base"` // milliseconds
	MaxTokens        int    `mapstructure:"max_tokens"`
	ModelOverride    string `mapstructure:"model_override"`
}

func (a AgentConfig) TimeoutDuration() time.Duration {
	return GetDuration(a.Timeout)
}

func (a AgentConfig) BackoffDuration() time.Duration {
	return GetDuration(a.BackoffBase)
}

type ProvidersConfig struct {
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Google    GoogleConfig    `mapstructure:"google"`
}

type OpenAIConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	Organization string `mapstructure:"organization"`
}

type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

type GoogleConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// TelemetryConfig controls the process-wide otel setup.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	Token          string `mapstructure:"token"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

type CacheConfig struct {
	Enabled   bool        `mapstructure:"enabled"`
	TTL       int         `mapstructure:"ttl"` // seconds
	KeyPrefix string      `mapstructure:"key_prefix"`
	Redis     RedisConfig `mapstructure:"redis"`
}

func (c CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	UsePlaintext   bool   `mapstructure:"use_plaintext"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// WorkerConfig holds per-task-type overrides for the agent worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

type RegistryConfig struct {
	Path      string `mapstructure:"path"`
	AgentsDir string `mapstructure:"agents_dir"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// GetDuration converts milliseconds to a time.Duration.
func GetDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
