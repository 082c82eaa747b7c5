// internal/workers/agents/run-agent/config.go
package runagent

import (
	"time"

	"textagents/internal/common/config"
)

type Config struct {
	// Timeout bounds one job, input processing and every model attempt included.
	Timeout time.Duration
}

func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout)
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Config{Timeout: timeout}
}
