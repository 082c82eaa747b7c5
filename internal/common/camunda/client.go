// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"textagents/internal/common/config"
	"textagents/internal/common/errors"
	"textagents/internal/common/logger"
)

// Client wraps the Zeebe gRPC client with connection retry and error mapping.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RequestTimeout         time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig defines retry behavior for transient failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

// ClientConfigFrom maps the camunda configuration section.
func ClientConfigFrom(cfg config.CamundaConfig) *ClientConfig {
	requestTimeout := config.GetDuration(cfg.RequestTimeout)
	if requestTimeout == 0 {
		requestTimeout = 30 * time.Second
	}
	return &ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: cfg.UsePlaintext,
		ConnectionTimeout:      10 * time.Second,
		RequestTimeout:         requestTimeout,
		RetryConfig:            DefaultRetryConfig,
	}
}

// Connect creates a client, retrying the initial topology probe with
// exponential backoff until the broker answers or retries run out.
func Connect(ctx context.Context, cfg *ClientConfig, log logger.Logger) (*Client, error) {
	log = logger.OrNop(log)
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig
	}

	var client *Client
	_, err := retry(ctx, cfg.RetryConfig, "connect", func(context.Context) (interface{}, error) {
		c, err := NewClientWithConfig(cfg)
		if err != nil {
			log.Warn("Zeebe connection attempt failed", map[string]interface{}{
				"gateway": cfg.GatewayAddress,
				"error":   err.Error(),
			})
			return nil, err
		}
		client = c
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// NewClientWithConfig creates a client and probes the broker once.
func NewClientWithConfig(cfg *ClientConfig) (*Client, error) {
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()

	if _, err := zeebeClient.NewTopologyCommand().Send(ctx); err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", cfg.GatewayAddress, err)
	}

	return &Client{client: zeebeClient, config: cfg}, nil
}

// GetClient returns the raw Zeebe client for job workers.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ExecuteWithRetry runs a Zeebe command, retrying transient failures.
func (c *Client) ExecuteWithRetry(
	ctx context.Context,
	commandFunc func(context.Context) (interface{}, error),
	operationName string,
) (interface{}, error) {
	return retry(ctx, c.config.RetryConfig, operationName, commandFunc)
}

func retry(
	ctx context.Context,
	rc *RetryConfig,
	operationName string,
	commandFunc func(context.Context) (interface{}, error),
) (interface{}, error) {
	for attempt := 0; ; attempt++ {
		result, err := commandFunc(ctx)
		if err == nil {
			return result, nil
		}

		if !isRetryableZeebeError(err) || attempt >= rc.MaxRetries {
			return nil, mapZeebeError(err, operationName, attempt)
		}

		delay := rc.BaseDelay * time.Duration(1<<attempt)
		if delay > rc.MaxDelay {
			delay = rc.MaxDelay
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, errors.NewBrokerError(operationName,
				fmt.Errorf("cancelled after %d attempts: %w", attempt+1, ctx.Err()), false)
		}
	}
}

func isRetryableZeebeError(err error) bool {
	msg := strings.ToLower(err.Error())
	retryablePhrases := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"unavailable",
		"unreachable",
		"broken pipe",
	}
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// mapZeebeError converts gateway failures into broker errors; transient
// failures stay retryable for the job handler.
func mapZeebeError(err error, operation string, attempt int) error {
	if attempt > 0 {
		err = fmt.Errorf("after %d attempts: %w", attempt+1, err)
	}
	return errors.NewBrokerError(operation, err, isRetryableZeebeError(err))
}

// HealthCheck asks the gateway for its topology.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}
