// internal/common/camunda/client_test.go
package camunda

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textagents/internal/common/config"
	"textagents/internal/common/errors"
)

var fastRetry = &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	out, err := retry(context.Background(), fastRetry, "complete-job", func(context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("rpc error: code = Unavailable")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

func TestRetry_PermanentFailsImmediately(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), fastRetry, "complete-job", func(context.Context) (interface{}, error) {
		calls++
		return nil, fmt.Errorf("NOT_FOUND: job 42 not found")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBrokerUnavailable))
	assert.False(t, errors.IsRetryable(err))
	assert.Contains(t, err.Error(), "Zeebe operation 'complete-job' failed")
}

func TestRetry_ExhaustedStaysRetryable(t *testing.T) {
	calls := 0
	_, err := retry(context.Background(), fastRetry, "topology", func(context.Context) (interface{}, error) {
		calls++
		return nil, fmt.Errorf("dial tcp: connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.IsRetryable(err))
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	_, err := retry(ctx, slow, "topology", func(context.Context) (interface{}, error) {
		cancel()
		return nil, fmt.Errorf("deadline exceeded")
	})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.Canceled))
}

func TestIsRetryableZeebeError(t *testing.T) {
	assert.True(t, isRetryableZeebeError(fmt.Errorf("connection reset by peer")))
	assert.True(t, isRetryableZeebeError(fmt.Errorf("context deadline exceeded")))
	assert.False(t, isRetryableZeebeError(fmt.Errorf("permission denied")))
}

func TestClientConfigFrom(t *testing.T) {
	cc := ClientConfigFrom(config.CamundaConfig{BrokerAddress: "zeebe:26500", UsePlaintext: true})
	assert.Equal(t, "zeebe:26500", cc.GatewayAddress)
	assert.True(t, cc.UsePlaintextConnection)
	assert.Equal(t, 30*time.Second, cc.RequestTimeout)
	assert.Same(t, DefaultRetryConfig, cc.RetryConfig)
}
