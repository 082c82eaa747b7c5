// internal/llm/provider_test.go
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textagents/internal/common/config"
	"textagents/internal/common/errors"
	"textagents/internal/schema"
	"textagents/internal/spec"
)

func verdictSchema(t *testing.T) *schema.OutputSchema {
	t.Helper()
	fields := []spec.FieldSpec{
		{Name: "reasoning", Type: spec.TypeStr, Description: "Why"},
		{Name: "level", Type: spec.TypeStr, Enum: []interface{}{"low", "high"}},
		{Name: "severity", Type: spec.TypeInt, Enum: []interface{}{1, 2, 3}},
		{Name: "tags", Type: spec.TypeListStr, Optional: true},
	}
	spec.SortFields(fields)
	s, err := schema.Build(&spec.Specification{OutputFields: fields, OutputTypeName: "Verdict v1"})
	require.NoError(t, err)
	return s
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"reasoning\":\"r\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, 256)
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), &Request{
		Model:    "gpt-5",
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		Schema:   verdictSchema(t),
		Settings: map[string]interface{}{"temperature": 0.3, "seed": 7},
	})
	require.NoError(t, err)

	assert.Equal(t, `{"reasoning":"r"}`, resp.Text)
	assert.Equal(t, int64(12), resp.InputTokens)
	assert.Equal(t, int64(4), resp.OutputTokens)

	assert.Equal(t, "gpt-5", captured["model"])
	assert.EqualValues(t, 256, captured["max_completion_tokens"])
	assert.EqualValues(t, 7, captured["seed"])
	assert.NotContains(t, captured, "temperature", "reasoning models fix temperature")
	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])

	format := captured["response_format"].(map[string]interface{})
	assert.Equal(t, "json_schema", format["type"])
	jsonSchema := format["json_schema"].(map[string]interface{})
	assert.Equal(t, "Verdict_v1", jsonSchema["name"])
	assert.Contains(t, jsonSchema["schema"].(map[string]interface{})["properties"], "reasoning")
}

func TestOpenAIProvider_SamplingSettings(t *testing.T) {
	tests := []struct {
		model    string
		wantTemp bool
	}{
		{"gpt-4o", true},
		{"gpt-4o-mini", true},
		{"gpt-5-mini", false},
		{"o3", false},
		{"o4-mini", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			req := openai.ChatCompletionRequest{Model: tt.model}
			applyOpenAISettings(&req, map[string]interface{}{"temperature": 0.3, "top_p": 0.9}, 0)

			if tt.wantTemp {
				assert.InDelta(t, 0.3, req.Temperature, 1e-6)
				assert.InDelta(t, 0.9, req.TopP, 1e-6)
			} else {
				assert.Zero(t, req.Temperature)
				assert.Zero(t, req.TopP)
				assert.NoError(t, openai.NewReasoningValidator().Validate(req))
			}
		})
	}
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int
		retryable bool
	}{
		{"bad request is not retried", http.StatusBadRequest, 1, false},
		{"unauthorized is not retried", http.StatusUnauthorized, 1, false},
		{"rate limit is retried", http.StatusTooManyRequests, 3, true},
		{"server error is retried", http.StatusInternalServerError, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "request failed", "type": "invalid_request_error"}}`))
			}))
			defer srv.Close()

			p, err := NewOpenAIProvider(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, 0)
			require.NoError(t, err)
			reg := NewRegistry()
			reg.RegisterProvider(p)
			inv := NewInvoker(reg, WithTransportRetries(2, time.Millisecond))

			_, err = inv.Invoke(context.Background(), Call{Model: "openai:gpt-4o", Prompt: "hi", Schema: verdictSchema(t)})
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeModelInvocationFailed))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
			assert.EqualValues(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestClassifyOpenAIError_LocalValidation(t *testing.T) {
	err := classifyOpenAIError(fmt.Errorf("create: %w", openai.ErrReasoningModelLimitationsOther))
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelInvocationFailed))
	assert.False(t, errors.IsRetryable(err))

	plain := fmt.Errorf("connection reset")
	assert.Equal(t, plain, classifyOpenAIError(plain))
}

func TestOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(config.OpenAIConfig{}, 0)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelInvocationFailed))
	assert.False(t, errors.IsRetryable(err))
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "{\"reasoning\":\"r\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 9, "output_tokens": 3}
		}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(context.Background(),
		config.AnthropicConfig{APIKey: "sk-ant", BaseURL: srv.URL}, 1024,
		option.WithMaxRetries(0))
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), &Request{
		Model:  "claude-sonnet-4-5",
		System: "be brief",
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "{}"},
			{Role: RoleUser, Content: "fix it"},
		},
		Schema:   verdictSchema(t),
		Settings: map[string]interface{}{"max_tokens": 300},
	})
	require.NoError(t, err)

	assert.Equal(t, `{"reasoning":"r"}`, resp.Text)
	assert.Equal(t, int64(9), resp.InputTokens)
	assert.Equal(t, int64(3), resp.OutputTokens)

	assert.EqualValues(t, 300, captured["max_tokens"])
	assert.Len(t, captured["messages"], 3)
	system := captured["system"].([]interface{})[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, system, "be brief")
	assert.Contains(t, system, `"title":"Verdict v1"`)
}

func TestAnthropicProvider_BadRequestIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "invalid_request_error", "message": "max_tokens too large"}}`))
	}))
	defer srv.Close()

	p, err := NewAnthropicProvider(context.Background(),
		config.AnthropicConfig{APIKey: "sk-ant", BaseURL: srv.URL}, 1024,
		option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), &Request{
		Model:    "claude-sonnet-4-5",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeModelInvocationFailed))
	assert.False(t, errors.IsRetryable(err))
}

func TestBedrockModel(t *testing.T) {
	assert.Equal(t, "us.anthropic.claude-sonnet-4-20250514-v1:0", string(bedrockModel("claude-sonnet-4-20250514")))
	assert.Equal(t, "custom-profile", string(bedrockModel("custom-profile")))
}

func TestGenaiSchema(t *testing.T) {
	g := GenaiSchema(verdictSchema(t))

	assert.Equal(t, genai.TypeObject, g.Type)
	assert.Equal(t, []string{"reasoning", "level", "severity"}, g.Required)

	assert.Equal(t, genai.TypeString, g.Properties["reasoning"].Type)
	assert.Equal(t, "Why", g.Properties["reasoning"].Description)
	assert.Equal(t, []string{"low", "high"}, g.Properties["level"].Enum)

	assert.Equal(t, genai.TypeInteger, g.Properties["severity"].Type)
	assert.Empty(t, g.Properties["severity"].Enum, "non-string enums are enforced after the reply")

	tags := g.Properties["tags"]
	assert.Equal(t, genai.TypeArray, tags.Type)
	assert.True(t, tags.Nullable)
	assert.Equal(t, genai.TypeString, tags.Items.Type)
}

func TestRegistry_Resolve(t *testing.T) {
	reg := NewRegistryFromConfig(config.ProvidersConfig{OpenAI: config.OpenAIConfig{APIKey: "sk"}}, 0)

	p, model, err := reg.Resolve(context.Background(), "openai:gpt-5")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "gpt-5", model)

	again, model, err := reg.Resolve(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.Same(t, p, again, "providers are built once")
	assert.Equal(t, "gpt-4o", model)

	_, _, err = reg.Resolve(context.Background(), "gemini:gemini-2.0-flash")
	require.Error(t, err, "google has no key configured")
	assert.Contains(t, err.Error(), "'google' is not configured")

	assert.Contains(t, reg.Prefixes(), "google-gla")
	assert.Contains(t, reg.Prefixes(), "bedrock")
}

func TestRegistry_SlowFactoryDoesNotBlockOthers(t *testing.T) {
	reg := NewRegistry()
	release := make(chan struct{})
	started := make(chan struct{})
	reg.Register("slow", func(context.Context) (Provider, error) {
		close(started)
		<-release
		return ProviderFunc{ProviderName: "slow"}, nil
	})
	reg.RegisterProvider(ProviderFunc{ProviderName: "fast"})

	slowDone := make(chan Provider)
	go func() {
		p, _, err := reg.Resolve(context.Background(), "slow:m")
		assert.NoError(t, err)
		slowDone <- p
	}()
	<-started

	p, model, err := reg.Resolve(context.Background(), "fast:m")
	require.NoError(t, err)
	assert.Equal(t, "fast", p.Name())
	assert.Equal(t, "m", model)
	assert.Contains(t, reg.Prefixes(), "slow")

	close(release)
	select {
	case p := <-slowDone:
		assert.Equal(t, "slow", p.Name())
	case <-time.After(5 * time.Second):
		t.Fatal("slow provider never resolved")
	}

	again, _, err := reg.Resolve(context.Background(), "slow:m")
	require.NoError(t, err)
	assert.Equal(t, "slow", again.Name())
}

func TestSplitModelID(t *testing.T) {
	p, m := SplitModelID("anthropic:claude-sonnet-4-5")
	assert.Equal(t, "anthropic", p)
	assert.Equal(t, "claude-sonnet-4-5", m)

	p, m = SplitModelID("gpt-5")
	assert.Equal(t, DefaultProvider, p)
	assert.Equal(t, "gpt-5", m)
}
