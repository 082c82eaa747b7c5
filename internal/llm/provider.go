// Package llm sends rendered agent prompts to model providers and turns the
// replies into validated structured output.
package llm

import (
	"context"
	"net/http"

	"textagents/internal/common/errors"
	"textagents/internal/schema"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Request is one completion call. Model is the provider-local model name,
// without the "provider:" prefix.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Schema   *schema.OutputSchema
	Settings map[string]interface{}
}

type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Provider is a model backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc struct {
	ProviderName string
	Fn           func(ctx context.Context, req *Request) (*Response, error)
}

func (p ProviderFunc) Name() string { return p.ProviderName }

func (p ProviderFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	return p.Fn(ctx, req)
}

// clientError reports whether an HTTP status means the request itself was
// rejected, so sending it again cannot succeed.
func clientError(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return false
	}
	return true
}

// rejected wraps err as a non-retryable invocation error.
func rejected(provider string, err error) *errors.StandardError {
	e := errors.NewModelInvocationError(provider, err)
	e.Retryable = false
	return e
}
