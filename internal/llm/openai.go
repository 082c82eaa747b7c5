// internal/llm/openai.go
package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"

	"textagents/internal/common/config"
	"textagents/internal/common/errors"
)

// OpenAIProvider asks for a JSON-schema response format so the reply is the
// structured output itself.
type OpenAIProvider struct {
	client    *openai.Client
	maxTokens int
}

func NewOpenAIProvider(cfg config.OpenAIConfig, maxTokens int) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewProviderNotConfiguredError("openai", "set OPENAI_API_KEY or providers.openai.api_key")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Organization != "" {
		clientCfg.OrgID = cfg.Organization
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		maxTokens: maxTokens,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.Schema != nil {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        schemaName(req.Schema.Name()),
				Description: req.Schema.Description(),
				Schema:      req.Schema,
				Strict:      false,
			},
		}
	}
	applyOpenAISettings(&chatReq, req.Settings, p.maxTokens)

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI")
	}

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}, nil
}

func applyOpenAISettings(req *openai.ChatCompletionRequest, settings map[string]interface{}, defaultMax int) {
	// Reasoning models fix temperature and top_p at 1.
	if !isReasoningModel(req.Model) {
		if v, ok := floatSetting(settings, SettingTemperature); ok {
			req.Temperature = float32(v)
		}
		if v, ok := floatSetting(settings, SettingTopP); ok {
			req.TopP = float32(v)
		}
	}
	if v, ok := intSetting(settings, SettingSeed); ok {
		req.Seed = &v
	}
	if stop := stopSetting(settings); len(stop) > 0 {
		req.Stop = stop
	}
	if v, ok := intSetting(settings, SettingMaxTokens); ok {
		req.MaxCompletionTokens = v
	} else if defaultMax > 0 {
		req.MaxCompletionTokens = defaultMax
	}
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

// localRequestErrors are returned by the client before anything is sent.
var localRequestErrors = []error{
	openai.ErrReasoningModelLimitationsOther,
	openai.ErrReasoningModelLimitationsLogprobs,
	openai.ErrReasoningModelMaxTokensDeprecated,
	openai.ErrChatCompletionInvalidModel,
	openai.ErrChatCompletionStreamNotSupported,
	openai.ErrContentFieldsMisused,
}

// classifyOpenAIError marks requests the client or the API refused as
// non-retryable. Anything else is left for the transport retry loop.
func classifyOpenAIError(err error) error {
	for _, local := range localRequestErrors {
		if stderrors.Is(err, local) {
			return rejected("openai", err)
		}
	}

	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) && clientError(apiErr.HTTPStatusCode) {
		return rejected("openai", err)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) && clientError(reqErr.HTTPStatusCode) {
		return rejected("openai", err)
	}
	return err
}

var schemaNameInvalid = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// schemaName fits the response format's name rules.
func schemaName(name string) string {
	name = schemaNameInvalid.ReplaceAllString(name, "_")
	if name == "" {
		return "AgentOutput"
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
