// internal/llm/anthropic.go
package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"textagents/internal/common/config"
	"textagents/internal/common/errors"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicProvider talks to the Messages API directly or through AWS Bedrock.
// The output schema is sent as part of the system prompt.
type AnthropicProvider struct {
	name      string
	client    anthropic.Client
	bedrock   bool
	maxTokens int
}

func NewAnthropicProvider(ctx context.Context, cfg config.AnthropicConfig, maxTokens int, extra ...option.RequestOption) (*AnthropicProvider, error) {
	var opts []option.RequestOption

	if cfg.UseBedrock {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		if cfg.APIKey == "" {
			return nil, errors.NewProviderNotConfiguredError("anthropic", "set ANTHROPIC_API_KEY or providers.anthropic.api_key")
		}
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
	}
	opts = append(opts, extra...)

	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &AnthropicProvider{
		name:      "anthropic",
		client:    anthropic.NewClient(opts...),
		bedrock:   cfg.UseBedrock,
		maxTokens: maxTokens,
	}, nil
}

func (p *AnthropicProvider) Name() string { return p.name }

func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	system, err := systemWithSchema(req.System, req)
	if err != nil {
		return nil, err
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	model := anthropic.Model(req.Model)
	if p.bedrock {
		model = bedrockModel(model)
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: int64(p.maxTokens),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if v, ok := intSetting(req.Settings, SettingMaxTokens); ok {
		params.MaxTokens = int64(v)
	}
	if v, ok := floatSetting(req.Settings, SettingTemperature); ok {
		params.Temperature = anthropic.Float(v)
	}
	if v, ok := floatSetting(req.Settings, SettingTopP); ok {
		params.TopP = anthropic.Float(v)
	}
	if stop := stopSetting(req.Settings); len(stop) > 0 {
		params.StopSequences = stop
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if stderrors.As(err, &apiErr) && clientError(apiErr.StatusCode) {
			return nil, rejected(p.name, err)
		}
		return nil, err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	return &Response{
		Text:         text.String(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// systemWithSchema appends the JSON output contract for providers without a
// native response-format option.
func systemWithSchema(system string, req *Request) (string, error) {
	if req.Schema == nil {
		return system, nil
	}
	raw, err := json.Marshal(req.Schema)
	if err != nil {
		return "", err
	}
	contract := "Respond with a single JSON object and nothing else. " +
		"It must validate against this JSON Schema:\n" + string(raw)
	if system == "" {
		return contract, nil
	}
	return system + "\n\n" + contract, nil
}

var bedrockModels = map[anthropic.Model]string{
	anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
	anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
	anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
	anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
}

// bedrockModel maps Anthropic model names to Bedrock inference profiles.
// Unknown names are assumed to already be Bedrock identifiers.
func bedrockModel(model anthropic.Model) anthropic.Model {
	if m, ok := bedrockModels[model]; ok {
		return anthropic.Model(m)
	}
	return model
}
