// internal/llm/google.go
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"textagents/internal/common/config"
	"textagents/internal/common/errors"
	"textagents/internal/schema"
	"textagents/internal/spec"
)

// GoogleProvider calls Gemini with a JSON response MIME type and a response
// schema derived from the output fields.
type GoogleProvider struct {
	apiKey    string
	maxTokens int
	opts      []option.ClientOption
}

func NewGoogleProvider(cfg config.GoogleConfig, maxTokens int, extra ...option.ClientOption) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewProviderNotConfiguredError("google", "set GOOGLE_API_KEY, GEMINI_API_KEY or providers.google.api_key")
	}
	return &GoogleProvider{apiKey: cfg.APIKey, maxTokens: maxTokens, opts: extra}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	opts := append([]option.ClientOption{option.WithAPIKey(p.apiKey)}, p.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google AI client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(req.Model)
	model.ResponseMIMEType = "application/json"
	if req.Schema != nil {
		model.ResponseSchema = GenaiSchema(req.Schema)
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if v, ok := floatSetting(req.Settings, SettingTemperature); ok {
		model.SetTemperature(float32(v))
	}
	if v, ok := floatSetting(req.Settings, SettingTopP); ok {
		model.SetTopP(float32(v))
	}
	if v, ok := intSetting(req.Settings, SettingMaxTokens); ok {
		model.SetMaxOutputTokens(int32(v))
	} else if p.maxTokens > 0 {
		model.SetMaxOutputTokens(int32(p.maxTokens))
	}
	if stop := stopSetting(req.Settings); len(stop) > 0 {
		model.StopSequences = stop
	}

	cs := model.StartChat()
	last := req.Messages[len(req.Messages)-1]
	for _, m := range req.Messages[:len(req.Messages)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return nil, fmt.Errorf("Google AI API error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates returned from Google AI")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	out := &Response{Text: text.String()}
	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// GenaiSchema converts an output schema to Gemini's schema subset. Numeric and
// length bounds have no equivalent there and are enforced after the reply.
func GenaiSchema(s *schema.OutputSchema) *genai.Schema {
	out := &genai.Schema{
		Type:        genai.TypeObject,
		Description: s.Description(),
		Properties:  map[string]*genai.Schema{},
		Required:    s.Required(),
	}
	for _, f := range s.Fields() {
		out.Properties[f.Name] = genaiField(f)
	}
	return out
}

func genaiField(f spec.FieldSpec) *genai.Schema {
	g := &genai.Schema{Description: f.Description, Nullable: f.Optional}
	switch f.Type {
	case spec.TypeStr:
		g.Type = genai.TypeString
	case spec.TypeInt:
		g.Type = genai.TypeInteger
	case spec.TypeFloat:
		g.Type = genai.TypeNumber
	case spec.TypeListStr:
		g.Type = genai.TypeArray
		g.Items = &genai.Schema{Type: genai.TypeString}
	case spec.TypeListInt:
		g.Type = genai.TypeArray
		g.Items = &genai.Schema{Type: genai.TypeInteger}
	default:
		g.Type = genai.TypeBoolean
	}

	// Gemini enums are string-only.
	if f.HasEnum() {
		values := make([]string, 0, len(f.Enum))
		for _, v := range f.Enum {
			s, ok := v.(string)
			if !ok {
				return g
			}
			values = append(values, s)
		}
		g.Type = genai.TypeString
		g.Format = "enum"
		g.Enum = values
	}
	return g
}
