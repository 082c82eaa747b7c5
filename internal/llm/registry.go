// internal/llm/registry.go
package llm

import (
	"context"
	"sort"
	"strings"
	"sync"

	"textagents/internal/common/config"
	"textagents/internal/common/errors"
)

// DefaultProvider serves model identifiers without a "provider:" prefix.
const DefaultProvider = "openai"

// Factory builds a provider on first use.
type Factory func(ctx context.Context) (Provider, error)

// Registry resolves "provider:model" identifiers. Providers are built lazily
// and then reused.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	aliases   map[string]string
	built     map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]Factory{},
		aliases:   map[string]string{},
		built:     map[string]Provider{},
	}
}

// Register adds a provider factory under name and any aliases.
func (r *Registry) Register(name string, f Factory, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	delete(r.built, name)
	r.aliases[name] = name
	for _, a := range aliases {
		r.aliases[a] = name
	}
}

// RegisterProvider adds an already built provider.
func (r *Registry) RegisterProvider(p Provider, aliases ...string) {
	r.Register(p.Name(), func(context.Context) (Provider, error) { return p, nil }, aliases...)
}

// Prefixes returns every accepted provider prefix, sorted.
func (r *Registry) Prefixes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.aliases))
	for a := range r.aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// SplitModelID splits "provider:model". Identifiers without a prefix belong to
// DefaultProvider.
func SplitModelID(modelID string) (provider, model string) {
	if i := strings.Index(modelID, ":"); i > 0 {
		return modelID[:i], modelID[i+1:]
	}
	return DefaultProvider, modelID
}

// Resolve returns the provider for modelID and the provider-local model name.
// Factories run without the registry lock held, so a slow provider setup does
// not block resolution of the others. When two callers build the same provider
// at once, the first one stored wins.
func (r *Registry) Resolve(ctx context.Context, modelID string) (Provider, string, error) {
	prefix, model := SplitModelID(modelID)

	r.mu.Lock()
	name, ok := r.aliases[prefix]
	if !ok || model == "" {
		known := make([]string, 0, len(r.aliases))
		for a := range r.aliases {
			known = append(known, a)
		}
		r.mu.Unlock()
		sort.Strings(known)
		return nil, "", errors.NewUnknownProviderError(modelID, known)
	}
	if p, ok := r.built[name]; ok {
		r.mu.Unlock()
		return p, model, nil
	}
	factory := r.factories[name]
	r.mu.Unlock()

	p, err := factory(ctx)
	if err != nil {
		return nil, "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.built[name]; ok {
		return existing, model, nil
	}
	r.built[name] = p
	return p, model, nil
}

// NewRegistryFromConfig registers the OpenAI, Anthropic and Google providers.
// Credentials are checked when a provider is first resolved.
func NewRegistryFromConfig(cfg config.ProvidersConfig, maxTokens int) *Registry {
	r := NewRegistry()

	r.Register("openai", func(context.Context) (Provider, error) {
		return NewOpenAIProvider(cfg.OpenAI, maxTokens)
	})
	r.Register("anthropic", func(ctx context.Context) (Provider, error) {
		return NewAnthropicProvider(ctx, cfg.Anthropic, maxTokens)
	})
	r.Register("bedrock", func(ctx context.Context) (Provider, error) {
		bedrock := cfg.Anthropic
		bedrock.UseBedrock = true
		p, err := NewAnthropicProvider(ctx, bedrock, maxTokens)
		if err != nil {
			return nil, err
		}
		p.name = "bedrock"
		return p, nil
	})
	r.Register("google", func(context.Context) (Provider, error) {
		return NewGoogleProvider(cfg.Google, maxTokens)
	}, "google-gla", "gemini")

	return r
}
