package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textagents/internal/common/cache"
	"textagents/internal/common/config"
	"textagents/internal/common/errors"
	"textagents/internal/common/logger"
	"textagents/internal/inputs"
	"textagents/internal/llm"
	"textagents/internal/spec"
)

const reviewAgent = `---
[agent]
model = "fake:reviewer-1"
instructions = "You review code. Today is {CURRENT_DATE}."
retries = 1

[agent.input_type]
code = "str"
language = { type = "str", optional = true }

[agent.output_type]
reasoning = { type = "str" }
approved = { type = "bool" }
risk = { type = "str", enum = ["low", "medium", "high"] }
---
Review this code:
{code}
`

// fakeModel answers from a queue and records what it was sent.
type fakeModel struct {
	mu       sync.Mutex
	replies  []string
	fallback string
	requests []*llm.Request
}

func (f *fakeModel) provider() llm.Provider {
	return llm.ProviderFunc{ProviderName: "fake", Fn: func(_ context.Context, req *llm.Request) (*llm.Response, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		snapshot := *req
		snapshot.Messages = append([]llm.Message(nil), req.Messages...)
		f.requests = append(f.requests, &snapshot)

		text := f.fallback
		if len(f.replies) > 0 {
			text = f.replies[0]
			f.replies = f.replies[1:]
		}
		return &llm.Response{Text: text, InputTokens: 20, OutputTokens: 8}, nil
	}}
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

const approved = `{"reasoning": "looks fine", "approved": true, "risk": "low"}`

func writeAgent(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
}

func loadTestAgent(t *testing.T, model *fakeModel, opts ...Option) *Agent {
	t.Helper()
	reg := llm.NewRegistry()
	reg.RegisterProvider(model.provider())

	base := []Option{
		WithConfig(&config.Config{}),
		WithRegistry(reg),
		WithProcessor(inputs.NewProcessor(inputs.WithClock(fixedClock))),
		WithLogger(logger.NewTestLogger(t)),
	}
	a, err := Load(writeAgent(t, "code_review.txt", reviewAgent), append(base, opts...)...)
	require.NoError(t, err)
	return a
}

func TestRun_Success(t *testing.T) {
	model := &fakeModel{replies: []string{approved}}
	a := loadTestAgent(t, model)

	res, err := a.Run(context.Background(), map[string]interface{}{"code": "x := 1"})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{"reasoning": "looks fine", "approved": true, "risk": "low"}, res.Output)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.InvocationID)
	assert.False(t, res.Cached)
	assert.Equal(t, "fake:reviewer-1", res.Model)

	require.Equal(t, 1, model.calls())
	req := model.requests[0]
	assert.Equal(t, "reviewer-1", req.Model)
	assert.Equal(t, "You review code. Today is 2026-03-14.", req.System)
	assert.Equal(t, "Review this code:\nx := 1", req.Messages[0].Content)
	assert.Equal(t, []string{"reasoning", "approved", "risk"}, req.Schema.PropertyNames())
}

func TestRun_RetriesInvalidOutput(t *testing.T) {
	model := &fakeModel{replies: []string{
		`{"reasoning": "hmm", "approved": true, "risk": "extreme"}`,
		approved,
	}}
	a := loadTestAgent(t, model)

	res, err := a.Run(context.Background(), map[string]interface{}{"code": "x"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "low", res.Output["risk"])
}

func TestRun_ExhaustedRetriesIsTerminal(t *testing.T) {
	model := &fakeModel{fallback: `{"reasoning": "hmm", "approved": "yes", "risk": "low"}`}
	a := loadTestAgent(t, model)

	_, err := a.Run(context.Background(), map[string]interface{}{"code": "x"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrOutputValidation))
	assert.True(t, stderrors.Is(err, errors.ErrTextAgents))
	assert.Equal(t, 2, model.calls(), "retries = 1 allows one extra attempt")
}

func TestRun_MissingInputNeverCallsModel(t *testing.T) {
	model := &fakeModel{fallback: approved}
	a := loadTestAgent(t, model)

	_, err := a.Run(context.Background(), map[string]interface{}{"language": "go"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrMissingInput))
	assert.Contains(t, err.Error(), "code")
	assert.Zero(t, model.calls())
}

func TestRunAsync_Concurrent(t *testing.T) {
	model := &fakeModel{fallback: approved}
	a := loadTestAgent(t, model)

	const n = 12
	channels := make([]<-chan AsyncResult, n)
	for i := 0; i < n; i++ {
		channels[i] = a.RunAsync(context.Background(), map[string]interface{}{"code": fmt.Sprintf("v%d", i)})
	}

	ids := map[string]bool{}
	for _, ch := range channels {
		out := <-ch
		require.NoError(t, out.Err)
		ids[out.Result.InvocationID] = true
	}
	assert.Len(t, ids, n)
	assert.Equal(t, n, model.calls())
}

func TestRun_Timeout(t *testing.T) {
	reg := llm.NewRegistry()
	reg.RegisterProvider(llm.ProviderFunc{ProviderName: "fake", Fn: func(ctx context.Context, _ *llm.Request) (*llm.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	a, err := Load(writeAgent(t, "slow.txt", reviewAgent),
		WithConfig(&config.Config{}),
		WithRegistry(reg),
		WithTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)

	_, err = a.Run(context.Background(), map[string]interface{}{"code": "x"})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrModelTimeout))
}

func TestRun_CachedResult(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	model := &fakeModel{fallback: approved}
	a := loadTestAgent(t, model, WithCache(cache.NewRedisCache(client, "test:"), time.Hour))
	in := map[string]interface{}{"code": "x"}

	first, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := a.Run(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Output, second.Output)
	assert.NotEqual(t, first.InvocationID, second.InvocationID)
	assert.Equal(t, 1, model.calls())

	_, err = a.Run(context.Background(), map[string]interface{}{"code": "y"})
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls(), "different prompt misses the cache")
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (map[string]interface{}, bool, error) {
	return nil, false, fmt.Errorf("redis down")
}

func (brokenCache) Set(context.Context, string, map[string]interface{}, time.Duration) error {
	return fmt.Errorf("redis down")
}

func TestRun_CacheErrorsDoNotFailRun(t *testing.T) {
	model := &fakeModel{fallback: approved}
	a := loadTestAgent(t, model, WithCache(brokenCache{}, time.Minute))

	res, err := a.Run(context.Background(), map[string]interface{}{"code": "x"})
	require.NoError(t, err)
	assert.False(t, res.Cached)
}

func TestRun_UncacheableSettingsSkipCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	content := strings.Replace(reviewAgent, "[agent.input_type]", "[agent.settings]\ntemperature = nan\n\n[agent.input_type]", 1)
	reg := llm.NewRegistry()
	model := &fakeModel{fallback: approved}
	reg.RegisterProvider(model.provider())
	a, err := Load(writeAgent(t, "nan.txt", content),
		WithConfig(&config.Config{}),
		WithRegistry(reg),
		WithLogger(logger.NewTestLogger(t)),
		WithCache(cache.NewRedisCache(client, "test:"), time.Hour),
	)
	require.NoError(t, err)

	in := map[string]interface{}{"code": "x"}
	for i := 0; i < 2; i++ {
		res, err := a.Run(context.Background(), in)
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, 2, model.calls())
	assert.Empty(t, mr.Keys())
}

func TestOpenCache(t *testing.T) {
	c, ttl, closeFn := OpenCache(WithConfig(&config.Config{}))
	assert.IsType(t, cache.NopCache{}, c)
	assert.Zero(t, ttl)
	assert.NoError(t, closeFn())

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	c, ttl, closeFn = OpenCache(WithConfig(&config.Config{Cache: config.CacheConfig{
		Enabled: true, TTL: 30, Redis: config.RedisConfig{Address: mr.Addr()},
	}}))
	assert.IsType(t, &cache.RedisCache{}, c)
	assert.Equal(t, 30*time.Second, ttl)
	assert.NoError(t, closeFn())

	given := brokenCache{}
	c, ttl, _ = OpenCache(WithConfig(&config.Config{}), WithCache(given, time.Minute))
	assert.Equal(t, given, c)
	assert.Equal(t, time.Minute, ttl)
}

func TestLoad_ModelOverride(t *testing.T) {
	model := &fakeModel{fallback: approved}
	a := loadTestAgent(t, model, WithModelOverride("fake:reviewer-2"))

	assert.Equal(t, "fake:reviewer-2", a.Model())
	_, err := a.Run(context.Background(), map[string]interface{}{"code": "x"})
	require.NoError(t, err)
	assert.Equal(t, "reviewer-2", model.requests[0].Model)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"), WithConfig(&config.Config{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Agent file not found")
}

func TestIntrospection(t *testing.T) {
	a := loadTestAgent(t, &fakeModel{})

	assert.Equal(t, "code_review", a.Name())
	assert.Equal(t, 1, a.Retries())
	assert.Equal(t, []string{"code", "language"}, a.InputNames())
	assert.Equal(t, []string{"code"}, a.RequiredInputs())
	assert.Equal(t, []string{"language"}, a.OptionalInputs())

	fields := a.OutputFields()
	require.Len(t, fields, 3)
	assert.Equal(t, "reasoning", fields[0].Name)

	meta := a.FieldMetadata()
	assert.Equal(t, []interface{}{"low", "medium", "high"}, meta["risk"].Enum)
	assert.True(t, meta["approved"].Required)
}

func TestName_Fallbacks(t *testing.T) {
	s, err := spec.Parse("---\n[agent]\nmodel = \"fake:m\"\n[agent.output_type]\nok = {}\n---\nSay {x}\n", "")
	require.NoError(t, err)

	a, err := New(s, WithConfig(&config.Config{}), WithRegistry(llm.NewRegistry()))
	require.NoError(t, err)
	assert.Equal(t, "unnamed_agent", a.Name())
	assert.Equal(t, []string{"x"}, a.RequiredInputs())

	named, err := New(&spec.Specification{
		Name: "judge", Model: "fake:m", PromptTemplate: "{x}",
		OutputFields: []spec.FieldSpec{{Name: "ok", Type: spec.TypeBool}},
	}, WithConfig(&config.Config{}), WithRegistry(llm.NewRegistry()))
	require.NoError(t, err)
	assert.Equal(t, "judge", named.Name())
}

func TestNew_RejectsInvalidSpecification(t *testing.T) {
	base := spec.Specification{
		Model: "fake:m", PromptTemplate: "{x}",
		OutputFields: []spec.FieldSpec{{Name: "ok", Type: spec.TypeBool}},
	}

	tests := []struct {
		name    string
		mutate  func(s *spec.Specification)
		wantMsg string
	}{
		{"negative retries", func(s *spec.Specification) { s.Retries = -1 }, "must be zero or greater, got -1"},
		{"no output fields", func(s *spec.Specification) { s.OutputFields = nil }, "No fields defined in [agent.output_type]."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)

			a, err := New(&s, WithConfig(&config.Config{}), WithRegistry(llm.NewRegistry()))
			require.Error(t, err)
			assert.Nil(t, a)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.True(t, stderrors.Is(err, errors.ErrDefinition))
		})
	}
}

func TestValidate(t *testing.T) {
	report, err := Validate(writeAgent(t, "code_review.txt", reviewAgent))
	require.NoError(t, err)

	assert.Equal(t, "code_review", report.Name)
	assert.Equal(t, "fake:reviewer-1", report.Model)
	assert.Equal(t, []string{"reasoning", "approved", "risk"}, report.OutputFields)
	assert.Equal(t, []string{"CURRENT_DATE", "code"}, report.Placeholders)
	assert.Equal(t, []string{"code", "language"}, report.Inputs)

	_, err = Validate(writeAgent(t, "bad.txt", "---\n[agent]\nname = \"x\"\n---\nhi {y}\n"))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrDefinition))
}
