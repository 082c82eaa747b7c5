// Package agent loads text-defined agents and runs them against a model.
//
// An Agent is built once from a Specification and is safe for concurrent
// runs: the specification, its output schema and the validator are never
// mutated after construction.
package agent

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"textagents/internal/common/cache"
	"textagents/internal/common/config"
	"textagents/internal/common/errors"
	"textagents/internal/common/logger"
	"textagents/internal/common/observability"
	"textagents/internal/common/validation"
	"textagents/internal/inputs"
	"textagents/internal/llm"
	"textagents/internal/schema"
	"textagents/internal/spec"
)

const unnamedAgent = "unnamed_agent"

type Agent struct {
	spec       *spec.Specification
	schema     *schema.OutputSchema
	schemaJSON []byte
	validate   validation.OutputValidator

	processor *inputs.Processor
	invoker   *llm.Invoker
	cache     cache.ResultCache
	cacheTTL  time.Duration
	closeFn   func() error
	timeout   time.Duration
	logger    logger.Logger
	obs       *observability.Observability
}

type options struct {
	cfg           *config.Config
	registry      *llm.Registry
	invoker       *llm.Invoker
	processor     *inputs.Processor
	cache         cache.ResultCache
	cacheTTL      time.Duration
	timeout       time.Duration
	modelOverride string
	logger        logger.Logger
}

type Option func(*options)

// WithConfig supplies provider credentials, run defaults, cache and telemetry
// settings. Without it the configuration is built from the environment.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithRegistry replaces the provider registry derived from the configuration.
func WithRegistry(r *llm.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithInvoker replaces the model invoker entirely.
func WithInvoker(i *llm.Invoker) Option {
	return func(o *options) { o.invoker = i }
}

func WithProcessor(p *inputs.Processor) Option {
	return func(o *options) { o.processor = p }
}

func WithCache(c cache.ResultCache, ttl time.Duration) Option {
	return func(o *options) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithTimeout bounds each run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithModelOverride replaces the model named in the definition file.
func WithModelOverride(model string) Option {
	return func(o *options) { o.modelOverride = model }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

func collect(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg == nil {
		cfg, err := config.FromEnv()
		if err != nil {
			cfg = &config.Config{}
		}
		o.cfg = cfg
	}
	o.logger = logger.OrNop(o.logger)
	return o
}

// OpenCache returns the result cache opts describe: the one given with
// WithCache, or one built from the cache configuration along with its close
// function. Callers that build many agents open it once and hand it to each
// agent with WithCache.
func OpenCache(opts ...Option) (cache.ResultCache, time.Duration, func() error) {
	o := collect(opts)
	if o.cache != nil {
		return o.cache, o.cacheTTL, func() error { return nil }
	}
	c, closeFn := cache.New(o.cfg.Cache)
	return c, o.cfg.Cache.TTLDuration(), closeFn
}

// Load parses the agent file at path and builds an Agent. The first Load in a
// process with telemetry enabled also installs the telemetry providers.
func Load(path string, opts ...Option) (*Agent, error) {
	o := collect(opts)

	s, err := spec.ParseFile(path)
	if err != nil {
		return nil, err
	}

	if observability.Configure(o.cfg.Telemetry, o.logger) {
		o.logger.Debug("Telemetry initialised on first agent load", map[string]interface{}{"path": path})
	}
	return build(s, o)
}

// New builds an Agent from an already parsed specification.
func New(s *spec.Specification, opts ...Option) (*Agent, error) {
	return build(s, collect(opts))
}

func build(s *spec.Specification, o *options) (*Agent, error) {
	if s == nil {
		return nil, errors.NewInternalError(fmt.Errorf("agent specification is nil"))
	}
	if len(s.OutputFields) == 0 {
		return nil, errors.NewNoOutputFieldsError()
	}
	if s.Retries < 0 {
		return nil, errors.NewDefinitionError(fmt.Sprintf(
			"Invalid value for 'retries' in [agent]: must be zero or greater, got %d.\n\n"+
				"Example:\n  [agent]\n  retries = 2\n", s.Retries))
	}

	override := o.modelOverride
	if override == "" {
		override = o.cfg.Agent.ModelOverride
	}
	if override != "" {
		s = s.WithModel(override)
	}

	out, err := schema.Build(s)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("failed to encode output schema: %w", err))
	}

	a := &Agent{
		spec:       s,
		schema:     out,
		schemaJSON: raw,
		validate:   validation.NewOutputValidator(s.OutputFields),
		processor:  o.processor,
		invoker:    o.invoker,
		cache:      o.cache,
		cacheTTL:   o.cacheTTL,
		closeFn:    func() error { return nil },
		timeout:    o.timeout,
		obs:        observability.Default(),
	}
	a.logger = o.logger.WithFields(map[string]interface{}{"agent": a.Name(), "model": s.Model})

	if a.processor == nil {
		a.processor = inputs.NewProcessor()
	}
	if a.timeout == 0 {
		a.timeout = o.cfg.Agent.TimeoutDuration()
	}
	if a.invoker == nil {
		registry := o.registry
		if registry == nil {
			registry = llm.NewRegistryFromConfig(o.cfg.Providers, o.cfg.Agent.MaxTokens)
		}
		a.invoker = llm.NewInvoker(registry,
			llm.WithTransportRetries(o.cfg.Agent.TransportRetries, o.cfg.Agent.BackoffDuration()),
			llm.WithLogger(o.logger),
		)
	}
	if a.cache == nil {
		a.cache, a.closeFn = cache.New(o.cfg.Cache)
		a.cacheTTL = o.cfg.Cache.TTLDuration()
	}
	return a, nil
}

// Close releases the result cache connection, if any.
func (a *Agent) Close() error {
	return a.closeFn()
}

// Name is the declared agent name, else the file stem, else "unnamed_agent".
func (a *Agent) Name() string {
	if a.spec.Name != "" {
		return a.spec.Name
	}
	if a.spec.SourcePath != "" {
		base := filepath.Base(a.spec.SourcePath)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return unnamedAgent
}

func (a *Agent) Model() string { return a.spec.Model }

func (a *Agent) Retries() int { return a.spec.Retries }

// Spec returns the parsed specification. Callers must not modify it.
func (a *Agent) Spec() *spec.Specification { return a.spec }

func (a *Agent) Schema() *schema.OutputSchema { return a.schema }

// OutputFields returns the output fields in schema order.
func (a *Agent) OutputFields() []spec.FieldSpec {
	return append([]spec.FieldSpec(nil), a.spec.OutputFields...)
}

func (a *Agent) FieldMetadata() map[string]schema.FieldInfo {
	return a.schema.FieldMetadata()
}

// InputNames lists declared inputs and non-magic placeholders, sorted.
func (a *Agent) InputNames() []string {
	set := map[string]struct{}{}
	for _, in := range a.spec.InputDefinitions {
		set[in.Name] = struct{}{}
	}
	for _, p := range a.spec.AllPlaceholders() {
		if !inputs.IsMagic(p) {
			set[p] = struct{}{}
		}
	}
	return sortedSet(set)
}

// RequiredInputs lists declared non-optional inputs plus placeholders that are
// neither magic nor declared optional, sorted.
func (a *Agent) RequiredInputs() []string {
	set := map[string]struct{}{}
	optional := map[string]bool{}
	for _, in := range a.spec.InputDefinitions {
		if in.Optional {
			optional[in.Name] = true
			continue
		}
		set[in.Name] = struct{}{}
	}
	for _, p := range a.spec.AllPlaceholders() {
		if !inputs.IsMagic(p) && !optional[p] {
			set[p] = struct{}{}
		}
	}
	return sortedSet(set)
}

// OptionalInputs lists inputs declared optional, sorted.
func (a *Agent) OptionalInputs() []string {
	var out []string
	for _, in := range a.spec.InputDefinitions {
		if in.Optional {
			out = append(out, in.Name)
		}
	}
	sort.Strings(out)
	return out
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
