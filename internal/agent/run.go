// internal/agent/run.go
package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"textagents/internal/common/cache"
	"textagents/internal/common/errors"
	"textagents/internal/common/logger"
	"textagents/internal/common/metrics"
	"textagents/internal/common/observability"
	"textagents/internal/llm"
	"textagents/internal/template"
)

// Result is a validated agent output. Output is never partial.
type Result struct {
	Output       map[string]interface{}
	InvocationID string
	Model        string
	Attempts     int
	InputTokens  int64
	OutputTokens int64
	Duration     time.Duration
	Cached       bool
}

// AsyncResult is delivered on the channel returned by RunAsync.
type AsyncResult struct {
	Result *Result
	Err    error
}

// RunAsync starts a run and returns a channel that receives exactly one value.
func (a *Agent) RunAsync(ctx context.Context, raw map[string]interface{}) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)
	go func() {
		res, err := a.run(ctx, raw)
		ch <- AsyncResult{Result: res, Err: err}
	}()
	return ch
}

// Run blocks until the model returns a valid output or the run fails.
func (a *Agent) Run(ctx context.Context, raw map[string]interface{}) (*Result, error) {
	out := <-a.RunAsync(ctx, raw)
	return out.Result, out.Err
}

func (a *Agent) run(ctx context.Context, raw map[string]interface{}) (*Result, error) {
	start := time.Now()
	name := a.Name()
	id := uuid.NewString()
	log := a.logger.WithFields(map[string]interface{}{"invocation_id": id})

	ctx, span := observability.Tracer().Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.name", name),
		attribute.String("agent.model", a.spec.Model),
		attribute.String("agent.invocation_id", id),
	))
	defer span.End()

	res, err := a.execute(ctx, raw, log)
	duration := time.Since(start)

	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.IsCode(err, errors.ErrCodeOutputValidationFailed) {
			metrics.OutputViolations.WithLabelValues(name).Inc()
		}
		log.Warn("Agent run failed", map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
			"error":       err.Error(),
		})
	} else if res.Cached {
		status = metrics.StatusCached
	}
	metrics.AgentRuns.WithLabelValues(name, status).Inc()
	metrics.AgentRunDuration.WithLabelValues(name).Observe(duration.Seconds())
	a.obs.RecordRun(ctx, name, status, duration)

	if err != nil {
		return nil, err
	}

	res.InvocationID = id
	res.Duration = duration
	span.SetAttributes(attribute.Int("agent.attempts", res.Attempts), attribute.Bool("agent.cached", res.Cached))
	a.obs.RecordAttempts(ctx, name, res.Attempts)
	log.Info("Agent run completed", map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
		"attempts":    res.Attempts,
		"cached":      res.Cached,
	})
	return res, nil
}

func (a *Agent) execute(ctx context.Context, raw map[string]interface{}, log logger.Logger) (*Result, error) {
	resolved, err := a.processor.Process(raw, a.spec)
	if err != nil {
		return nil, err
	}

	prompt, err := template.Interpolate(a.spec.PromptTemplate, resolved)
	if err != nil {
		return nil, err
	}
	instructions, err := template.InterpolateOptional(a.spec.Instructions, resolved)
	if err != nil {
		return nil, err
	}

	key, keyErr := cache.Key(a.spec.Model, instructions, prompt, a.schemaJSON, a.spec.Settings)
	if keyErr != nil {
		log.Warn("Result cache skipped", map[string]interface{}{"error": keyErr.Error()})
	} else if output, ok := a.lookup(ctx, key, log); ok {
		return &Result{Output: output, Model: a.spec.Model, Cached: true}, nil
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	name := a.Name()
	outcome, err := a.invoker.Invoke(ctx, llm.Call{
		Model:        a.spec.Model,
		Prompt:       prompt,
		Instructions: instructions,
		Schema:       a.schema,
		Retries:      a.spec.Retries,
		Settings:     a.spec.Settings,
		Validate:     a.validate,
		Observe: func(o string) {
			metrics.ModelAttempts.WithLabelValues(name, o).Inc()
		},
	})
	if err != nil {
		return nil, err
	}

	if keyErr == nil {
		if err := a.cache.Set(ctx, key, outcome.Output, a.cacheTTL); err != nil {
			log.Warn("Failed to store result in cache", map[string]interface{}{"error": err.Error()})
		}
	}

	return &Result{
		Output:       outcome.Output,
		Model:        a.spec.Model,
		Attempts:     outcome.Attempts,
		InputTokens:  outcome.InputTokens,
		OutputTokens: outcome.OutputTokens,
	}, nil
}

// lookup never fails a run; cache errors count as misses.
func (a *Agent) lookup(ctx context.Context, key string, log logger.Logger) (map[string]interface{}, bool) {
	if _, disabled := a.cache.(cache.NopCache); disabled {
		return nil, false
	}
	output, ok, err := a.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		log.Warn("Result cache lookup failed", map[string]interface{}{"error": err.Error()})
		return nil, false
	case ok:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return output, true
	default:
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
}
