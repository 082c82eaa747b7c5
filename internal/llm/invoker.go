// internal/llm/invoker.go
package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"textagents/internal/common/errors"
	"textagents/internal/common/logger"
	"textagents/internal/common/validation"
	"textagents/internal/schema"
)

// Attempt outcomes reported to AttemptObserver.
const (
	OutcomeOK             = "ok"
	OutcomeRetry          = "retry"
	OutcomeTransportError = "transport_error"
)

// Call is one structured-output invocation.
type Call struct {
	// Model is the full "provider:model" identifier.
	Model        string
	Prompt       string
	Instructions string
	Schema       *schema.OutputSchema
	// Retries is how many extra attempts a rejected output may get.
	Retries  int
	Settings map[string]interface{}
	// Validate runs after schema validation; its errors trigger a retry.
	Validate validation.OutputValidator
	// Observe, when set, sees every attempt outcome of this call.
	Observe AttemptObserver
}

type Outcome struct {
	Output       map[string]interface{}
	Provider     string
	Attempts     int
	InputTokens  int64
	OutputTokens int64
}

type AttemptObserver func(outcome string)

// Invoker sends calls to providers, retrying rejected outputs with feedback and
// transport failures with exponential backoff.
type Invoker struct {
	registry         *Registry
	transportRetries int
	backoff          time.Duration
	logger           logger.Logger
	observe          AttemptObserver
}

type InvokerOption func(*Invoker)

func WithTransportRetries(n int, backoff time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.transportRetries = n
		i.backoff = backoff
	}
}

func WithLogger(l logger.Logger) InvokerOption {
	return func(i *Invoker) { i.logger = logger.OrNop(l) }
}

func WithAttemptObserver(fn AttemptObserver) InvokerOption {
	return func(i *Invoker) { i.observe = fn }
}

func NewInvoker(registry *Registry, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		registry:         registry,
		transportRetries: 2,
		backoff:          500 * time.Millisecond,
		logger:           logger.NewNoOpLogger(),
		observe:          func(string) {},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Invoke returns a validated output or a terminal error. A rejected output is
// sent back to the model with the violation text until call.Retries extra
// attempts are spent.
func (i *Invoker) Invoke(ctx context.Context, call Call) (*Outcome, error) {
	if call.Retries < 0 {
		return nil, errors.NewDefinitionError(fmt.Sprintf(
			"Invalid retry budget %d: retries must be zero or greater", call.Retries))
	}
	provider, model, err := i.registry.Resolve(ctx, call.Model)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Model:    model,
		System:   call.Instructions,
		Messages: []Message{{Role: RoleUser, Content: call.Prompt}},
		Schema:   call.Schema,
		Settings: call.Settings,
	}
	observe := i.observe
	if call.Observe != nil {
		observe = func(o string) {
			i.observe(o)
			call.Observe(o)
		}
	}
	outcome := &Outcome{Provider: provider.Name()}
	log := i.logger.WithFields(map[string]interface{}{"provider": provider.Name(), "model": model})

	var lastErr error
	for attempt := 0; attempt <= call.Retries; attempt++ {
		outcome.Attempts++

		resp, err := i.complete(ctx, provider, req, observe)
		if err != nil {
			return nil, err
		}
		outcome.InputTokens += resp.InputTokens
		outcome.OutputTokens += resp.OutputTokens

		output, err := check(resp.Text, call)
		if err == nil {
			observe(OutcomeOK)
			outcome.Output = output
			return outcome, nil
		}
		if !errors.IsRetryable(err) {
			return nil, err
		}

		observe(OutcomeRetry)
		log.Debug("Model output rejected", map[string]interface{}{
			"attempt": outcome.Attempts,
			"error":   err.Error(),
		})
		lastErr = err
		req.Messages = append(req.Messages,
			Message{Role: RoleAssistant, Content: resp.Text},
			Message{Role: RoleUser, Content: retryPrompt(err)},
		)
	}

	return nil, errors.NewOutputValidationError(
		fmt.Sprintf("Exceeded maximum retries (%d) for output validation.\n\n%s", call.Retries, lastErr.Error()),
		lastErr)
}

// complete calls the provider, retrying transport failures.
func (i *Invoker) complete(ctx context.Context, p Provider, req *Request, observe AttemptObserver) (*Response, error) {
	delay := i.backoff
	for try := 0; ; try++ {
		resp, err := p.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		observe(OutcomeTransportError)

		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewModelTimeoutError(p.Name(), err)
		}
		if stdErr, ok := errors.As(err); ok && !stdErr.Retryable {
			return nil, stdErr
		}
		if ctx.Err() != nil {
			e := errors.NewModelInvocationError(p.Name(), ctx.Err())
			e.Retryable = false
			return nil, e
		}
		if try >= i.transportRetries {
			return nil, errors.NewModelInvocationError(p.Name(), err)
		}

		i.logger.Warn("Model call failed, retrying", map[string]interface{}{
			"provider": p.Name(),
			"try":      try + 1,
			"delay":    delay.String(),
			"error":    err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, errors.NewModelTimeoutError(p.Name(), ctx.Err())
			}
			e := errors.NewModelInvocationError(p.Name(), ctx.Err())
			e.Retryable = false
			return nil, e
		}
		delay *= 2
	}
}

// check decodes the reply and runs schema then field validation.
func check(text string, call Call) (map[string]interface{}, error) {
	output, err := DecodeObject(text)
	if err != nil {
		return nil, errors.NewModelRetryError(
			fmt.Sprintf("Response was not a valid JSON object: %v", err), []string{err.Error()})
	}
	if call.Schema != nil {
		if err := call.Schema.Validate(output); err != nil {
			return nil, err
		}
	}
	if call.Validate != nil {
		return call.Validate(output)
	}
	return output, nil
}

// DecodeObject parses a JSON object from a model reply, tolerating markdown
// code fences and text around the object.
func DecodeObject(text string) (map[string]interface{}, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object found")
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func retryPrompt(err error) string {
	return err.Error() + "\n\nFix the errors and respond again with the complete JSON object."
}
