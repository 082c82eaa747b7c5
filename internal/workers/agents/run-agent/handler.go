// internal/workers/agents/run-agent/handler.go
package runagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"textagents/internal/agent"
	"textagents/internal/common/errors"
	"textagents/internal/common/logger"
	"textagents/internal/common/metrics"
)

type Handler struct {
	config       *Config
	catalog      *Catalog
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, catalog *Catalog, log logger.Logger) *Handler {
	log = logger.OrNop(log)
	return &Handler{
		config:       config,
		catalog:      catalog,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}
}

// Handle runs the agent for one job and completes it, or hands the failure to
// the error handler.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	start := time.Now()
	log := h.logger.WithFields(map[string]interface{}{
		"jobKey":      job.Key,
		"taskType":    job.Type,
		"workflowKey": job.ProcessInstanceKey,
	})
	log.Info("processing job", nil)

	metrics.WorkerJobsActive.WithLabelValues(job.Type).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(job.Type).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := DecodeInput(job.Variables)
	if err == nil {
		var output *Output
		output, err = h.execute(ctx, job.Type, input)
		if err == nil {
			metrics.WorkerJobDuration.WithLabelValues(job.Type).Observe(time.Since(start).Seconds())
			return h.completeJob(context.Background(), client, job, output)
		}
	}

	metrics.WorkerJobsFailed.WithLabelValues(job.Type, string(errors.Normalize(err).Code)).Inc()
	metrics.WorkerJobDuration.WithLabelValues(job.Type).Observe(time.Since(start).Seconds())
	h.errorHandler.HandleJobError(context.Background(), client, job, err)
	return nil
}

// Execute runs the agent named by input.AgentID.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, "", input)
}

func (h *Handler) execute(ctx context.Context, taskType string, input *Input) (*Output, error) {
	a, err := h.resolve(taskType, input)
	if err != nil {
		return nil, err
	}

	res, err := a.Run(ctx, input.Inputs)
	if err != nil {
		return nil, err
	}

	return &Output{
		Result:       res.Output,
		Agent:        a.Name(),
		Model:        res.Model,
		InvocationID: res.InvocationID,
		Attempts:     res.Attempts,
		Cached:       res.Cached,
		RequestID:    input.RequestID,
	}, nil
}

func (h *Handler) resolve(taskType string, input *Input) (*agent.Agent, error) {
	if input.AgentID != "" {
		return h.catalog.Get(input.AgentID)
	}
	if taskType != "" {
		return h.catalog.ForTaskType(taskType)
	}
	return nil, errors.NewMissingInputsError([]string{"agentId"}, nil, []string{"agentId"}, nil)
}

// DecodeInput parses job variables, keeping numbers as json.Number so integer
// inputs survive coercion.
func DecodeInput(variables string) (*Input, error) {
	var input Input
	if variables == "" {
		return &input, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(variables)))
	dec.UseNumber()
	if err := dec.Decode(&input); err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("parse input: %w", err))
	}
	return &input, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		return fmt.Errorf("failed to create complete job command: %w", err)
	}
	if _, err := cmd.Send(ctx); err != nil {
		return fmt.Errorf("failed to send complete job command: %w", err)
	}

	metrics.WorkerJobsCompleted.WithLabelValues(job.Type).Inc()
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":       job.Key,
		"agent":        output.Agent,
		"invocationId": output.InvocationID,
		"attempts":     output.Attempts,
	})
	return nil
}
