// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"textagents/internal/common/config"
	"textagents/internal/common/logger"
)

// JobHandler completes or fails the job itself; a returned error is only logged.
type JobHandler interface {
	Handle(client worker.JobClient, job entities.Job) error
}

type HandlerFunc func(client worker.JobClient, job entities.Job) error

func (f HandlerFunc) Handle(client worker.JobClient, job entities.Job) error {
	return f(client, job)
}

// CamundaWorker is one open job worker for a task type. The Zeebe client is
// shared between workers and closed by its owner.
type CamundaWorker struct {
	worker   worker.JobWorker
	logger   logger.Logger
	taskType string
}

func NewWorker(
	client zbc.Client,
	taskType string,
	wcfg config.WorkerConfig,
	handler JobHandler,
	log logger.Logger,
) *CamundaWorker {
	log = logger.OrNop(log).WithFields(map[string]interface{}{"taskType": taskType})

	builder := client.NewJobWorker().
		JobType(taskType).
		Handler(func(client worker.JobClient, job entities.Job) {
			if err := handler.Handle(client, job); err != nil {
				log.Error("Handler returned error", map[string]interface{}{
					"error":  err.Error(),
					"jobKey": job.Key,
				})
			}
		}).
		MaxJobsActive(wcfg.MaxJobsActive)
	if wcfg.Timeout > 0 {
		builder = builder.Timeout(time.Duration(wcfg.Timeout) * time.Millisecond)
	}

	w := &CamundaWorker{
		worker:   builder.Open(),
		logger:   log,
		taskType: taskType,
	}
	log.Info("Worker started", map[string]interface{}{"maxJobsActive": wcfg.MaxJobsActive})
	return w
}

func (w *CamundaWorker) TaskType() string { return w.taskType }

// Stop closes the job worker and waits for in-flight jobs to be handed back.
func (w *CamundaWorker) Stop() {
	w.logger.Info("Stopping worker", nil)
	w.worker.Close()
	w.worker.AwaitClose()
}
