// cmd/agent-worker/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"textagents/internal/agent"
	"textagents/internal/common/camunda"
	"textagents/internal/common/config"
	"textagents/internal/common/logger"
	"textagents/internal/common/observability"
	runagent "textagents/internal/workers/agents/run-agent"
	"textagents/pkg/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting agent worker...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	observability.Configure(cfg.Telemetry, log)

	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("registry load failed", zap.String("path", cfg.Registry.Path), zap.Error(err))
	}
	if err := reg.Validate(); err != nil {
		zapLog.Fatal("registry is invalid", zap.Error(err))
	}

	catalog := runagent.NewCatalog(reg, cfg.Registry.Path,
		agent.WithConfig(cfg),
		agent.WithLogger(log),
	)
	defer catalog.Close()
	if err := catalog.Preload(); err != nil {
		zapLog.Fatal("agent preload failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init Zeebe Client with retry ---
	zeebe, err := camunda.Connect(ctx, camunda.ClientConfigFrom(cfg.Camunda), log)
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully", zap.String("gateway", cfg.Camunda.BrokerAddress))

	workers := startWorkers(cfg, reg, catalog, zeebe, log)
	zapLog.Info("Agent workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           newServeMux(zeebe, workers),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	observability.Shutdown(shutdownCtx)

	zapLog.Info("Agent worker stopped gracefully")
}

// startWorkers opens one job worker per enabled registry entry.
func startWorkers(
	cfg *config.Config,
	reg *registry.AgentRegistry,
	catalog *runagent.Catalog,
	zeebe *camunda.Client,
	log logger.Logger,
) []*camunda.CamundaWorker {
	var workers []*camunda.CamundaWorker
	for _, entry := range reg.Enabled() {
		if !config.IsWorkerEnabled(cfg, entry.TaskType) {
			log.Info("worker disabled", map[string]interface{}{"taskType": entry.TaskType, "agent": entry.ID})
			continue
		}

		wcfg := config.GetWorkerConfig(cfg, entry.TaskType)
		handler := runagent.NewHandler(runagent.LoadConfig(wcfg), catalog, log.With(map[string]interface{}{
			"agent": entry.ID,
		}))
		workers = append(workers, camunda.NewWorker(zeebe.GetClient(), entry.TaskType, wcfg, handler, log))
	}
	return workers
}
