// internal/common/observability/metrics.go
package observability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/otlptranslator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"textagents/internal/common/config"
	"textagents/internal/common/logger"
)

const (
	instrumentationName = "textagents/agent"
	defaultServiceName  = "textagents"
)

var (
	// configured flips once per process, on the first Configure with telemetry enabled.
	configured atomic.Bool

	mu             sync.Mutex
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider

	// registerer receives the otel prometheus collector.
	registerer promclient.Registerer = promclient.DefaultRegisterer
)

// Configure installs the process-wide meter and tracer providers. Only the
// first call with telemetry enabled does anything; it reports whether this
// call performed the setup. A disabled config leaves the flag untouched so a
// later enabled call can still configure.
func Configure(cfg config.TelemetryConfig, log logger.Logger) bool {
	if !cfg.Enabled {
		return false
	}
	if !configured.CompareAndSwap(false, true) {
		return false
	}
	log = logger.OrNop(log)

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	mu.Lock()
	defer mu.Unlock()

	exporter, err := prometheus.New(
		prometheus.WithRegisterer(registerer),
		prometheus.WithTranslationStrategy(otlptranslator.UnderscoreEscapingWithSuffixes),
	)
	if err != nil {
		log.Warn("Failed to create Prometheus exporter", map[string]interface{}{"error": err.Error()})
	} else {
		meterProvider = metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
		otel.SetMeterProvider(meterProvider)
	}

	if cfg.JaegerEndpoint != "" {
		traceExporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
		if err != nil {
			log.Warn("Failed to create Jaeger exporter", map[string]interface{}{"error": err.Error()})
		} else {
			tracerProvider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(traceExporter),
				sdktrace.WithResource(res),
			)
			otel.SetTracerProvider(tracerProvider)
		}
	}

	log.Info("Telemetry configured", map[string]interface{}{
		"service":  serviceName,
		"tracing":  tracerProvider != nil,
		"exporter": "prometheus",
	})
	return true
}

// Configured reports whether telemetry has been set up in this process.
func Configured() bool {
	return configured.Load()
}

// Tracer returns the agent tracer. Before Configure it is a no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Shutdown flushes pending spans and metrics. Processes call it on exit; the
// providers are not re-created afterwards.
func Shutdown(ctx context.Context) {
	mu.Lock()
	defer mu.Unlock()
	if tracerProvider != nil {
		_ = tracerProvider.Shutdown(ctx)
	}
	if meterProvider != nil {
		_ = meterProvider.Shutdown(ctx)
	}
}

// Observability records agent runs through the global otel meter. Instruments
// created before Configure are forwarded once a provider is installed.
type Observability struct {
	runCounter  otelmetric.Int64Counter
	runDuration otelmetric.Float64Histogram
	attempts    otelmetric.Int64Counter
}

var (
	defaultObs     *Observability
	defaultObsOnce sync.Once
)

// Default returns the shared instrument set.
func Default() *Observability {
	defaultObsOnce.Do(func() { defaultObs = New() })
	return defaultObs
}

func New() *Observability {
	meter := otel.Meter(instrumentationName)

	runCounter, _ := meter.Int64Counter(
		"agent.runs",
		otelmetric.WithDescription("Number of agent runs"),
	)

	runDuration, _ := meter.Float64Histogram(
		"agent.duration",
		otelmetric.WithDescription("Agent run duration"),
		otelmetric.WithUnit("ms"),
	)

	attempts, _ := meter.Int64Counter(
		"agent.model_attempts",
		otelmetric.WithDescription("Model calls made by agent runs"),
	)

	return &Observability{
		runCounter:  runCounter,
		runDuration: runDuration,
		attempts:    attempts,
	}
}

func (o *Observability) RecordRun(ctx context.Context, agent, status string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("status", status),
	)
	if o.runCounter != nil {
		o.runCounter.Add(ctx, 1, attrs)
	}
	if o.runDuration != nil {
		o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordAttempts(ctx context.Context, agent string, n int) {
	if o.attempts != nil && n > 0 {
		o.attempts.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("agent", agent)))
	}
}
