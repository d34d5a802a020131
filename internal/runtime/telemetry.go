package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/research"
)

// Tracing owns the tracer provider installed by SetupTracing.
type Tracing struct {
	tp *sdktrace.TracerProvider
}

// SetupTracing exports spans to an OTLP/gRPC collector when
// telemetry.otlp_endpoint is set and installs the provider globally, which
// is where the research engine picks its tracer from. Without an endpoint
// the global no-op provider is left alone.
func SetupTracing(ctx context.Context, cfg config.TelemetryConfig, service string) (*Tracing, error) {
	if strings.TrimSpace(cfg.OTLPEndpoint) == "" {
		return &Tracing{}, nil
	}
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp init: %w", err)
	}
	return installTracing(ctx, service, sdktrace.WithBatcher(exporter))
}

func installTracing(ctx context.Context, service string, opts ...sdktrace.TracerProviderOption) (*Tracing, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(service),
			attribute.String("service.namespace", "researcher"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("resource init: %w", err)
	}
	tp := sdktrace.NewTracerProvider(append(opts, sdktrace.WithResource(res))...)
	otel.SetTracerProvider(tp)
	return &Tracing{tp: tp}, nil
}

// Enabled reports whether spans are being exported.
func (t *Tracing) Enabled() bool { return t != nil && t.tp != nil }

// Shutdown flushes buffered spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	if err := t.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("trace shutdown: %w", err)
	}
	return nil
}

// Metrics holds the Prometheus collectors for research runs and search
// providers. It is both a research.Observer and an evidence.Recorder.
type Metrics struct {
	registry       *prometheus.Registry
	runs           *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	stageFailures  *prometheus.CounterVec
	revisions      prometheus.Histogram
	searchRequests *prometheus.CounterVec
	searchLatency  *prometheus.HistogramVec
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "researcher",
			Name:      "runs_total",
			Help:      "Research runs by outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "researcher",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution time.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "researcher",
			Name:      "stage_failures_total",
			Help:      "Stage failures that aborted a run.",
		}, []string{"stage"}),
		revisions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "researcher",
			Name:      "revisions",
			Help:      "Evaluator rejections per completed run.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),
		searchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "researcher",
			Name:      "search_requests_total",
			Help:      "Search provider calls by outcome.",
		}, []string{"provider", "outcome"}),
		searchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "researcher",
			Name:      "search_request_seconds",
			Help:      "Search provider call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	m.registry.MustRegister(
		m.runs, m.stageDuration, m.stageFailures, m.revisions, m.searchRequests, m.searchLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry (used by tests and /metrics).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OnEvent(_ context.Context, ev research.Event) {
	switch ev.Status {
	case research.StatusCompleted:
		m.stageDuration.WithLabelValues(ev.Stage.String()).Observe(ev.Took.Seconds())
	case research.StatusFailed:
		m.stageFailures.WithLabelValues(ev.Stage.String()).Inc()
		m.runs.WithLabelValues("failed").Inc()
	case research.StatusFinished:
		outcome := "approved"
		if unapproved, _ := ev.Detail["unapproved"].(bool); unapproved {
			outcome = "unapproved"
		}
		m.runs.WithLabelValues(outcome).Inc()
		if n, ok := ev.Detail["revisions"].(int); ok {
			m.revisions.Observe(float64(n))
		}
	}
}

func (m *Metrics) ObserveSearch(provider, outcome string, took time.Duration) {
	m.searchRequests.WithLabelValues(provider, outcome).Inc()
	m.searchLatency.WithLabelValues(provider).Observe(took.Seconds())
}

// ServeMetrics exposes /metrics on its own port until ctx is done.
func (m *Metrics) ServeMetrics(ctx context.Context, port int, logger logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	logger.WithField("port", port).Info("metrics server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
