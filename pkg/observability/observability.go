// Package observability wires OpenTelemetry tracing and metrics for the
// validation and approval pipeline, with OTLP gRPC export.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

const scopeName = "warden.core"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string        // gRPC endpoint, e.g. "localhost:4317"
	SampleRate     float64       // 0.0 to 1.0
	BatchTimeout   time.Duration // span batch flush interval
	Enabled        bool
	Insecure       bool
}

// DefaultConfig returns development defaults with telemetry enabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "warden",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        true,
		Insecure:       true,
	}
}

// Provider manages the trace and metric providers plus the engine's
// decision metrics. A disabled provider is fully functional and records
// nothing.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	validations      metric.Int64Counter
	decisions        metric.Int64Counter
	decisionLatency  metric.Float64Histogram
	pendingApprovals metric.Int64UpDownCounter
}

// New creates an observability provider and installs it globally.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}

	if !config.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	if err := p.initTraceProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("init metric provider: %w", err)
	}

	p.tracer = otel.Tracer(scopeName, trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter(scopeName, metric.WithInstrumentationVersion(config.ServiceVersion))

	if err := p.initDecisionMetrics(); err != nil {
		return nil, fmt.Errorf("init decision metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
	)
	return p, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(p.config.BatchTimeout),
		),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
	}
	if p.config.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create metric exporter: %w", err)
	}

	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second),
		)),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initDecisionMetrics() error {
	var err error

	p.validations, err = p.meter.Int64Counter("warden.validations.total",
		metric.WithDescription("Steps validated, by resulting risk level"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return err
	}

	p.decisions, err = p.meter.Int64Counter("warden.decisions.total",
		metric.WithDescription("Approval decisions, by terminal state"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return err
	}

	p.decisionLatency, err = p.meter.Float64Histogram("warden.decision.duration",
		metric.WithDescription("Time from approval request to terminal decision"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900),
	)
	if err != nil {
		return err
	}

	p.pendingApprovals, err = p.meter.Int64UpDownCounter("warden.approvals.pending",
		metric.WithDescription("Approval requests currently awaiting a decision"),
		metric.WithUnit("{request}"),
	)
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "trace provider shutdown failed", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "metric provider shutdown failed", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(scopeName)
	}
	return p.tracer
}

// Meter returns the configured meter.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter(scopeName)
	}
	return p.meter
}

// RecordValidation counts one validated step at its final risk level.
func (p *Provider) RecordValidation(ctx context.Context, result contracts.ValidationResult) {
	if p.validations == nil {
		return
	}
	p.validations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", result.Operation),
		attribute.String("risk_level", result.RiskLevel.String()),
		attribute.Bool("requires_approval", result.RequiresApproval),
	))
}

// RecordDecision counts one terminal decision and its latency.
func (p *Provider) RecordDecision(ctx context.Context, decision contracts.ApprovalDecision, elapsed time.Duration) {
	if p.decisions != nil {
		p.decisions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", string(decision.State)),
			attribute.Bool("approved", decision.Approved),
		))
	}
	if p.decisionLatency != nil {
		p.decisionLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("state", string(decision.State)),
		))
	}
}

// TrackApproval marks an approval request as pending; the returned
// function must be called with the terminal decision.
func (p *Provider) TrackApproval(ctx context.Context, operation string) func(contracts.ApprovalDecision) {
	start := time.Now()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	if p.pendingApprovals != nil {
		p.pendingApprovals.Add(ctx, 1, attrs)
	}
	return func(decision contracts.ApprovalDecision) {
		if p.pendingApprovals != nil {
			p.pendingApprovals.Add(ctx, -1, attrs)
		}
		p.RecordDecision(ctx, decision, time.Since(start))
	}
}
