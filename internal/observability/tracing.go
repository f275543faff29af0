// Package observability provides OpenTelemetry tracing, metrics, and audit
// logging for Weave.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies every span emitted by this module.
const TracerName = "github.com/weavenn/weave"

// TracingConfig controls where spans go. An empty OTLPEndpoint leaves the
// global no-op provider in place, which keeps the span helpers below free to
// call unconditionally.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string  // gRPC endpoint, e.g. "localhost:4317"
	SampleRate     float64 // 0..1
}

func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "weave",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider owns the exporter pipeline so the process can flush it on
// shutdown.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing wires the OTLP exporter, service resource, and sampler, and
// installs the provider globally.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	// TODO: add a TLS option once weave runs against a non-local collector.
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes buffered spans. Safe on a provider built without an
// endpoint.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

func (tp *TracerProvider) Tracer() trace.Tracer { return tp.tracer }

// Values for the weave.span.kind attribute.
const (
	SpanKindAnalysis = "analysis"
	SpanKindDetector = "detector"
	SpanKindScoring  = "scoring"
	SpanKindLLM      = "llm"
	SpanKindApply    = "apply"
	SpanKindSnapshot = "snapshot"
)

func start(ctx context.Context, name, kind string, opts []attribute.KeyValue, sk trace.SpanKind) (context.Context, trace.Span) {
	attrs := append([]attribute.KeyValue{attribute.String("weave.span.kind", kind)}, opts...)
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(sk),
		trace.WithAttributes(attrs...),
	)
}

// StartAnalysisSpan covers one full analysis run.
func StartAnalysisSpan(ctx context.Context, nodeCount, edgeCount int) (context.Context, trace.Span) {
	return start(ctx, "analysis.run", SpanKindAnalysis, []attribute.KeyValue{
		attribute.Int("graph.node_count", nodeCount),
		attribute.Int("graph.edge_count", edgeCount),
	}, trace.SpanKindInternal)
}

// RecordAnalysisResult records the run outcome; a partial run is an error
// status so it stands out in traces.
func RecordAnalysisResult(span trace.Span, gapCount, suggestionCount int, partial bool) {
	span.SetAttributes(
		attribute.Int("analysis.gap_count", gapCount),
		attribute.Int("analysis.suggestion_count", suggestionCount),
		attribute.Bool("analysis.partial", partial),
	)
	if partial {
		span.SetStatus(codes.Error, "partial results")
	}
}

// StartDetectorSpan covers one gap detector pass.
func StartDetectorSpan(ctx context.Context, gapType string) (context.Context, trace.Span) {
	return start(ctx, "detect."+gapType, SpanKindDetector, []attribute.KeyValue{
		attribute.String("gap.type", gapType),
	}, trace.SpanKindInternal)
}

func RecordDetectorResult(span trace.Span, found int) {
	span.SetAttributes(attribute.Int("detector.gaps_found", found))
}

// StartLLMSpan covers one provider call.
func StartLLMSpan(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return start(ctx, "llm.complete", SpanKindLLM, []attribute.KeyValue{
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	}, trace.SpanKindClient)
}

func RecordLLMMetrics(span trace.Span, inputTokens, outputTokens int, duration time.Duration) {
	span.SetAttributes(
		attribute.Int("llm.input_tokens", inputTokens),
		attribute.Int("llm.output_tokens", outputTokens),
		attribute.Int("llm.total_tokens", inputTokens+outputTokens),
		attribute.Int64("llm.duration_ms", duration.Milliseconds()),
	)
}

// StartApplySpan covers writing one suggestion into the graph.
func StartApplySpan(ctx context.Context, kind, suggestionID string) (context.Context, trace.Span) {
	return start(ctx, "apply."+kind, SpanKindApply, []attribute.KeyValue{
		attribute.String("suggestion.kind", kind),
		attribute.String("suggestion.id", suggestionID),
	}, trace.SpanKindInternal)
}

// StartSnapshotSpan covers a snapshot archive operation.
func StartSnapshotSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return start(ctx, "snapshot."+op, SpanKindSnapshot, nil, trace.SpanKindInternal)
}

// RecordError marks the span failed. A nil error is a no-op.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
