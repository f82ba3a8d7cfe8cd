// Package telemetry provides OpenTelemetry tracing for check runs.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ppiankov/nagcheck/internal/status"
)

// ServiceName is the resource service name reported by nagcheck.
const ServiceName = "nagcheck"

// flushTimeout bounds span export at exit; a plugin must not hang on a dead collector.
const flushTimeout = 5 * time.Second

// InitTracer sets up an OTLP trace exporter and installs it as the global
// provider, so the connection layer's spans are exported too. If endpoint is
// empty, returns a noop tracer and a no-op shutdown function.
func InitTracer(ctx context.Context, endpoint, serviceName, serviceVersion string) (trace.Tracer, func(context.Context) error, error) {
	if endpoint == "" {
		t := noop.NewTracerProvider().Tracer(serviceName)
		return t, func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, flushTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return tp.Tracer(serviceName), shutdown, nil
}

// StartCheck opens the root span of one plugin invocation.
func StartCheck(ctx context.Context, tracer trace.Tracer, check, target string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "check."+check,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("nagcheck.check", check),
			attribute.String("nagcheck.target", target),
		),
	)
}

// EndCheck records the verdict on span and ends it. Anything other than OK
// marks the span as an error.
func EndCheck(span trace.Span, res status.Result) {
	span.SetAttributes(
		attribute.String("nagcheck.status", res.Status.String()),
		attribute.Int("nagcheck.exit_code", res.Status.ExitCode()),
	)
	if res.Status != status.OK {
		span.SetStatus(codes.Error, res.Status.String()+": "+res.Message)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
