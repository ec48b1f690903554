// Package telemetry wires an OpenTelemetry TracerProvider for HTTP-transport
// tracing. Every outbound peer.Client call and every inbound server route is
// wrapped with otelhttp (see internal/peer and internal/server), so once a
// provider is installed here, a lookup's hop chain shows up as a trace with
// no further instrumentation at the call sites.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"KoordeDHT/internal/config"
	"KoordeDHT/internal/domain"
)

// IDAttributes renders an identifier as hex/decimal span attributes.
func IDAttributes(prefix string, id domain.ID) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(prefix+".hex", id.ToHexString(true)),
		attribute.String(prefix+".dec", id.ToBigInt().String()),
	}
}

// InitTracer installs a global TracerProvider per cfg and returns its
// Shutdown func. When tracing is disabled it returns a no-op shutdown.
func InitTracer(ctx context.Context, cfg config.TracingConfig, serviceName string, nodeID domain.ID) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	attrs := append(
		[]attribute.KeyValue{attribute.String("service.name", serviceName)},
		IDAttributes("dht.node.id", nodeID)...,
	)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	var tp *sdktrace.TracerProvider
	switch cfg.Exporter {
	case "otlpgrpc":
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(cfg.Endpoint))
		if err != nil {
			return nil, fmt.Errorf("init otlp exporter: %w", err)
		}
		tp = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	case "stdout", "":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("init stdout exporter: %w", err)
		}
		tp = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %q", cfg.Exporter)
	}

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}
