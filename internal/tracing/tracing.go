// Package tracing installs the global OpenTelemetry tracer provider used by
// the hub. Exporter selection is driven by environment variables.
package tracing

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	otlptracegrpc "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer the hub and monitor use.
const InstrumentationName = "github.com/Tyrowin/chathub"

// ErrNoExporter is returned by Init when no exporter is configured. The
// global provider is then left as the no-op default.
var ErrNoExporter = errors.New("no OTEL exporter configured: set CHAT_OTEL_OTLP_ENDPOINT or CHAT_OTEL_STDOUT=1")

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(context.Context) error

// Tracer returns the hub tracer from the current global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Init installs a global tracer provider. OTLP/gRPC is preferred when an
// endpoint is configured; CHAT_OTEL_STDOUT=1 selects the stdout exporter.
func Init(ctx context.Context, serviceName string) (ShutdownFunc, error) {
	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
	))
	if err != nil {
		return nil, err
	}

	endpoint := os.Getenv("CHAT_OTEL_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	var exporter sdktrace.SpanExporter
	switch {
	case endpoint != "":
		exporter, err = otlptracegrpc.New(ctx, otlpOptions(endpoint)...)
	case envFlag("CHAT_OTEL_STDOUT"):
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, ErrNoExporter
	}
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

func otlpOptions(endpoint string) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
	}
	if envFlag("CHAT_OTEL_OTLP_INSECURE") || envFlag("OTEL_EXPORTER_OTLP_INSECURE") {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if hdrs := parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); len(hdrs) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(hdrs))
	}
	return opts
}

// parseHeaders reads comma-separated key=value pairs.
func parseHeaders(raw string) map[string]string {
	m := map[string]string{}
	if raw == "" {
		return m
	}
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 && strings.TrimSpace(kv[0]) != "" {
			m[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return m
}

func envFlag(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true":
		return true
	}
	return false
}
