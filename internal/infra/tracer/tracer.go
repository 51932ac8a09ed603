package tracer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"muehle-agent/internal/infra/config"
)

const tracerName = "muehle-agent"

// Setup installs the global TracerProvider described by cfg and returns its
// shutdown function. Disabled tracing and the "noop" exporter install a noop
// provider.
func Setup(_ context.Context, cfg config.TracerConfig) (func(context.Context) error, error) {
	if !cfg.Enabled || cfg.Exporter == "" || cfg.Exporter == "noop" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	w, closeW, err := spanWriter(cfg)
	if err != nil {
		return nil, err
	}
	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if cfg.Exporter == "stdout" {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		closeW()
		return nil, fmt.Errorf("create %s exporter: %w", cfg.Exporter, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", tracerName))),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), closeW())
	}, nil
}

// spanWriter opens the destination of the "stdout", "stderr" and "file"
// exporters. The terminal board owns stdout, so TUI setups use stderr or a file.
func spanWriter(cfg config.TracerConfig) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch cfg.Exporter {
	case "stdout":
		return os.Stdout, nop, nil
	case "stderr":
		return os.Stderr, nop, nil
	case "file":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open trace file: %w", err)
		}
		return f, f.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

// sampler samples everything unless ratio is in (0, 1).
func sampler(ratio float64) sdktrace.Sampler {
	if ratio > 0 && ratio < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
	return sdktrace.AlwaysSample()
}

// StartSpan starts a span on the package tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetOK(span trace.Span) { span.SetStatus(codes.Ok, "") }

func StringAttr(key, value string) attribute.KeyValue { return attribute.String(key, value) }

func IntAttr(key string, value int) attribute.KeyValue { return attribute.Int(key, value) }

func Int64Attr(key string, value int64) attribute.KeyValue { return attribute.Int64(key, value) }
