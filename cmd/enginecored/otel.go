package main

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// appName identifies this process's spans to whatever tracer provider
// the operator configures downstream.
const appName = "enginecored"

// setupTracing installs a process-wide TracerProvider (spec.md's ambient
// stack, grounded on the teacher's cmd/root.setupOtel/initOTelSDK). No
// exporter is wired by default — spans are recorded and sampled but not
// shipped anywhere until an operator attaches one via
// sdktrace.WithBatcher, matching the teacher's "only initialize if
// endpoint is configured" gate.
func setupTracing(ctx context.Context) trace.Tracer {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	go func() {
		<-ctx.Done()
		_ = tp.Shutdown(context.Background())
	}()
	return tp.Tracer(appName)
}
