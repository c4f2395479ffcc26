package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// restoreGlobals puts back the provider and propagator replaced by Setup.
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp := otel.GetTracerProvider()
	prop := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestSetup_RecordsSpansWithoutEndpoint(t *testing.T) {
	restoreGlobals(t)

	shutdown, err := Setup(context.Background(), Config{ServiceName: "tasks-api-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	require.True(t, ok, "global provider is the SDK provider")

	ctx, span := otel.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.True(t, span.IsRecording())
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().IsSampled())

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	assert.Contains(t, carrier.Get("traceparent"), span.SpanContext().TraceID().String())
}

func TestSetup_WithEndpoint(t *testing.T) {
	restoreGlobals(t)

	// Non-routable address; nothing is exported before shutdown.
	shutdown, err := Setup(context.Background(), Config{
		ServiceName: "tasks-api-test",
		Endpoint:    "http://192.0.2.1:4318",
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewProvider_StopsRecordingAfterShutdown(t *testing.T) {
	tp, err := NewProvider(context.Background(), Config{ServiceName: "tasks-api-test"})
	require.NoError(t, err)

	require.NoError(t, tp.Shutdown(context.Background()))
	_, span := tp.Tracer("test").Start(context.Background(), "after-shutdown")
	assert.False(t, span.IsRecording())
}
