package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestPublishRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "reports", map[string]string{"run_id": "r1"})
	require.ErrorContains(t, err, "not configured")
}

func TestAttributeCarrierRoundTripsTraceContext(t *testing.T) {
	t.Parallel()

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	attrs := map[string]string{"content_type": "application/json"}
	carrier := &attributeCarrier{attrs: attrs}
	prop := propagation.TraceContext{}
	prop.Inject(ctx, carrier)

	require.Contains(t, attrs, "traceparent")
	assert.ElementsMatch(t, []string{"content_type", "traceparent"}, carrier.Keys())

	extracted := prop.Extract(context.Background(), carrier)
	assert.Equal(t, span.SpanContext().TraceID(), trace.SpanContextFromContext(extracted).TraceID())
}
