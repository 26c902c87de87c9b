package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestMQHeaderCarrier_RoundTrip(t *testing.T) {
	prop := propagation.TraceContext{}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := map[string]interface{}{"x-other": int32(1)}
	prop.Inject(ctx, MQHeaderCarrier(headers))
	assert.NotEmpty(t, headers["traceparent"])

	got := trace.SpanContextFromContext(prop.Extract(context.Background(), MQHeaderCarrier(headers)))
	assert.Equal(t, sc.TraceID(), got.TraceID())
	assert.Equal(t, sc.SpanID(), got.SpanID())
}

func TestMQHeaderCarrier_NonStringValue(t *testing.T) {
	c := MQHeaderCarrier{"n": int64(3)}
	assert.Equal(t, "", c.Get("n"))
	assert.ElementsMatch(t, []string{"n"}, c.Keys())
}

func TestExtractMQ_NilHeaders(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, ExtractMQ(ctx, nil))
}
