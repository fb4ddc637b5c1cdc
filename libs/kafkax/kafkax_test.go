package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	meta := ExtractEventMeta(kafka.Message{Topic: "billing.subscription.activated.v1", Key: []byte("evt-1")})
	assert.Equal(t, EventMeta{EventID: "evt-1", EventType: "billing.subscription.activated.v1"}, meta)
}

func TestNewMessageCarriesHeadersAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	msg := NewMessage(ctx, "e-1", "consultation.booking.confirmed.v1", "b-1", []byte(`{}`))

	assert.Equal(t, "consultation.booking.confirmed.v1", msg.Topic)
	assert.Equal(t, "b-1", string(msg.Key))
	assert.Equal(t, "e-1", HeaderValue(msg.Headers, HeaderEventID))
	assert.NotEmpty(t, HeaderValue(msg.Headers, "traceparent"))

	restored := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), msg))
	assert.Equal(t, traceID, restored.TraceID())
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, SplitBrokers(""))
}
