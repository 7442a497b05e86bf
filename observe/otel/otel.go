// Package otel bridges the observe.Sink to OpenTelemetry tracing.
//
// Each observe.Event becomes one OTel span, so graph runs, node
// executions, and specialist invocations show up in any
// OpenTelemetry-compatible backend (Tempo, Jaeger, Zipkin).
package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/opsmind/opsmind/observe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/opsmind/opsmind"

// Sink implements observe.Sink by emitting OpenTelemetry spans.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates an OTel sink using the given TracerProvider.
// If tp is nil, it uses a noop tracer provider.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{
		tracer: tp.Tracer(instrumentationName),
	}
}

// Emit converts an observe.Event into an OTel span.
func (s *Sink) Emit(_ context.Context, event observe.Event) error {
	event.Normalize()

	spanName := spanNameFor(event)
	ctx := context.Background()
	startTime := event.Timestamp

	_, span := s.tracer.Start(ctx, spanName, trace.WithTimestamp(startTime))

	attrs := []attribute.KeyValue{
		attribute.String("opsmind.event.kind", string(event.Kind)),
	}
	if event.RunID != "" {
		attrs = append(attrs, attribute.String("opsmind.run.id", event.RunID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, attribute.String("opsmind.session.id", event.SessionID))
	}
	if event.SpanID != "" {
		attrs = append(attrs, attribute.String("opsmind.span.id", event.SpanID))
	}
	if event.ParentSpanID != "" {
		attrs = append(attrs, attribute.String("opsmind.parent_span.id", event.ParentSpanID))
	}
	if event.Provider != "" {
		attrs = append(attrs, attribute.String("opsmind.provider", event.Provider))
	}
	if event.Node != "" {
		attrs = append(attrs, attribute.String("opsmind.node", event.Node))
	}
	if event.Agent != "" {
		attrs = append(attrs, attribute.String("opsmind.agent", event.Agent))
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("opsmind.status", string(event.Status)))
	}
	if event.Message != "" {
		attrs = append(attrs, attribute.String("opsmind.message", truncate(event.Message, 1024)))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("opsmind.duration_ms", event.DurationMs))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("opsmind.attr."+k, fmt.Sprintf("%v", v)))
	}

	span.SetAttributes(attrs...)

	if event.Status == observe.StatusFailed {
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(fmt.Errorf("%s", event.Error))
		}
	} else if event.Status == observe.StatusCompleted {
		span.SetStatus(codes.Ok, "")
	}

	endTime := startTime
	if event.DurationMs > 0 {
		endTime = startTime.Add(time.Duration(event.DurationMs) * time.Millisecond)
	}
	span.End(trace.WithTimestamp(endTime))
	return nil
}

func spanNameFor(event observe.Event) string {
	switch event.Kind {
	case observe.KindRun:
		return "opsmind.run"
	case observe.KindNode:
		if event.Node != "" {
			return "opsmind.node." + event.Node
		}
		return "opsmind.node"
	case observe.KindAgent:
		if event.Agent != "" {
			return "opsmind.agent." + event.Agent
		}
		return "opsmind.agent"
	case observe.KindCheckpoint:
		return "opsmind.checkpoint"
	default:
		return "opsmind.event"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
