// Package observe carries the assistant's runtime telemetry: one Event
// per run transition, node execution, specialist invocation, or
// checkpoint, fanned out to sinks (OTel spans, the trace store).
package observe

import "time"

type Kind string

type Status string

const (
	KindRun        Kind = "run"
	KindNode       Kind = "node"
	KindAgent      Kind = "agent"
	KindCheckpoint Kind = "checkpoint"
	KindCustom     Kind = "custom"
)

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Event is one observed step of a graph run. Node names the graph node
// for node-scoped events, Agent the specialist for invocations;
// Provider identifies the run's graph or LLM backend.
type Event struct {
	ID           string         `json:"id,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	RunID        string         `json:"runId,omitempty"`
	SessionID    string         `json:"sessionId,omitempty"`
	SpanID       string         `json:"spanId,omitempty"`
	ParentSpanID string         `json:"parentSpanId,omitempty"`
	Kind         Kind           `json:"kind"`
	Status       Status         `json:"status,omitempty"`
	Node         string         `json:"node,omitempty"`
	Agent        string         `json:"agent,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	Message      string         `json:"message,omitempty"`
	Error        string         `json:"error,omitempty"`
	DurationMs   int64          `json:"durationMs,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
