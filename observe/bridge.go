package observe

import (
	"strings"

	"github.com/opsmind/opsmind/types"
)

// FromRuntimeEvent converts a runtime types.Event into an observe.Event.
// The event type prefix picks the kind; the suffix picks the status.
func FromRuntimeEvent(in types.Event) Event {
	e := Event{
		Timestamp: in.Timestamp,
		RunID:     in.RunID,
		SessionID: in.SessionID,
		Provider:  in.Provider,
		Node:      in.NodeID,
		Agent:     in.Agent,
		Message:   in.Message,
		Error:     in.Error,
		Attributes: map[string]any{
			"eventType": string(in.Type),
		},
	}

	eventType := string(in.Type)
	switch {
	case strings.HasPrefix(eventType, "graph.node"):
		e.Kind = KindNode
	case strings.HasPrefix(eventType, "run."):
		e.Kind = KindRun
	case strings.HasPrefix(eventType, "agent."):
		e.Kind = KindAgent
	default:
		e.Kind = KindCustom
	}

	switch {
	case strings.HasSuffix(eventType, "started"), strings.HasSuffix(eventType, "invoked"):
		e.Status = StatusStarted
	case strings.HasSuffix(eventType, "failed"):
		e.Status = StatusFailed
	default:
		e.Status = StatusCompleted
	}

	if in.RunID != "" {
		switch {
		case in.NodeID != "":
			e.SpanID = in.RunID + ":node:" + in.NodeID
			e.ParentSpanID = in.RunID
		case in.Agent != "":
			e.SpanID = in.RunID + ":agent:" + in.Agent
			e.ParentSpanID = in.RunID
		default:
			e.SpanID = in.RunID
		}
	}

	e.Normalize()
	return e
}
