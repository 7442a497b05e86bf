package types

import "time"

type EventType string

const (
	EventRunStarted         EventType = "run.started"
	EventRunCompleted       EventType = "run.completed"
	EventRunFailed          EventType = "run.failed"
	EventGraphNodeStarted   EventType = "graph.node.started"
	EventGraphNodeCompleted EventType = "graph.node.completed"
	EventAgentInvoked       EventType = "agent.invoked"
)

type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"runId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	NodeID    string    `json:"nodeId,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}
