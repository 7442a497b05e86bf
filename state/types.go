// Package state persists graph runs and their checkpoints so an
// interrupted conversation can be picked up from the last node that
// finished.
package state

import "time"

// RunStatus is the lifecycle of a graph run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// RunRecord is one pass of a user query through an agent graph. Input
// holds the query, Output the final assistant answer once the run
// completes. LastNode is how far the graph got; resume restarts from
// the checkpoint written after it.
type RunRecord struct {
	RunID       string     `json:"runId"`
	SessionID   string     `json:"sessionId"`
	Graph       string     `json:"graph"`
	Status      RunStatus  `json:"status"`
	Input       string     `json:"input"`
	Output      string     `json:"output"`
	LastNode    string     `json:"lastNode,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// CheckpointRecord is the conversation state snapshot taken after one
// node ran. Seq is monotonic within a run; writing a duplicate seq is
// a conflict, which keeps concurrent executors from clobbering each
// other's progress.
type CheckpointRecord struct {
	RunID     string         `json:"runId"`
	Seq       int            `json:"seq"`
	NodeID    string         `json:"nodeId"`
	State     map[string]any `json:"state,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
