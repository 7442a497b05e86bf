package store

import (
	"context"
	"time"

	"github.com/opsmind/opsmind/observe"
)

type ListQuery struct {
	Limit  int
	Offset int
}

type MetricsQuery struct {
	Since *time.Time
}

// MetricsSummary aggregates the persisted trace by what the runtime
// actually emits: run transitions, completed node executions,
// specialist invocations, and saved checkpoints.
type MetricsSummary struct {
	RunsStarted      int64 `json:"runsStarted"`
	RunsCompleted    int64 `json:"runsCompleted"`
	RunsFailed       int64 `json:"runsFailed"`
	NodesExecuted    int64 `json:"nodesExecuted"`
	AgentInvocations int64 `json:"agentInvocations"`
	Checkpoints      int64 `json:"checkpoints"`
}

type Store interface {
	SaveEvent(ctx context.Context, event observe.Event) error
	ListEventsByRun(ctx context.Context, runID string, query ListQuery) ([]observe.Event, error)
	ListEventsBySession(ctx context.Context, sessionID string, query ListQuery) ([]observe.Event, error)
	AggregateMetrics(ctx context.Context, query MetricsQuery) (MetricsSummary, error)
	Close() error
}
