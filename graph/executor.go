package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opsmind/opsmind/observe"
	"github.com/opsmind/opsmind/state"
	"github.com/opsmind/opsmind/types"
)

const (
	defaultRecursionLimit     = 100
	defaultCheckpointMaxBytes = 256 * 1024
	resumeLockTTL             = 30 * time.Second
)

type Executor struct {
	graph              *Graph
	store              state.Store
	sessionID          string
	observer           observe.Sink
	recursionLimit     int
	runBudget          time.Duration
	checkpointMaxBytes int
}

type ExecutorOption func(*Executor)

func WithStore(store state.Store) ExecutorOption {
	return func(e *Executor) { e.store = store }
}

func WithSessionID(sessionID string) ExecutorOption {
	return func(e *Executor) {
		if sessionID != "" {
			e.sessionID = sessionID
		}
	}
}

func WithObserver(observer observe.Sink) ExecutorOption {
	return func(e *Executor) {
		e.observer = observer
	}
}

func WithRecursionLimit(limit int) ExecutorOption {
	return func(e *Executor) {
		if limit > 0 {
			e.recursionLimit = limit
		}
	}
}

// WithRunBudget bounds a run's wall-clock time. Zero disables the budget.
func WithRunBudget(budget time.Duration) ExecutorOption {
	return func(e *Executor) {
		if budget > 0 {
			e.runBudget = budget
		}
	}
}

func WithCheckpointMaxBytes(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.checkpointMaxBytes = n
		}
	}
}

func NewExecutor(graph *Graph, opts ...ExecutorOption) (*Executor, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph is required")
	}
	if err := graph.Compile(); err != nil {
		return nil, err
	}
	executor := &Executor{
		graph:              graph,
		recursionLimit:     defaultRecursionLimit,
		checkpointMaxBytes: defaultCheckpointMaxBytes,
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor, nil
}

// StreamEvent is one element of a streaming run: a completed node together
// with the state after it ran, or the terminal result. Failed marks a run
// that ended with a failure absorbed into Output; Err is reserved for
// infrastructure errors outside the run itself.
type StreamEvent struct {
	NodeID string
	State  State
	Output string
	Failed bool
	Err    error
	Done   bool
}

func (e *Executor) Run(ctx context.Context, input string) (types.RunResult, error) {
	if e == nil || e.graph == nil {
		return types.RunResult{}, fmt.Errorf("executor is not initialized")
	}
	now := time.Now().UTC()
	runID := uuid.NewString()
	sessionID := e.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	runtimeState := newState(runID, sessionID, input, now)
	return e.execute(ctx, runtimeState, e.graph.startNodeID, 1, nil)
}

// Stream runs the graph and delivers a StreamEvent after every node. The
// channel is closed after the terminal event (Done or Err set).
func (e *Executor) Stream(ctx context.Context, input string) (<-chan StreamEvent, error) {
	if e == nil || e.graph == nil {
		return nil, fmt.Errorf("executor is not initialized")
	}
	out := make(chan StreamEvent, 8)
	now := time.Now().UTC()
	runID := uuid.NewString()
	sessionID := e.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	runtimeState := newState(runID, sessionID, input, now)

	go func() {
		defer close(out)
		result, err := e.execute(ctx, runtimeState, e.graph.startNodeID, 1, func(ev StreamEvent) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		})
		terminal := StreamEvent{Done: true, Output: result.Output, Failed: result.Status == types.RunFailed, Err: err}
		select {
		case out <- terminal:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func (e *Executor) Resume(ctx context.Context, runID string) (types.RunResult, error) {
	if e == nil || e.graph == nil {
		return types.RunResult{}, fmt.Errorf("executor is not initialized")
	}
	if runID == "" {
		return types.RunResult{}, fmt.Errorf("runID is required")
	}
	if e.store == nil {
		return types.RunResult{}, fmt.Errorf("state store is required for resume")
	}

	// Two resumers racing on one run would interleave checkpoints, so
	// take the store's lease when it offers one.
	if locker, ok := e.store.(state.RunLocker); ok {
		owner := uuid.NewString()
		held, err := locker.AcquireRunLock(ctx, runID, owner, resumeLockTTL)
		if err != nil {
			return types.RunResult{}, err
		}
		if !held {
			return types.RunResult{}, fmt.Errorf("run %q is already being resumed", runID)
		}
		defer func() { _ = locker.ReleaseRunLock(ctx, runID, owner) }()
	}

	run, err := e.store.LoadRun(ctx, runID)
	if err != nil {
		return types.RunResult{}, err
	}

	checkpoint, err := e.store.LoadLatestCheckpoint(ctx, runID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			if run.Status == state.StatusCompleted {
				return types.RunResult{
					Output:      run.Output,
					Status:      types.RunCompleted,
					Provider:    e.graphProviderName(),
					RunID:       run.RunID,
					SessionID:   run.SessionID,
					StartedAt:   run.CreatedAt,
					CompletedAt: run.CompletedAt,
				}, nil
			}
			return types.RunResult{}, fmt.Errorf("no checkpoints found for run %q", runID)
		}
		return types.RunResult{}, err
	}

	runtimeState, nextNodeID, err := restoreStateFromCheckpoint(checkpoint.State)
	if err != nil {
		return types.RunResult{}, err
	}
	if runtimeState.RunID == "" {
		runtimeState.RunID = run.RunID
	}
	if runtimeState.SessionID == "" {
		runtimeState.SessionID = run.SessionID
	}
	if runtimeState.Input == "" {
		runtimeState.Input = run.Input
	}
	if runtimeState.StartedAt.IsZero() {
		if run.CreatedAt != nil {
			runtimeState.StartedAt = run.CreatedAt.UTC()
		} else {
			runtimeState.StartedAt = time.Now().UTC()
		}
	}
	if runtimeState.UpdatedAt.IsZero() {
		runtimeState.UpdatedAt = time.Now().UTC()
	}

	if nextNodeID == "" {
		nextNodeID, err = e.selectNextNode(ctx, runtimeState.LastNodeID, &runtimeState)
		if err != nil {
			return types.RunResult{}, err
		}
	}
	if nextNodeID == "" {
		completedAt := time.Now().UTC()
		if err := e.persistRun(ctx, runtimeState, state.StatusCompleted, run.Output, nil, &completedAt); err != nil {
			return types.RunResult{}, err
		}
		return types.RunResult{
			Output:      run.Output,
			Status:      types.RunCompleted,
			Provider:    e.graphProviderName(),
			RunID:       runtimeState.RunID,
			SessionID:   runtimeState.SessionID,
			StartedAt:   &runtimeState.StartedAt,
			CompletedAt: &completedAt,
		}, nil
	}

	return e.execute(ctx, runtimeState, nextNodeID, checkpoint.Seq+1, nil)
}

func (e *Executor) execute(ctx context.Context, runtimeState State, startNodeID string, seq int, emit func(StreamEvent)) (types.RunResult, error) {
	if startNodeID == "" {
		return types.RunResult{}, fmt.Errorf("start node is empty")
	}
	if e.runBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.runBudget)
		defer cancel()
	}
	if err := e.persistRun(ctx, runtimeState, state.StatusRunning, "", nil, nil); err != nil {
		return types.RunResult{}, err
	}

	nodeTrace := []string{}
	events := []types.Event{
		{
			Type:      types.EventRunStarted,
			Timestamp: time.Now().UTC(),
			RunID:     runtimeState.RunID,
			SessionID: runtimeState.SessionID,
			Provider:  e.graphProviderName(),
			Message:   "graph run started",
		},
	}
	e.emitRuntimeEvent(ctx, events[0])

	currentNodeID := startNodeID
	for currentNodeID != "" {
		if err := ctx.Err(); err != nil {
			return e.failRun(ctx, runtimeState, nodeTrace, events, fmt.Errorf("run budget exceeded: %w", err)), nil
		}
		if len(nodeTrace) >= e.recursionLimit {
			return e.failRun(ctx, runtimeState, nodeTrace, events, fmt.Errorf("%w: %d transitions", ErrRecursionExceeded, len(nodeTrace))), nil
		}

		node, ok := e.graph.nodes[currentNodeID]
		if !ok {
			return e.failRun(ctx, runtimeState, nodeTrace, events, fmt.Errorf("%w: %q", ErrNodeNotFound, currentNodeID)), nil
		}

		events = append(events, types.Event{
			Type:      types.EventGraphNodeStarted,
			Timestamp: time.Now().UTC(),
			RunID:     runtimeState.RunID,
			SessionID: runtimeState.SessionID,
			Provider:  e.graphProviderName(),
			NodeID:    currentNodeID,
		})
		e.emitRuntimeEvent(ctx, events[len(events)-1])

		if err := node.Execute(ctx, &runtimeState); err != nil {
			return e.failRun(ctx, runtimeState, nodeTrace, events, fmt.Errorf("node %q failed: %w", currentNodeID, err)), nil
		}

		runtimeState.LastNodeID = currentNodeID
		runtimeState.UpdatedAt = time.Now().UTC()
		nodeTrace = append(nodeTrace, currentNodeID)

		nextNodeID, err := e.selectNextNode(ctx, currentNodeID, &runtimeState)
		if err != nil {
			return e.failRun(ctx, runtimeState, nodeTrace, events, err), nil
		}
		if err := e.persistCheckpoint(ctx, runtimeState, seq, currentNodeID, nextNodeID); err != nil {
			return e.failRun(ctx, runtimeState, nodeTrace, events, err), nil
		}
		seq++

		events = append(events, types.Event{
			Type:      types.EventGraphNodeCompleted,
			Timestamp: time.Now().UTC(),
			RunID:     runtimeState.RunID,
			SessionID: runtimeState.SessionID,
			Provider:  e.graphProviderName(),
			NodeID:    currentNodeID,
		})
		e.emitRuntimeEvent(ctx, events[len(events)-1])
		if emit != nil {
			emit(StreamEvent{NodeID: currentNodeID, State: runtimeState})
		}

		if err := e.persistRun(ctx, runtimeState, state.StatusRunning, "", nil, nil); err != nil {
			return types.RunResult{}, err
		}
		currentNodeID = nextNodeID
	}

	completedAt := time.Now().UTC()
	output := runtimeState.Output
	if output == "" {
		if raw, ok := runtimeState.Data["output"]; ok {
			if s, ok := raw.(string); ok {
				output = s
			}
		}
	}
	if err := e.persistRun(ctx, runtimeState, state.StatusCompleted, output, nil, &completedAt); err != nil {
		return types.RunResult{}, err
	}
	events = append(events, types.Event{
		Type:      types.EventRunCompleted,
		Timestamp: completedAt,
		RunID:     runtimeState.RunID,
		SessionID: runtimeState.SessionID,
		Provider:  e.graphProviderName(),
		Message:   "graph run completed",
	})
	e.emitRuntimeEvent(ctx, events[len(events)-1])

	startedAt := runtimeState.StartedAt
	return types.RunResult{
		Output:      output,
		Status:      types.RunCompleted,
		Iterations:  len(nodeTrace),
		Provider:    e.graphProviderName(),
		RunID:       runtimeState.RunID,
		SessionID:   runtimeState.SessionID,
		StartedAt:   &startedAt,
		CompletedAt: &completedAt,
		Events:      events,
		NodeTrace:   nodeTrace,
	}, nil
}

func (e *Executor) selectNextNode(ctx context.Context, from string, runtimeState *State) (string, error) {
	edges := e.graph.edges[from]
	for _, edge := range edges {
		if edge.Condition == nil {
			return edge.To, nil
		}
		ok, err := edge.Condition(ctx, runtimeState)
		if err != nil {
			return "", fmt.Errorf("edge %q -> %q condition failed: %w", edge.From, edge.To, err)
		}
		if ok {
			return edge.To, nil
		}
	}
	return "", nil
}

func (e *Executor) persistCheckpoint(ctx context.Context, runtimeState State, seq int, nodeID string, nextNodeID string) error {
	if e.store == nil {
		return nil
	}
	snapshot, err := runtimeState.snapshot(nextNodeID, e.checkpointMaxBytes)
	if err != nil {
		return err
	}
	err = e.store.SaveCheckpoint(ctx, state.CheckpointRecord{
		RunID:     runtimeState.RunID,
		Seq:       seq,
		NodeID:    nodeID,
		State:     snapshot,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil && !errors.Is(err, state.ErrConflict) {
		return err
	}
	if err == nil {
		_ = e.emitObserverEvent(ctx, observe.Event{
			RunID:     runtimeState.RunID,
			SessionID: runtimeState.SessionID,
			Kind:      observe.KindCheckpoint,
			Status:    observe.StatusCompleted,
			Node:      nodeID,
			Attributes: map[string]any{
				"seq":        seq,
				"nextNodeId": nextNodeID,
			},
		})
	}
	return nil
}

// failRun absorbs a terminal run failure. Nothing escapes the runtime as
// an error: the caller gets a final result with status failed and the
// failure text as assistant-facing output.
func (e *Executor) failRun(ctx context.Context, runtimeState State, nodeTrace []string, events []types.Event, runErr error) types.RunResult {
	_ = e.persistFailure(ctx, runtimeState, runErr)
	completedAt := time.Now().UTC()
	startedAt := runtimeState.StartedAt
	events = append(events, types.Event{
		Type:      types.EventRunFailed,
		Timestamp: completedAt,
		RunID:     runtimeState.RunID,
		SessionID: runtimeState.SessionID,
		Provider:  e.graphProviderName(),
		Error:     runErr.Error(),
		Message:   "graph run failed",
	})
	return types.RunResult{
		Output:      "I could not finish this request: " + runErr.Error(),
		Status:      types.RunFailed,
		Error:       runErr.Error(),
		Iterations:  len(nodeTrace),
		Provider:    e.graphProviderName(),
		RunID:       runtimeState.RunID,
		SessionID:   runtimeState.SessionID,
		StartedAt:   &startedAt,
		CompletedAt: &completedAt,
		Events:      events,
		NodeTrace:   nodeTrace,
	}
}

func (e *Executor) persistFailure(ctx context.Context, runtimeState State, runErr error) error {
	completedAt := time.Now().UTC()
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	e.emitRuntimeEvent(ctx, types.Event{
		Type:      types.EventRunFailed,
		Timestamp: completedAt,
		RunID:     runtimeState.RunID,
		SessionID: runtimeState.SessionID,
		Provider:  e.graphProviderName(),
		Error:     errText,
		Message:   "graph run failed",
	})
	return e.persistRun(ctx, runtimeState, state.StatusFailed, "", &errText, &completedAt)
}

func (e *Executor) persistRun(
	ctx context.Context,
	runtimeState State,
	status state.RunStatus,
	output string,
	errText *string,
	completedAt *time.Time,
) error {
	if e.store == nil {
		return nil
	}

	now := time.Now().UTC()
	errValue := ""
	if errText != nil {
		errValue = *errText
	}

	createdAt := runtimeState.StartedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := runtimeState.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	if completedAt != nil {
		updatedAt = *completedAt
	}

	return e.store.SaveRun(ctx, state.RunRecord{
		RunID:       runtimeState.RunID,
		SessionID:   runtimeState.SessionID,
		Graph:       e.graph.Name(),
		Status:      status,
		Input:       runtimeState.Input,
		Output:      output,
		LastNode:    runtimeState.LastNodeID,
		Error:       errValue,
		CreatedAt:   &createdAt,
		UpdatedAt:   &updatedAt,
		CompletedAt: completedAt,
	})
}

func (e *Executor) graphProviderName() string {
	return "graph:" + e.graph.Name()
}

func (e *Executor) emitRuntimeEvent(ctx context.Context, event types.Event) {
	if e == nil || e.observer == nil {
		return
	}
	_ = e.observer.Emit(ctx, observe.FromRuntimeEvent(event))
}

func (e *Executor) emitObserverEvent(ctx context.Context, event observe.Event) error {
	if e == nil || e.observer == nil {
		return nil
	}
	return e.observer.Emit(ctx, event)
}
