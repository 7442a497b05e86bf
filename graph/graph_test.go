package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opsmind/opsmind/state"
)

type memoryStore struct {
	mu          sync.Mutex
	runs        map[string]state.RunRecord
	checkpoints map[string][]state.CheckpointRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		runs:        map[string]state.RunRecord{},
		checkpoints: map[string][]state.CheckpointRecord{},
	}
}

func (m *memoryStore) SaveRun(ctx context.Context, run state.RunRecord) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.RunID] = run
	return nil
}

func (m *memoryStore) LoadRun(ctx context.Context, runID string) (state.RunRecord, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return state.RunRecord{}, state.ErrNotFound
	}
	return run, nil
}

func (m *memoryStore) ListRuns(ctx context.Context, query state.ListRunsQuery) ([]state.RunRecord, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]state.RunRecord, 0, len(m.runs))
	for _, run := range m.runs {
		if query.SessionID != "" && run.SessionID != query.SessionID {
			continue
		}
		if query.Status != "" && run.Status != query.Status {
			continue
		}
		out = append(out, run)
	}
	return out, nil
}

func (m *memoryStore) SaveCheckpoint(ctx context.Context, checkpoint state.CheckpointRecord) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.checkpoints[checkpoint.RunID]
	for _, e := range existing {
		if e.Seq == checkpoint.Seq {
			return state.ErrConflict
		}
	}
	m.checkpoints[checkpoint.RunID] = append(existing, checkpoint)
	return nil
}

func (m *memoryStore) LoadLatestCheckpoint(ctx context.Context, runID string) (state.CheckpointRecord, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.checkpoints[runID]
	if len(items) == 0 {
		return state.CheckpointRecord{}, state.ErrNotFound
	}
	latest := items[0]
	for i := 1; i < len(items); i++ {
		if items[i].Seq > latest.Seq {
			latest = items[i]
		}
	}
	return latest, nil
}

func (m *memoryStore) ListCheckpoints(ctx context.Context, runID string, limit int) ([]state.CheckpointRecord, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]state.CheckpointRecord(nil), m.checkpoints[runID]...)
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}

func (m *memoryStore) Close() error { return nil }

type lockingStore struct {
	*memoryStore
	locks map[string]string
}

func newLockingStore() *lockingStore {
	return &lockingStore{memoryStore: newMemoryStore(), locks: map[string]string{}}
}

func (l *lockingStore) AcquireRunLock(ctx context.Context, runID, owner string, ttl time.Duration) (bool, error) {
	_, _ = ctx, ttl
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[runID]; held {
		return false, nil
	}
	l.locks[runID] = owner
	return true, nil
}

func (l *lockingStore) ReleaseRunLock(ctx context.Context, runID, owner string) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[runID] == owner {
		delete(l.locks, runID)
	}
	return nil
}

func TestGraphCompile_Validation(t *testing.T) {
	g := New("test")
	g.AddNode("start", NewToolNode(func(ctx context.Context, s *State) error { return nil }))
	g.SetStart("start")
	g.AddEdge("start", "missing", nil)

	if err := g.Compile(); err == nil {
		t.Fatalf("expected compile error for missing edge node")
	}
}

func TestGraphCompile_DetectsCyclesByDefault(t *testing.T) {
	g := New("cycle")
	g.AddNode("a", NewToolNode(func(ctx context.Context, s *State) error { return nil }))
	g.AddNode("b", NewToolNode(func(ctx context.Context, s *State) error { return nil }))
	g.SetStart("a")
	g.AddEdge("a", "b", nil)
	g.AddEdge("b", "a", nil)

	if err := g.Compile(); err == nil {
		t.Fatalf("expected cycle compile error")
	}

	if err := g.AllowCycles(true).Compile(); err != nil {
		t.Fatalf("expected compile success with allowed cycles: %v", err)
	}
}

func TestExecutor_Run_DeterministicThreeNodes(t *testing.T) {
	store := newMemoryStore()
	g := New("pipeline")
	g.AddNode("prepare", NewToolNode(func(ctx context.Context, s *State) error {
		s.ensureData()
		s.Data["prepared"] = strings.ToUpper(s.Input)
		return nil
	}))
	g.AddNode("work", NewToolNode(func(ctx context.Context, s *State) error {
		v, _ := s.Data["prepared"].(string)
		s.Data["worked"] = "ok:" + v
		return nil
	}))
	g.AddNode("finalize", NewToolNode(func(ctx context.Context, s *State) error {
		v, _ := s.Data["worked"].(string)
		s.Output = "FINAL " + v
		s.ensureData()
		s.Data["output"] = s.Output
		return nil
	}))
	g.SetStart("prepare")
	g.AddEdge("prepare", "work", nil)
	g.AddEdge("work", "finalize", nil)

	executor, err := NewExecutor(g, WithStore(store), WithSessionID("sess-1"))
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}

	result, err := executor.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Output != "FINAL ok:HELLO" {
		t.Fatalf("unexpected output: %q", result.Output)
	}
	if len(result.NodeTrace) != 3 {
		t.Fatalf("expected 3 node trace entries, got %d", len(result.NodeTrace))
	}
	if result.NodeTrace[0] != "prepare" || result.NodeTrace[2] != "finalize" {
		t.Fatalf("unexpected node trace: %#v", result.NodeTrace)
	}

	run, err := store.LoadRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("load run failed: %v", err)
	}
	if run.Status != state.StatusCompleted {
		t.Fatalf("expected completed run, got %q", run.Status)
	}
	if run.Graph != "pipeline" || run.LastNode != "finalize" {
		t.Fatalf("run record missing graph progress: %#v", run)
	}

	checkpoints, err := store.ListCheckpoints(context.Background(), result.RunID, 10)
	if err != nil {
		t.Fatalf("list checkpoints failed: %v", err)
	}
	if len(checkpoints) != 3 {
		t.Fatalf("expected 3 checkpoints, got %d", len(checkpoints))
	}
}

func TestExecutor_Resume_FromCheckpoint(t *testing.T) {
	store := newMemoryStore()
	var midCalls int

	g := New("resume")
	g.AddNode("a", NewToolNode(func(ctx context.Context, s *State) error {
		s.ensureData()
		s.Data["v"] = "from-a"
		return nil
	}))
	g.AddNode("b", NewToolNode(func(ctx context.Context, s *State) error {
		midCalls++
		if midCalls == 1 {
			return errors.New("transient node error")
		}
		s.ensureData()
		s.Data["v"] = "from-b"
		return nil
	}))
	g.AddNode("c", NewToolNode(func(ctx context.Context, s *State) error {
		s.Output = "done"
		return nil
	}))
	g.SetStart("a")
	g.AddEdge("a", "b", nil)
	g.AddEdge("b", "c", nil)

	executor, err := NewExecutor(g, WithStore(store), WithSessionID("sess-r"))
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}

	first, err := executor.Run(context.Background(), "input")
	if err != nil {
		t.Fatalf("run failures must come back as results, got error: %v", err)
	}
	if first.Status != "failed" || first.RunID == "" {
		t.Fatalf("expected failed result with run id, got %+v", first)
	}
	if !strings.Contains(first.Error, "transient node error") {
		t.Fatalf("failure cause missing: %q", first.Error)
	}

	runs, err := store.ListRuns(context.Background(), state.ListRunsQuery{SessionID: "sess-r"})
	if err != nil {
		t.Fatalf("list runs failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected exactly one run, got %d", len(runs))
	}
	if runs[0].Status != "failed" {
		t.Fatalf("expected failed status, got %q", runs[0].Status)
	}

	resumed, err := executor.Resume(context.Background(), runs[0].RunID)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if resumed.Output != "done" {
		t.Fatalf("unexpected resumed output: %q", resumed.Output)
	}
	if len(resumed.NodeTrace) != 2 {
		t.Fatalf("expected resume node trace length 2, got %d", len(resumed.NodeTrace))
	}

	run, err := store.LoadRun(context.Background(), runs[0].RunID)
	if err != nil {
		t.Fatalf("load run failed: %v", err)
	}
	if run.Status != "completed" {
		t.Fatalf("expected completed status after resume, got %q", run.Status)
	}
	if run.CompletedAt == nil || run.CompletedAt.Before(time.Now().Add(-2*time.Minute)) {
		t.Fatalf("expected recent completion timestamp")
	}
}

// Resume takes the store's run lease when one is offered, so a second
// resumer is turned away while the first is still working.
func TestExecutor_Resume_RespectsRunLease(t *testing.T) {
	store := newLockingStore()
	var calls int

	g := New("leased")
	g.AddNode("a", NewToolNode(func(ctx context.Context, s *State) error { return nil }))
	g.AddNode("b", NewToolNode(func(ctx context.Context, s *State) error {
		calls++
		if calls == 1 {
			return errors.New("first attempt failed")
		}
		s.Output = "recovered"
		return nil
	}))
	g.SetStart("a")
	g.AddEdge("a", "b", nil)

	executor, err := NewExecutor(g, WithStore(store), WithSessionID("sess-l"))
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}

	first, err := executor.Run(context.Background(), "input")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if first.Status != "failed" {
		t.Fatalf("expected failed first run, got %+v", first)
	}

	held, err := store.AcquireRunLock(context.Background(), first.RunID, "other-resumer", time.Minute)
	if err != nil || !held {
		t.Fatalf("could not pre-hold lease: (%v, %v)", held, err)
	}
	if _, err := executor.Resume(context.Background(), first.RunID); err == nil {
		t.Fatalf("expected resume to be rejected while lease is held")
	}

	if err := store.ReleaseRunLock(context.Background(), first.RunID, "other-resumer"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	resumed, err := executor.Resume(context.Background(), first.RunID)
	if err != nil {
		t.Fatalf("resume after release failed: %v", err)
	}
	if resumed.Output != "recovered" {
		t.Fatalf("unexpected resumed output: %q", resumed.Output)
	}
	if _, stillHeld := store.locks[first.RunID]; stillHeld {
		t.Fatalf("resume must release the lease when done")
	}
}

func TestExecutor_RecursionLimit(t *testing.T) {
	g := New("loop")
	g.AddNode("a", NewToolNode(func(ctx context.Context, s *State) error { return nil }))
	g.AddNode("b", NewToolNode(func(ctx context.Context, s *State) error { return nil }))
	g.SetStart("a")
	g.AddEdge("a", "b", nil)
	g.AddEdge("b", "a", nil)
	g.AllowCycles(true)

	executor, err := NewExecutor(g, WithRecursionLimit(7))
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}

	result, err := executor.Run(context.Background(), "spin")
	if err != nil {
		t.Fatalf("recursion overflow must come back as a result, got error: %v", err)
	}
	if result.Status != "failed" || !strings.Contains(result.Error, ErrRecursionExceeded.Error()) {
		t.Fatalf("expected failed result naming the recursion limit, got %+v", result)
	}
}

// A node failure never escapes the executor as an error: the caller gets
// the final state with the failure text as output.
func TestExecutor_NodeFailureBecomesResult(t *testing.T) {
	store := newMemoryStore()
	g := New("boundary")
	g.AddNode("boom", NewToolNode(func(ctx context.Context, s *State) error {
		return errors.New("adapter exploded")
	}))
	g.SetStart("boom")

	executor, err := NewExecutor(g, WithStore(store), WithSessionID("sess-f"))
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}

	result, err := executor.Run(context.Background(), "x")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.Status != "failed" {
		t.Fatalf("status = %q, want failed", result.Status)
	}
	if !strings.Contains(result.Output, "adapter exploded") {
		t.Fatalf("failure text missing from output: %q", result.Output)
	}
	if result.RunID == "" || result.SessionID != "sess-f" {
		t.Fatalf("identity missing from failed result: %+v", result)
	}

	run, err := store.LoadRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("load run failed: %v", err)
	}
	if run.Status != "failed" {
		t.Fatalf("persisted status = %q, want failed", run.Status)
	}
}

func TestExecutor_Stream_FailedRunMarksTerminalEvent(t *testing.T) {
	g := New("failstream")
	g.AddNode("boom", NewToolNode(func(ctx context.Context, s *State) error {
		return errors.New("boom")
	}))
	g.SetStart("boom")

	executor, err := NewExecutor(g)
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}
	ch, err := executor.Stream(context.Background(), "x")
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	var final StreamEvent
	for ev := range ch {
		if ev.Done {
			final = ev
		}
	}
	if final.Err != nil {
		t.Fatalf("run failure must not surface as stream error: %v", final.Err)
	}
	if !final.Failed || !strings.Contains(final.Output, "boom") {
		t.Fatalf("terminal event = %+v, want failed with failure text", final)
	}
}

func TestExecutor_Stream_EmitsPerNode(t *testing.T) {
	g := New("stream")
	g.AddNode("one", NewToolNode(func(ctx context.Context, s *State) error { return nil }))
	g.AddNode("two", NewToolNode(func(ctx context.Context, s *State) error {
		s.Output = "streamed"
		return nil
	}))
	g.SetStart("one")
	g.AddEdge("one", "two", nil)

	executor, err := NewExecutor(g)
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}

	ch, err := executor.Stream(context.Background(), "x")
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	var nodes []string
	var final StreamEvent
	for ev := range ch {
		if ev.Done {
			final = ev
			continue
		}
		nodes = append(nodes, ev.NodeID)
	}
	if len(nodes) != 2 || nodes[0] != "one" || nodes[1] != "two" {
		t.Fatalf("unexpected streamed nodes: %#v", nodes)
	}
	if final.Err != nil {
		t.Fatalf("unexpected stream error: %v", final.Err)
	}
	if final.Output != "streamed" {
		t.Fatalf("unexpected final output: %q", final.Output)
	}
}

func TestExecutor_UnknownRouteTarget(t *testing.T) {
	g := New("router")
	g.AddNode("route", NewRouterNode(func(ctx context.Context, s *State) (string, error) {
		return "nowhere", nil
	}))
	g.AddNode("end", NewToolNode(func(ctx context.Context, s *State) error { return nil }))
	g.SetStart("route")
	g.AddEdge("route", "end", RouteEquals("route", "end"))

	executor, err := NewExecutor(g)
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}

	// Route resolves to no edge, so the run ends at the router.
	result, err := executor.Run(context.Background(), "x")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.NodeTrace) != 1 {
		t.Fatalf("expected single node trace, got %#v", result.NodeTrace)
	}
}
