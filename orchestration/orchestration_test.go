package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/opsmind/opsmind/agents"
	"github.com/opsmind/opsmind/graph"
	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/observe"
	"github.com/opsmind/opsmind/types"
)

type scriptedProvider struct {
	replies []string
	calls   int
	models  []string
}

func (p *scriptedProvider) Name() string                   { return "scripted" }
func (p *scriptedProvider) Capabilities() llm.Capabilities { return llm.Capabilities{} }
func (p *scriptedProvider) Generate(_ context.Context, req types.Request) (types.Response, error) {
	p.models = append(p.models, req.Model)
	if p.calls >= len(p.replies) {
		return types.Response{}, fmt.Errorf("scripted provider exhausted after %d calls", p.calls)
	}
	reply := p.replies[p.calls]
	p.calls++
	return types.Response{Message: types.Message{Role: types.RoleAssistant, Content: reply}}, nil
}

type fakeSpecialist struct {
	name  string
	calls int
	fail  error
}

func (f *fakeSpecialist) Name() string        { return f.name }
func (f *fakeSpecialist) Description() string { return f.name + " specialist" }
func (f *fakeSpecialist) Handle(_ context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	f.calls++
	if f.fail != nil {
		return types.AgentResponse{}, f.fail
	}
	return types.AgentResponse{Content: f.name + " handled: " + req.Query}, nil
}

func newTestRegistry(t *testing.T, specialists ...agents.Specialist) *agents.Registry {
	t.Helper()
	registry := agents.NewRegistry()
	for _, s := range specialists {
		if err := registry.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.Name(), err)
		}
	}
	return registry
}

func TestIsTermination(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{"종료", true},
		{"그만할게요", true},
		{"quit", true},
		{"please stop", true},
		{"Goodbye!", true},
		{"how do I stop the payment service from crashing every night", false},
		{"show me error logs", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsTermination(tc.message); got != tc.want {
			t.Errorf("IsTermination(%q) = %t, want %t", tc.message, got, tc.want)
		}
	}
}

func TestParsePlan_NumberedLines(t *testing.T) {
	registry := newTestRegistry(t,
		&fakeSpecialist{name: "observability-analysis"},
		&fakeSpecialist{name: "search"},
	)
	planner := NewPlanner(nil, "m", registry)

	raw := `Here is the plan:
1. Query recent error logs for payment. agent: observability-analysis
2: Summarize the findings. agent: search
not a step line
3. Something with no agent clause at all`

	steps := planner.ParsePlan(raw, "q")
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	if steps[0].Agent != "observability-analysis" {
		t.Errorf("step 0 agent = %q", steps[0].Agent)
	}
	if strings.Contains(steps[0].Description, "agent:") {
		t.Errorf("agent clause not stripped: %q", steps[0].Description)
	}
	if steps[1].Agent != "search" {
		t.Errorf("step 1 agent = %q", steps[1].Agent)
	}
	if steps[2].Agent != "search" {
		t.Errorf("unknown agent should default to search, got %q", steps[2].Agent)
	}
	if len(steps[2].Dependencies) != 2 {
		t.Errorf("step 2 dependencies = %v, want linear deps on 0 and 1", steps[2].Dependencies)
	}
}

func TestParsePlan_LastAgentMentionWins(t *testing.T) {
	registry := newTestRegistry(t,
		&fakeSpecialist{name: "weather"},
		&fakeSpecialist{name: "search"},
	)
	planner := NewPlanner(nil, "m", registry)

	steps := planner.ParsePlan("1. Use search to find weather data. agent: weather", "q")
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	if steps[0].Agent != "weather" {
		t.Errorf("agent = %q, want weather (last mention)", steps[0].Agent)
	}
}

func TestParsePlan_CapsSteps(t *testing.T) {
	registry := newTestRegistry(t, &fakeSpecialist{name: "search"})
	planner := NewPlanner(nil, "m", registry)

	var b strings.Builder
	for i := 1; i <= 25; i++ {
		fmt.Fprintf(&b, "%d. Step number %d. agent: search\n", i, i)
	}
	steps := planner.ParsePlan(b.String(), "q")
	if len(steps) != maxPlanSteps {
		t.Fatalf("expected plan capped at %d, got %d", maxPlanSteps, len(steps))
	}
}

func TestParseValidation(t *testing.T) {
	registry := newTestRegistry(t, &fakeSpecialist{name: "search"}, &fakeSpecialist{name: "weather"})
	validator := NewValidator(nil, "m", registry)

	raw := `completeness 점수: 8
accuracy: 7
quality 점수: 9
feedback: trace data was not checked
missing_information: trace correlation is missing
suggested_agents: weather, ghost-agent`

	result := validator.ParseValidation(raw)
	if result.Completeness != 8 || result.Accuracy != 7 || result.Quality != 9 {
		t.Errorf("scores = %d/%d/%d, want 8/7/9", result.Completeness, result.Accuracy, result.Quality)
	}
	if result.Consistency != 5 {
		t.Errorf("missing dimension should default to 5, got %d", result.Consistency)
	}
	if !result.MissingInformation {
		t.Error("expected missing_information true")
	}
	if len(result.SuggestedAgents) != 1 || result.SuggestedAgents[0] != "weather" {
		t.Errorf("suggested agents = %v, want only registered names", result.SuggestedAgents)
	}
}

func TestParseValidation_NoMissingInformation(t *testing.T) {
	registry := newTestRegistry(t, &fakeSpecialist{name: "search"})
	validator := NewValidator(nil, "m", registry)

	for _, marker := range []string{"없음", "없습니다", "no", "none", ""} {
		raw := "completeness 점수: 9\nmissing_information: " + marker
		if result := validator.ParseValidation(raw); result.MissingInformation {
			t.Errorf("marker %q should mean nothing is missing", marker)
		}
	}
}

func TestParseValidation_GarbageDefaults(t *testing.T) {
	registry := newTestRegistry(t, &fakeSpecialist{name: "search"})
	validator := NewValidator(nil, "m", registry)

	result := validator.ParseValidation("the model rambled and followed no format at all")
	if result.Completeness != 5 || result.Accuracy != 5 || result.Quality != 5 || result.Consistency != 5 {
		t.Errorf("all dimensions should default to 5, got %+v", result)
	}
	if !result.MissingInformation {
		t.Error("absent missing_information field should be treated as missing")
	}
}

func TestValidatorNode_ReplanBudget(t *testing.T) {
	registry := newTestRegistry(t, &fakeSpecialist{name: "search"})
	validator := NewValidator(&scriptedProvider{replies: []string{
		"completeness 점수: 3\nmissing_information: trace data",
		"completeness 점수: 3\nmissing_information: trace data",
	}}, "m", registry)
	node := ValidatorNode(validator)

	route := runValidator(t, node, 1)
	if route != nodePlanner {
		t.Errorf("with budget left route = %q, want planner", route)
	}
	route = runValidator(t, node, maxPlannerRuns)
	if route != nodeRespond {
		t.Errorf("with budget spent route = %q, want respond", route)
	}
}

func runValidator(t *testing.T, node graph.Node, plannerRuns int) string {
	t.Helper()
	s := &graph.State{Input: "q"}
	s.EnsureData()
	conv := &Conversation{
		OriginalQuery: "q",
		Plan:          []types.TaskStep{{Description: "d", Agent: "search"}},
		Results:       map[int]types.AgentResponse{0: {Content: "partial"}},
		PlannerRuns:   plannerRuns,
	}
	if err := conv.Save(s); err != nil {
		t.Fatalf("save conversation: %v", err)
	}
	if err := node.Execute(context.Background(), s); err != nil {
		t.Fatalf("validator node: %v", err)
	}
	route, _ := s.Data["route"].(string)
	return route
}

func TestOrchestratorTick_AdvancesPlan(t *testing.T) {
	logs := &fakeSpecialist{name: "logs"}
	search := &fakeSpecialist{name: "search"}
	registry := newTestRegistry(t, logs, search)
	orchestrator := NewOrchestrator(registry, nil, "m")
	node := orchestrator.Node()

	s := &graph.State{Input: "q"}
	s.EnsureData()
	conv := &Conversation{
		OriginalQuery: "q",
		Plan: []types.TaskStep{
			{Description: "fetch", Agent: "logs", Request: types.AgentRequest{Query: "fetch"}},
			{Description: "summarize", Agent: "search", Request: types.AgentRequest{Query: "summarize"}},
		},
		CurrentStep: intPtr(0),
		Results:     map[int]types.AgentResponse{},
		Status:      types.StatusExecuting,
	}
	if err := conv.Save(s); err != nil {
		t.Fatal(err)
	}

	if err := node.Execute(context.Background(), s); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if route := s.Data["route"]; route != nodeOrchestrator {
		t.Fatalf("after step 0 route = %v, want orchestrator", route)
	}
	if logs.calls != 1 {
		t.Errorf("logs specialist calls = %d, want 1", logs.calls)
	}

	if err := node.Execute(context.Background(), s); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if route := s.Data["route"]; route != nodeValidator {
		t.Fatalf("after last step route = %v, want validator", route)
	}
	if search.calls != 1 {
		t.Errorf("search specialist calls = %d, want 1", search.calls)
	}

	conv, err := LoadConversation(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Results) != 2 {
		t.Errorf("results recorded = %d, want 2", len(conv.Results))
	}
	if conv.CurrentStep != nil {
		t.Error("current step should be cleared after the last step")
	}
	if len(conv.AgentsUsed) != 2 {
		t.Errorf("agents used = %v, want both", conv.AgentsUsed)
	}
}

type recordingSink struct {
	events []observe.Event
}

func (r *recordingSink) Emit(_ context.Context, event observe.Event) error {
	r.events = append(r.events, event)
	return nil
}

func TestOrchestratorTick_EmitsAgentInvocation(t *testing.T) {
	logs := &fakeSpecialist{name: "logs"}
	registry := newTestRegistry(t, logs)
	sink := &recordingSink{}
	orchestrator := NewOrchestrator(registry, nil, "m")
	orchestrator.events = sink
	node := orchestrator.Node()

	s := &graph.State{Input: "q", RunID: "run-7", SessionID: "sess-7"}
	s.EnsureData()
	conv := &Conversation{
		OriginalQuery: "q",
		Plan:          []types.TaskStep{{Description: "fetch", Agent: "logs", Request: types.AgentRequest{Query: "fetch"}}},
		CurrentStep:   intPtr(0),
		Results:       map[int]types.AgentResponse{},
		Status:        types.StatusExecuting,
	}
	if err := conv.Save(s); err != nil {
		t.Fatal(err)
	}

	if err := node.Execute(context.Background(), s); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("events emitted = %d, want 1", len(sink.events))
	}
	got := sink.events[0]
	if got.Kind != observe.KindAgent || got.Status != observe.StatusStarted {
		t.Errorf("event kind/status = %s/%s, want agent/started", got.Kind, got.Status)
	}
	if got.Agent != "logs" || got.RunID != "run-7" || got.SessionID != "sess-7" {
		t.Errorf("event identity = %+v", got)
	}
}

func TestOrchestratorTick_SpecialistFailureIsCaptured(t *testing.T) {
	broken := &fakeSpecialist{name: "broken", fail: errors.New("backend down")}
	registry := newTestRegistry(t, broken)
	node := NewOrchestrator(registry, nil, "m").Node()

	s := &graph.State{Input: "q"}
	s.EnsureData()
	conv := &Conversation{
		OriginalQuery: "q",
		Plan:          []types.TaskStep{{Description: "d", Agent: "broken"}},
		CurrentStep:   intPtr(0),
		Results:       map[int]types.AgentResponse{},
	}
	if err := conv.Save(s); err != nil {
		t.Fatal(err)
	}

	if err := node.Execute(context.Background(), s); err != nil {
		t.Fatalf("tick should not fail on specialist error: %v", err)
	}
	conv, err := LoadConversation(s)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(conv.Results[0].Content, "backend down") {
		t.Errorf("failure not captured in result: %q", conv.Results[0].Content)
	}
}

func TestOrchestratorTick_UnregisteredAgentFails(t *testing.T) {
	registry := newTestRegistry(t, &fakeSpecialist{name: "search"})
	node := NewOrchestrator(registry, nil, "m").Node()

	s := &graph.State{Input: "q"}
	s.EnsureData()
	conv := &Conversation{
		OriginalQuery: "q",
		Plan:          []types.TaskStep{{Description: "d", Agent: "ghost"}},
		CurrentStep:   intPtr(0),
		Results:       map[int]types.AgentResponse{},
	}
	if err := conv.Save(s); err != nil {
		t.Fatal(err)
	}

	err := node.Execute(context.Background(), s)
	var orchErr *OrchestrationError
	if !errors.As(err, &orchErr) {
		t.Fatalf("expected OrchestrationError, got %v", err)
	}
	if orchErr.Agent != "ghost" {
		t.Errorf("error agent = %q, want ghost", orchErr.Agent)
	}
}

func runGraph(t *testing.T, registry *agents.Registry, provider llm.Provider, input string) types.RunResult {
	t.Helper()
	g, err := BuildGraph(GraphConfig{Registry: registry, Provider: provider, Model: "m"})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	executor, err := graph.NewExecutor(g)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	result, err := executor.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return result
}

func TestGraph_Termination(t *testing.T) {
	registry := newTestRegistry(t, &fakeSpecialist{name: "search"})
	provider := &scriptedProvider{}

	result := runGraph(t, registry, provider, "종료")
	if result.Output != farewell {
		t.Errorf("output = %q, want farewell", result.Output)
	}
	if provider.calls != 0 {
		t.Errorf("termination must not touch the model, got %d calls", provider.calls)
	}
}

func TestGraph_PlanExecuteValidateRespond(t *testing.T) {
	logs := &fakeSpecialist{name: "observability-analysis"}
	search := &fakeSpecialist{name: "search"}
	registry := newTestRegistry(t, logs, search)
	provider := &scriptedProvider{replies: []string{
		"planning",
		"1. Query recent error logs. agent: observability-analysis\n2. Summarize the findings. agent: search",
		"completeness 점수: 9\naccuracy 점수: 9\nquality 점수: 8\nconsistency 점수: 9\nmissing_information: 없음",
		"The payment service logged 12 timeout errors in the last hour.",
	}}

	result := runGraph(t, registry, provider, "check errors in payment service")
	if result.Output != "The payment service logged 12 timeout errors in the last hour." {
		t.Errorf("output = %q", result.Output)
	}
	if logs.calls != 1 || search.calls != 1 {
		t.Errorf("specialist calls = %d/%d, want 1/1", logs.calls, search.calls)
	}
	if provider.calls != 4 {
		t.Errorf("provider calls = %d, want 4 (classify, plan, validate, respond)", provider.calls)
	}
}

func TestGraph_PerRoleModels(t *testing.T) {
	registry := newTestRegistry(t, &fakeSpecialist{name: "observability-analysis"}, &fakeSpecialist{name: "search"})
	provider := &scriptedProvider{replies: []string{
		"planning",
		"1. Query recent error logs. agent: observability-analysis",
		"completeness 점수: 9\nmissing_information: 없음",
		"done",
	}}

	g, err := BuildGraph(GraphConfig{
		Registry:        registry,
		Provider:        provider,
		Model:           "base-model",
		SupervisorModel: "classifier-model",
		PlanningModel:   "planner-model",
		ValidationModel: "validator-model",
	})
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	executor, err := graph.NewExecutor(g)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	if _, err := executor.Run(context.Background(), "check errors in payment service"); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"classifier-model", "planner-model", "validator-model", "base-model"}
	if len(provider.models) != len(want) {
		t.Fatalf("models = %v, want %v", provider.models, want)
	}
	for i := range want {
		if provider.models[i] != want[i] {
			t.Fatalf("call %d used model %q, want %q", i, provider.models[i], want[i])
		}
	}
}

func TestGraph_SingleAgentShortcut(t *testing.T) {
	weather := &fakeSpecialist{name: "weather"}
	registry := newTestRegistry(t, weather, &fakeSpecialist{name: "search"})
	provider := &scriptedProvider{replies: []string{
		"weather",
		"completeness 점수: 9\nmissing_information: 없음",
		"Sunny in Seoul, 24 degrees.",
	}}

	result := runGraph(t, registry, provider, "서울 날씨 어때?")
	if weather.calls != 1 {
		t.Fatalf("weather specialist calls = %d, want 1", weather.calls)
	}
	if result.Output != "Sunny in Seoul, 24 degrees." {
		t.Errorf("output = %q", result.Output)
	}
}

func TestGraph_ReplanBudgetStopsAtTwo(t *testing.T) {
	search := &fakeSpecialist{name: "search"}
	registry := newTestRegistry(t, search)
	missing := "completeness 점수: 3\nmissing_information: still missing trace data"
	provider := &scriptedProvider{replies: []string{
		"planning",
		"1. Look things up. agent: search",
		missing,
		"1. Look things up again. agent: search",
		missing,
		"best effort answer",
	}}

	result := runGraph(t, registry, provider, "find the root cause")
	if result.Output != "best effort answer" {
		t.Errorf("output = %q", result.Output)
	}
	// Planner ran twice; the second "missing" verdict must respond instead
	// of planning a third time.
	if search.calls != 2 {
		t.Errorf("specialist calls = %d, want 2", search.calls)
	}
	if provider.calls != 6 {
		t.Errorf("provider calls = %d, want 6", provider.calls)
	}
}

func TestGraph_EmptyPlanRespondsDirectly(t *testing.T) {
	registry := newTestRegistry(t, &fakeSpecialist{name: "search"})
	provider := &scriptedProvider{replies: []string{
		"planning",
		"I cannot break this down.",
		"Here is a direct answer instead.",
	}}

	result := runGraph(t, registry, provider, "hello there")
	if result.Output != "Here is a direct answer instead." {
		t.Errorf("output = %q", result.Output)
	}
}
