package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opsmind/opsmind/agents"
	"github.com/opsmind/opsmind/graph"
	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/internal/metrics"
	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/observe"
	"github.com/opsmind/opsmind/types"
)

// Node names of the conversation graph.
const (
	nodeSupervisor   = "supervisor"
	nodeOrchestrator = "orchestrator"
	nodePlanner      = "planner"
	nodeValidator    = "validator"
	nodeRespond      = "respond"
	nodeTerminate    = "terminate"
)

// OrchestrationError marks an unrecoverable routing problem, e.g. a plan
// step naming a specialist that is not registered.
type OrchestrationError struct {
	Step  int
	Agent string
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("step %d names unregistered specialist %q", e.Step, e.Agent)
}

// Orchestrator walks the plan one step per tick, invoking the named
// specialist inline and re-entering itself until the plan is exhausted.
type Orchestrator struct {
	registry *agents.Registry
	provider llm.Provider
	model    string
	events   observe.Sink
}

func NewOrchestrator(registry *agents.Registry, provider llm.Provider, model string) *Orchestrator {
	return &Orchestrator{registry: registry, provider: provider, model: model}
}

// Node returns the orchestrator as a router node.
func (o *Orchestrator) Node() *graph.RouterNode {
	return graph.NewRouterNode(o.tick)
}

func (o *Orchestrator) tick(ctx context.Context, s *graph.State) (string, error) {
	conv, err := LoadConversation(s)
	if err != nil {
		return "", err
	}

	// A finished validation pass routes before any step bookkeeping.
	if conv.ValidatedOnce && conv.ValidationResult != nil {
		conv.Status = types.StatusResponding
		return nodeRespond, conv.Save(s)
	}

	if len(conv.Plan) > 0 && conv.CurrentStep != nil {
		route, err := o.executeStep(ctx, s, conv)
		if err != nil {
			return "", err
		}
		return route, conv.Save(s)
	}

	if conv.PlanExhausted() {
		conv.Status = types.StatusValidating
		return nodeValidator, conv.Save(s)
	}

	if conv.Status == types.StatusResponding {
		return nodeRespond, conv.Save(s)
	}

	// No plan yet: let the fast classifier decide.
	route := o.classify(ctx, conv)
	switch route {
	case "planning":
		conv.Status = types.StatusPlanning
		return nodePlanner, conv.Save(s)
	case "respond":
		conv.Status = types.StatusResponding
		return nodeRespond, conv.Save(s)
	default:
		// single-agent shortcut: synthesize a one-step plan inline
		conv.Plan = []types.TaskStep{{
			Description:  conv.OriginalQuery,
			Agent:        route,
			Request:      types.AgentRequest{Query: conv.OriginalQuery},
			Dependencies: []int{},
			Status:       types.StatusPlanning,
		}}
		conv.CurrentStep = intPtr(0)
		conv.Status = types.StatusExecuting
		stepRoute, err := o.executeStep(ctx, s, conv)
		if err != nil {
			return "", err
		}
		return stepRoute, conv.Save(s)
	}
}

// executeStep runs the current step's specialist, records the result, and
// picks the next route.
func (o *Orchestrator) executeStep(ctx context.Context, s *graph.State, conv *Conversation) (string, error) {
	index := *conv.CurrentStep
	if index >= len(conv.Plan) {
		conv.CurrentStep = nil
		conv.Status = types.StatusValidating
		return nodeValidator, nil
	}
	step := &conv.Plan[index]

	specialist, ok := o.registry.Get(step.Agent)
	if !ok {
		return "", &OrchestrationError{Step: index, Agent: step.Agent}
	}

	started := time.Now().UTC()
	step.StartTime = &started
	step.Status = types.StatusExecuting
	conv.MarkAgentUsed(step.Agent)
	metrics.NodeTransitions.WithLabelValues("specialist:" + step.Agent).Inc()
	if o.events != nil {
		_ = o.events.Emit(ctx, observe.FromRuntimeEvent(types.Event{
			Type:      types.EventAgentInvoked,
			Timestamp: started,
			RunID:     s.RunID,
			SessionID: s.SessionID,
			Agent:     step.Agent,
		}))
	}

	response, err := specialist.Handle(ctx, step.Request)
	ended := time.Now().UTC()
	step.EndTime = &ended
	if err != nil {
		logging.GetLogger("orchestrator").Warn("specialist failed",
			"agent", step.Agent, "step", index, "error", err)
		response = types.AgentResponse{
			Content:   fmt.Sprintf("The %s specialist failed: %v", step.Agent, err),
			Timestamp: ended,
		}
	}
	step.Status = types.StatusCompleted
	step.Response = &response
	conv.Results[index] = response
	conv.Append(types.RoleAssistant, step.Agent, response.Content)

	if index+1 < len(conv.Plan) {
		conv.CurrentStep = intPtr(index + 1)
		return nodeOrchestrator, nil
	}
	conv.CurrentStep = nil
	conv.Status = types.StatusValidating
	return nodeValidator, nil
}

const classifierPrompt = `Decide how to handle the user query. Respond with exactly one word:
- "planning" for multi-step or observability/devops work
- "respond" for chit-chat needing no tools
- "weather" for pure weather questions
- "search" for simple factual questions
- "mcp-generic" when the user names a specific tool to invoke`

// classify is the fast path for plan-less queries. Model failures fall
// back to planning, the safe default.
func (o *Orchestrator) classify(ctx context.Context, conv *Conversation) string {
	if o.provider == nil {
		return "planning"
	}
	resp, err := o.provider.Generate(ctx, types.Request{
		Model:        o.model,
		SystemPrompt: classifierPrompt,
		Messages:     []types.Message{{Role: types.RoleUser, Content: conv.OriginalQuery}},
		Temperature:  0,
	})
	if err != nil {
		return "planning"
	}
	choice := strings.ToLower(strings.TrimSpace(resp.Message.Content))
	choice = strings.Trim(choice, `"'.`)
	switch choice {
	case "respond", "planning":
		return choice
	case "weather", "search", "mcp-generic":
		if _, ok := o.registry.Get(choice); ok {
			return choice
		}
		return "planning"
	default:
		return "planning"
	}
}
