package orchestration

import (
	"github.com/opsmind/opsmind/agents"
	"github.com/opsmind/opsmind/graph"
	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/observe"
)

// GraphConfig carries everything the conversation graph needs. Model is
// the default; the per-role models fall back to it when empty. The
// supervisor model drives the fast classifier.
type GraphConfig struct {
	Registry *agents.Registry
	Provider llm.Provider

	Model           string
	SupervisorModel string
	PlanningModel   string
	ValidationModel string

	// Events receives specialist invocation telemetry. Optional.
	Events observe.Sink
}

func (cfg GraphConfig) roleModel(model string) string {
	if model != "" {
		return model
	}
	return cfg.Model
}

// BuildGraph assembles and compiles the conversation graph:
//
//	supervisor ─┬─> terminate
//	            └─> orchestrator ─┬─> orchestrator (next step)
//	                              ├─> planner ──> orchestrator
//	                              ├─> validator ─┬─> planner
//	                              │              └─> respond
//	                              └─> respond
//
// The orchestrator re-enters itself once per plan step, so cycles are
// explicitly allowed and bounded by the executor's recursion limit.
func BuildGraph(cfg GraphConfig) (*graph.Graph, error) {
	orchestrator := NewOrchestrator(cfg.Registry, cfg.Provider, cfg.roleModel(cfg.SupervisorModel))
	orchestrator.events = cfg.Events
	planner := NewPlanner(cfg.Provider, cfg.roleModel(cfg.PlanningModel), cfg.Registry)
	validator := NewValidator(cfg.Provider, cfg.roleModel(cfg.ValidationModel), cfg.Registry)
	responder := NewResponder(cfg.Provider, cfg.Model)

	g := graph.New("opsmind-conversation").
		AddNode(nodeSupervisor, SupervisorNode()).
		AddNode(nodeOrchestrator, orchestrator.Node()).
		AddNode(nodePlanner, PlannerNode(planner)).
		AddNode(nodeValidator, ValidatorNode(validator)).
		AddNode(nodeRespond, RespondNode(responder)).
		AddNode(nodeTerminate, TerminateNode()).
		SetStart(nodeSupervisor).
		AllowCycles(true)

	g.AddEdge(nodeSupervisor, nodeOrchestrator, graph.RouteEquals("route", nodeOrchestrator))
	g.AddEdge(nodeSupervisor, nodeTerminate, graph.RouteEquals("route", nodeTerminate))

	g.AddEdge(nodeOrchestrator, nodeOrchestrator, graph.RouteEquals("route", nodeOrchestrator))
	g.AddEdge(nodeOrchestrator, nodePlanner, graph.RouteEquals("route", nodePlanner))
	g.AddEdge(nodeOrchestrator, nodeValidator, graph.RouteEquals("route", nodeValidator))
	g.AddEdge(nodeOrchestrator, nodeRespond, graph.RouteEquals("route", nodeRespond))

	g.AddEdge(nodePlanner, nodeOrchestrator, graph.Always)

	g.AddEdge(nodeValidator, nodePlanner, graph.RouteEquals("route", nodePlanner))
	g.AddEdge(nodeValidator, nodeRespond, graph.RouteEquals("route", nodeRespond))

	if err := g.Compile(); err != nil {
		return nil, err
	}
	return g, nil
}
