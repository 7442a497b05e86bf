package orchestration

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/opsmind/opsmind/agents"
	"github.com/opsmind/opsmind/graph"
	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/types"
)

const maxPlanSteps = 16

const plannerPromptFormat = `You are a task planner for a DevOps assistant.
Available specialists:
%s

Break the user's request into numbered steps. Each step line must end with "agent: <specialist-name>".
Example:
1. Fetch recent error logs for the service. agent: observability-analysis
2. Summarize the findings. agent: search`

var stepLinePattern = regexp.MustCompile(`^\s*(\d+)[.:]\s*(.*)$`)

// Planner turns a user query into an ordered plan of specialist steps.
type Planner struct {
	provider llm.Provider
	model    string
	registry *agents.Registry
}

func NewPlanner(provider llm.Provider, model string, registry *agents.Registry) *Planner {
	return &Planner{provider: provider, model: model, registry: registry}
}

// Plan invokes the model and parses its output into steps. A dead model
// yields a single search step so the run still answers.
func (p *Planner) Plan(ctx context.Context, query string) []types.TaskStep {
	if p.provider == nil {
		return p.fallbackPlan(query)
	}
	resp, err := p.provider.Generate(ctx, types.Request{
		Model:        p.model,
		SystemPrompt: fmt.Sprintf(plannerPromptFormat, strings.Join(p.registry.Catalog(), "\n")),
		Messages:     []types.Message{{Role: types.RoleUser, Content: query}},
		Temperature:  0,
	})
	if err != nil {
		logging.GetLogger("planner").Warn("planner model call failed", "error", err)
		return p.fallbackPlan(query)
	}
	plan := p.ParsePlan(resp.Message.Content, query)
	if len(plan) == 0 {
		return plan
	}
	return plan
}

// ParsePlan applies the line-based parse rules to raw planner output.
func (p *Planner) ParsePlan(raw, query string) []types.TaskStep {
	log := logging.GetLogger("planner")
	var steps []types.TaskStep
	for _, line := range strings.Split(raw, "\n") {
		m := stepLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		body := strings.TrimSpace(m[2])
		agent := p.extractAgent(body)
		description := stripAgentClause(body)
		if description == "" {
			continue
		}

		index := len(steps)
		deps := make([]int, 0, index)
		for i := 0; i < index; i++ {
			deps = append(deps, i)
		}
		steps = append(steps, types.TaskStep{
			Description:  description,
			Agent:        agent,
			Request:      types.AgentRequest{Query: description, Context: map[string]any{"original_query": query}},
			Dependencies: deps,
			Status:       types.StatusPlanning,
		})
		if len(steps) == maxPlanSteps {
			log.Warn("plan truncated", "max_steps", maxPlanSteps)
			break
		}
	}
	return steps
}

// extractAgent scans the line for any registered specialist name,
// case-insensitive, last match wins. Unknown lines default to search.
func (p *Planner) extractAgent(line string) string {
	lower := strings.ToLower(line)
	agent := "search"
	bestPos := -1
	for _, name := range p.registry.Names() {
		if pos := strings.LastIndex(lower, strings.ToLower(name)); pos > bestPos {
			bestPos = pos
			agent = name
		}
	}
	return agent
}

var agentClausePattern = regexp.MustCompile(`(?i)[\s,.;(]*agent\s*:\s*[a-z0-9-]+\)?\s*$`)

func stripAgentClause(line string) string {
	return strings.TrimSpace(agentClausePattern.ReplaceAllString(line, ""))
}

func (p *Planner) fallbackPlan(query string) []types.TaskStep {
	return []types.TaskStep{{
		Description:  query,
		Agent:        "search",
		Request:      types.AgentRequest{Query: query},
		Dependencies: []int{},
		Status:       types.StatusPlanning,
	}}
}

// PlannerNode wraps the planner as a graph node. It counts invocations so
// the re-plan budget can be enforced by the validator's router.
func PlannerNode(planner *Planner) graph.NodeFunc {
	return func(ctx context.Context, s *graph.State) error {
		conv, err := LoadConversation(s)
		if err != nil {
			return err
		}
		query := conv.OriginalQuery
		if conv.ValidationResult != nil && conv.ValidationResult.Feedback != "" {
			query = fmt.Sprintf("%s\n\nPrevious attempt was incomplete: %s", conv.OriginalQuery, conv.ValidationResult.Feedback)
			if len(conv.ValidationResult.SuggestedAgents) > 0 {
				query += "\nPrefer these specialists: " + strings.Join(conv.ValidationResult.SuggestedAgents, ", ")
			}
		}

		plan := planner.Plan(ctx, query)
		conv.PlannerRuns++
		conv.Plan = plan
		conv.Results = map[int]types.AgentResponse{}
		conv.ValidatedOnce = false
		if len(plan) > 0 {
			conv.CurrentStep = intPtr(0)
			conv.Status = types.StatusExecuting
		} else {
			conv.CurrentStep = nil
			conv.Status = types.StatusResponding
		}
		conv.Append(types.RoleAssistant, "planner", fmt.Sprintf("planned %d steps", len(plan)))
		logging.GetLogger("planner").Info("plan ready", "steps", len(plan), "planner_runs", conv.PlannerRuns)
		return conv.Save(s)
	}
}
