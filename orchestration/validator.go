package orchestration

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/opsmind/opsmind/agents"
	"github.com/opsmind/opsmind/graph"
	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/types"
)

// Planner invocations per run are capped; the validator may only trigger a
// re-plan while budget remains.
const maxPlannerRuns = 2

const validatorPromptFormat = `You are a quality validator. The user asked:
%s

The executed steps and their results:
%s

Score the overall answer on four dimensions from 1 to 10, then state what is missing.
Use exactly this format:

completeness 점수: <n>
accuracy 점수: <n>
quality 점수: <n>
consistency 점수: <n>
feedback: <one or two sentences>
missing_information: <없음 | short description of what is missing>
suggested_agents: <comma-separated specialist names, or 없음>

Known specialists: %s`

// Validator scores aggregated results and decides whether re-planning is
// needed.
type Validator struct {
	provider llm.Provider
	model    string
	registry *agents.Registry
}

func NewValidator(provider llm.Provider, model string, registry *agents.Registry) *Validator {
	return &Validator{provider: provider, model: model, registry: registry}
}

// Validate runs the model and parses its free-text verdict.
func (v *Validator) Validate(ctx context.Context, conv *Conversation) types.ValidationResult {
	if v.provider == nil {
		return defaultValidation()
	}
	resp, err := v.provider.Generate(ctx, types.Request{
		Model: v.model,
		SystemPrompt: fmt.Sprintf(validatorPromptFormat,
			conv.OriginalQuery, renderResults(conv), strings.Join(v.registry.Names(), ", ")),
		Messages:    []types.Message{{Role: types.RoleUser, Content: "Validate the results."}},
		Temperature: 0,
	})
	if err != nil {
		logging.GetLogger("validator").Warn("validator model call failed", "error", err)
		return defaultValidation()
	}
	return v.ParseValidation(resp.Message.Content)
}

// ParseValidation extracts scores and flags from raw validator output.
// Missing dimensions default to 5. Missing-information is assumed true
// unless the text denies it.
func (v *Validator) ParseValidation(raw string) types.ValidationResult {
	result := types.ValidationResult{
		Completeness: extractScore(raw, "completeness"),
		Accuracy:     extractScore(raw, "accuracy"),
		Quality:      extractScore(raw, "quality"),
		Consistency:  extractScore(raw, "consistency"),
		Feedback:     extractField(raw, "feedback"),
	}

	missing := strings.ToLower(strings.TrimSpace(extractField(raw, "missing_information")))
	switch missing {
	case "없음", "없습니다", "no", "none", "":
		result.MissingInformation = false
	default:
		result.MissingInformation = true
	}

	suggested := extractField(raw, "suggested_agents")
	if suggested != "" && suggested != "없음" && !strings.EqualFold(suggested, "none") {
		for _, name := range strings.Split(suggested, ",") {
			name = strings.TrimSpace(name)
			if _, ok := v.registry.Get(name); ok {
				result.SuggestedAgents = append(result.SuggestedAgents, name)
			}
		}
	}
	return result
}

func extractScore(raw, dimension string) int {
	primary := regexp.MustCompile(`(?i)` + dimension + `\s*점수:\s*(\d+)`)
	fallback := regexp.MustCompile(`(?i)` + dimension + `\s*:\s*(\d+)`)
	m := primary.FindStringSubmatch(raw)
	if m == nil {
		m = fallback.FindStringSubmatch(raw)
	}
	if m == nil {
		return 5
	}
	score, err := strconv.Atoi(m[1])
	if err != nil || score < 1 || score > 10 {
		return 5
	}
	return score
}

func extractField(raw, field string) string {
	pattern := regexp.MustCompile(`(?i)` + field + `\s*:\s*(.+)`)
	if m := pattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func defaultValidation() types.ValidationResult {
	return types.ValidationResult{
		Completeness: 5, Accuracy: 5, Quality: 5, Consistency: 5,
		Feedback: "validator unavailable, accepting results as-is",
	}
}

func renderResults(conv *Conversation) string {
	var b strings.Builder
	for i, step := range conv.Plan {
		fmt.Fprintf(&b, "Step %d (%s): %s\n", i+1, step.Agent, step.Description)
		if resp, ok := conv.Results[i]; ok {
			content := resp.Content
			if len(content) > 500 {
				content = content[:500] + "…"
			}
			fmt.Fprintf(&b, "Result: %s\n", content)
		}
	}
	return b.String()
}

// ValidatorNode scores the run and routes: re-plan while budget remains
// and information is missing, otherwise respond.
func ValidatorNode(validator *Validator) *graph.RouterNode {
	return graph.NewRouterNode(func(ctx context.Context, s *graph.State) (string, error) {
		conv, err := LoadConversation(s)
		if err != nil {
			return "", err
		}

		result := validator.Validate(ctx, conv)
		conv.ValidationResult = &result
		conv.ValidatedOnce = true
		conv.Append(types.RoleAssistant, "validator",
			fmt.Sprintf("validation average %.1f, missing_information=%t", result.Average(), result.MissingInformation))

		route := nodeRespond
		if result.MissingInformation && conv.PlannerRuns < maxPlannerRuns {
			route = nodePlanner
		}
		conv.Status = types.StatusResponding
		if route == nodePlanner {
			conv.Status = types.StatusPlanning
		}
		logging.GetLogger("validator").Info("validation complete",
			"average", result.Average(), "missing", result.MissingInformation, "route", route)
		return route, conv.Save(s)
	})
}
