package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/types"
)

// Keyword bags for the rule-based intent pass. Korean terms are included
// because operators query in both languages.
var (
	logKeywords    = []string{"log", "logs", "error", "errors", "exception", "로그", "오류", "에러", "예외"}
	traceKeywords  = []string{"trace", "traces", "span", "latency", "slow", "트레이스", "추적", "지연"}
	statusKeywords = []string{"status", "health", "healthy", "down", "alive", "상태", "헬스", "장애"}
)

// DetectIntents unions the rule-based pass with a model classification.
// The rule pass runs first so a dead model never blanks the result.
func DetectIntents(ctx context.Context, provider llm.Provider, model, query string) []types.Intent {
	intents := ruleIntents(query)
	if provider != nil {
		for _, intent := range modelIntents(ctx, provider, model, query) {
			intents = appendIntent(intents, intent)
		}
	}
	if len(intents) == 0 {
		intents = append(intents, types.IntentGeneral)
	}
	return intents
}

func ruleIntents(query string) []types.Intent {
	lower := strings.ToLower(query)
	var intents []types.Intent
	if countHits(lower, logKeywords) > 0 {
		intents = append(intents, types.IntentLogQuery)
	}
	if countHits(lower, traceKeywords) > 0 {
		intents = append(intents, types.IntentTraceQuery)
	}
	if countHits(lower, statusKeywords) > 0 {
		intents = append(intents, types.IntentStatusQuery)
	}
	return intents
}

var validIntents = map[types.Intent]bool{
	types.IntentLogQuery:        true,
	types.IntentTraceQuery:      true,
	types.IntentStatusQuery:     true,
	types.IntentWeather:         true,
	types.IntentSearch:          true,
	types.IntentDeploy:          true,
	types.IntentRenderDashboard: true,
	types.IntentLoadTest:        true,
	types.IntentRAGLookup:       true,
	types.IntentGeneral:         true,
}

const intentPrompt = `Classify the user query into one or more of these intents:
LOG_QUERY, TRACE_QUERY, STATUS_QUERY, WEATHER, SEARCH, DEPLOY, RENDER_DASHBOARD, LOAD_TEST, RAG_LOOKUP, GENERAL.
Respond with JSON only: {"intents": ["..."]}`

func modelIntents(ctx context.Context, provider llm.Provider, model, query string) []types.Intent {
	resp, err := provider.Generate(ctx, types.Request{
		Model:        model,
		SystemPrompt: intentPrompt,
		Messages:     []types.Message{{Role: types.RoleUser, Content: query}},
		Temperature:  0,
	})
	if err != nil {
		return nil
	}
	var parsed struct {
		Intents []string `json:"intents"`
	}
	if err := json.Unmarshal([]byte(StripCodeFence(resp.Message.Content)), &parsed); err != nil {
		return nil
	}
	var out []types.Intent
	for _, raw := range parsed.Intents {
		intent := types.Intent(strings.ToUpper(strings.TrimSpace(raw)))
		if validIntents[intent] {
			out = append(out, intent)
		}
	}
	return out
}

func appendIntent(intents []types.Intent, intent types.Intent) []types.Intent {
	for _, existing := range intents {
		if existing == intent {
			return intents
		}
	}
	return append(intents, intent)
}

func countHits(lower string, bag []string) int {
	hits := 0
	for _, kw := range bag {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return hits
}

// StripCodeFence removes a ```json ... ``` wrapper when the model insists
// on fencing its output.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
