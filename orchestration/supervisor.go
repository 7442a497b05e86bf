package orchestration

import (
	"context"
	"strings"

	"github.com/opsmind/opsmind/graph"
	"github.com/opsmind/opsmind/internal/logging"
)

// Literal termination phrases. A short message matching one of these ends
// the conversation without invoking any specialist.
var terminationPhrases = []string{
	"종료", "중단", "그만", "끝", "quit", "exit", "stop", "bye", "goodbye",
}

const terminationMaxLen = 30

// IsTermination reports whether the message is a termination request.
func IsTermination(message string) bool {
	trimmed := strings.TrimSpace(message)
	if len(trimmed) >= terminationMaxLen {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range terminationPhrases {
		if lower == phrase || strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// SupervisorNode routes terminate vs orchestrator. When in doubt it lets
// the orchestrator run.
func SupervisorNode() *graph.RouterNode {
	return graph.NewRouterNode(func(ctx context.Context, s *graph.State) (string, error) {
		conv, err := LoadConversation(s)
		if err != nil {
			return "", err
		}

		route := nodeOrchestrator
		confidence := "low"
		if IsTermination(conv.LastUserMessage()) {
			route = nodeTerminate
			confidence = "high"
		}
		if conv.ParsedIntent == nil {
			conv.ParsedIntent = map[string]string{}
		}
		conv.ParsedIntent["agent"] = route
		conv.ParsedIntent["confidence"] = confidence

		logging.GetLogger("supervisor").Debug("routing decision", "route", route, "confidence", confidence)
		return route, conv.Save(s)
	})
}
