package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsmind/opsmind/graph"
	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/types"
)

const responderPromptFormat = `You are a DevOps assistant composing the final answer.
The user asked:
%s

Specialist results gathered so far:
%s

Write a direct, concise answer grounded only in those results. Keep any
"(sample data)" caveats the specialists included.`

// Responder composes the final answer from specialist results. Without a
// model it falls back to concatenating the results verbatim.
type Responder struct {
	provider llm.Provider
	model    string
}

func NewResponder(provider llm.Provider, model string) *Responder {
	return &Responder{provider: provider, model: model}
}

func (r *Responder) compose(ctx context.Context, conv *Conversation) string {
	fallback := r.fallbackAnswer(ctx, conv)
	if r.provider == nil || len(conv.Results) == 0 {
		return fallback
	}
	resp, err := r.provider.Generate(ctx, types.Request{
		Model:        r.model,
		SystemPrompt: fmt.Sprintf(responderPromptFormat, conv.OriginalQuery, renderResults(conv)),
		Messages:     []types.Message{{Role: types.RoleUser, Content: conv.OriginalQuery}},
	})
	if err != nil || strings.TrimSpace(resp.Message.Content) == "" {
		logging.GetLogger("respond").Warn("responder model call failed, using raw results", "error", err)
		return fallback
	}
	return resp.Message.Content
}

func (r *Responder) fallbackAnswer(ctx context.Context, conv *Conversation) string {
	if len(conv.Results) == 0 {
		return r.directAnswer(ctx, conv)
	}
	var parts []string
	for i := range conv.Plan {
		if resp, ok := conv.Results[i]; ok && strings.TrimSpace(resp.Content) != "" {
			parts = append(parts, resp.Content)
		}
	}
	if len(parts) == 0 {
		return r.directAnswer(ctx, conv)
	}
	return strings.Join(parts, "\n\n")
}

// directAnswer handles the no-results path: chit-chat and queries the
// classifier routed straight to respond.
func (r *Responder) directAnswer(ctx context.Context, conv *Conversation) string {
	if r.provider == nil {
		return "I could not produce an answer for that request."
	}
	resp, err := r.provider.Generate(ctx, types.Request{
		Model:    r.model,
		Messages: conversationHistory(conv),
	})
	if err != nil {
		return "I could not produce an answer for that request."
	}
	return resp.Message.Content
}

// RespondNode finalizes the run: compose the answer, mark the conversation
// completed, and surface the text as the run output.
func RespondNode(responder *Responder) graph.NodeFunc {
	return func(ctx context.Context, s *graph.State) error {
		conv, err := LoadConversation(s)
		if err != nil {
			return err
		}

		answer := responder.compose(ctx, conv)
		conv.Append(types.RoleAssistant, "respond", answer)
		conv.Status = types.StatusCompleted
		s.Output = answer
		logging.GetLogger("respond").Info("run answered",
			"agents_used", strings.Join(conv.AgentsUsed, ","), "planner_runs", conv.PlannerRuns)
		return conv.Save(s)
	}
}

const farewell = "알겠습니다. 대화를 종료합니다. Goodbye!"

// TerminateNode ends the conversation without touching any specialist.
func TerminateNode() graph.NodeFunc {
	return func(ctx context.Context, s *graph.State) error {
		conv, err := LoadConversation(s)
		if err != nil {
			return err
		}
		conv.Append(types.RoleAssistant, "terminate", farewell)
		conv.Status = types.StatusCompleted
		s.Output = farewell
		return conv.Save(s)
	}
}

func conversationHistory(conv *Conversation) []types.Message {
	history := make([]types.Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		if msg.Role == types.RoleUser || msg.Role == types.RoleAssistant {
			history = append(history, msg)
		}
	}
	if len(history) == 0 {
		history = append(history, types.Message{Role: types.RoleUser, Content: conv.OriginalQuery})
	}
	return history
}
