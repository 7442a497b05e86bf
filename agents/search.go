package agents

import (
	"context"
	"fmt"

	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/types"
)

// SearchAgent is the generic Q&A specialist and the default fallback when
// the planner cannot name anyone better. It uses no external tools.
type SearchAgent struct {
	provider llm.Provider
	model    string
}

func NewSearchAgent(provider llm.Provider, model string) *SearchAgent {
	return &SearchAgent{provider: provider, model: model}
}

func (a *SearchAgent) Name() string { return "search" }

func (a *SearchAgent) Description() string {
	return "general question answering without external tools"
}

func (a *SearchAgent) Handle(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	if a.provider == nil {
		return respond("No model is configured, so I cannot answer general questions right now.", nil), nil
	}
	resp, err := a.provider.Generate(ctx, types.Request{
		Model:        a.model,
		SystemPrompt: "You are a helpful DevOps assistant. Answer concisely.",
		Messages:     []types.Message{{Role: types.RoleUser, Content: req.Query}},
	})
	if err != nil {
		return types.AgentResponse{}, fmt.Errorf("search agent model call failed: %w", err)
	}
	return respond(resp.Message.Content, nil), nil
}
