// Package orchestration implements the supervisor/planner/orchestrator/
// validator loop on top of the graph runtime. The typed conversation state
// rides inside the graph state's data map so checkpointing and resume work
// unchanged.
package orchestration

import (
	"encoding/json"
	"fmt"

	"github.com/opsmind/opsmind/graph"
	"github.com/opsmind/opsmind/types"
)

const conversationKey = "conversation"

// Conversation is the typed state threaded through every node.
type Conversation struct {
	Messages         []types.Message             `json:"messages"`
	OriginalQuery    string                      `json:"originalQuery"`
	ParsedIntent     map[string]string           `json:"parsedIntent,omitempty"`
	Plan             []types.TaskStep            `json:"plan,omitempty"`
	CurrentStep      *int                        `json:"currentStep,omitempty"`
	Results          map[int]types.AgentResponse `json:"results,omitempty"`
	ValidationResult *types.ValidationResult     `json:"validationResult,omitempty"`
	Status           types.TaskStatus            `json:"status"`
	PlannerRuns      int                         `json:"plannerRuns"`
	ValidatedOnce    bool                        `json:"validatedOnce"`
	AgentsUsed       []string                    `json:"agentsUsed,omitempty"`
}

// LoadConversation pulls the conversation out of the graph state, creating
// a fresh one from the run input on first touch.
func LoadConversation(s *graph.State) (*Conversation, error) {
	s.EnsureData()
	raw, ok := s.Data[conversationKey]
	if !ok {
		conv := &Conversation{
			OriginalQuery: s.Input,
			Status:        types.StatusPlanning,
			Results:       map[int]types.AgentResponse{},
			Messages: []types.Message{
				{Role: types.RoleUser, Content: s.Input},
			},
		}
		return conv, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("conversation state is corrupt: %w", err)
	}
	var conv Conversation
	if err := json.Unmarshal(encoded, &conv); err != nil {
		return nil, fmt.Errorf("conversation state is corrupt: %w", err)
	}
	if conv.Results == nil {
		conv.Results = map[int]types.AgentResponse{}
	}
	return &conv, nil
}

// Save writes the conversation back into the graph state as a plain map so
// checkpoint serialization stays schema-free.
func (c *Conversation) Save(s *graph.State) error {
	encoded, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(encoded, &asMap); err != nil {
		return fmt.Errorf("failed to re-encode conversation: %w", err)
	}
	s.EnsureData()
	s.Data[conversationKey] = asMap
	return nil
}

// Append adds a message; messages are never reordered or dropped.
func (c *Conversation) Append(role types.Role, name, content string) {
	c.Messages = append(c.Messages, types.Message{Role: role, Name: name, Content: content})
}

// LastUserMessage returns the newest user-role message content.
func (c *Conversation) LastUserMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == types.RoleUser {
			return c.Messages[i].Content
		}
	}
	return c.OriginalQuery
}

// MarkAgentUsed records a specialist invocation for response metadata.
func (c *Conversation) MarkAgentUsed(name string) {
	for _, used := range c.AgentsUsed {
		if used == name {
			return
		}
	}
	c.AgentsUsed = append(c.AgentsUsed, name)
}

// PlanExhausted reports whether every step has run.
func (c *Conversation) PlanExhausted() bool {
	return len(c.Plan) > 0 && c.CurrentStep == nil
}

func intPtr(v int) *int { return &v }
