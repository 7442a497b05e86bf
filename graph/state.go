package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

type State struct {
	RunID      string         `json:"runId"`
	SessionID  string         `json:"sessionId"`
	Input      string         `json:"input,omitempty"`
	Output     string         `json:"output,omitempty"`
	LastNodeID string         `json:"lastNodeId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	StartedAt  time.Time      `json:"startedAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

type checkpointSnapshot struct {
	State      State  `json:"state"`
	NextNodeID string `json:"nextNodeId,omitempty"`
}

func newState(runID, sessionID, input string, now time.Time) State {
	return State{
		RunID:     runID,
		SessionID: sessionID,
		Input:     input,
		Data:      map[string]any{},
		StartedAt: now,
		UpdatedAt: now,
	}
}

func (s *State) ensureData() {
	if s.Data == nil {
		s.Data = map[string]any{}
	}
}

func (s *State) EnsureData() {
	s.ensureData()
}

// snapshot serializes the state for checkpointing. When maxBytes > 0 and
// the encoded snapshot is larger, oversized Data entries are replaced with
// an elision marker so checkpoints stay bounded; messages and routing state
// always survive.
func (s State) snapshot(nextNodeID string, maxBytes int) (map[string]any, error) {
	payload := checkpointSnapshot{
		State:      s,
		NextNodeID: nextNodeID,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkpoint snapshot: %w", err)
	}
	if maxBytes > 0 && len(raw) > maxBytes {
		raw, err = json.Marshal(checkpointSnapshot{
			State:      s.withElidedData(maxBytes),
			NextNodeID: nextNodeID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal elided checkpoint snapshot: %w", err)
		}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint snapshot map: %w", err)
	}
	return out, nil
}

const elisionMarker = "[elided]"

func (s State) withElidedData(maxBytes int) State {
	clone := s
	clone.Data = make(map[string]any, len(s.Data))
	// Entries above a share of the budget get their oversized leaves
	// elided; the entry's structure stays intact so conversation data
	// still decodes after a resume.
	perKeyBudget := maxBytes / 4
	for key, value := range s.Data {
		raw, err := json.Marshal(value)
		if err != nil {
			clone.Data[key] = elisionMarker
			continue
		}
		if len(raw) <= perKeyBudget {
			clone.Data[key] = value
			continue
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			clone.Data[key] = elisionMarker
			continue
		}
		elided := elideLargeStrings(decoded, perKeyBudget/4)
		if raw, err = json.Marshal(elided); err != nil || len(raw) > perKeyBudget {
			// Still oversized after stripping string leaves; drop the
			// whole entry rather than bust the checkpoint budget.
			clone.Data[key] = elisionMarker
			continue
		}
		clone.Data[key] = elided
	}
	return clone
}

// elideLargeStrings walks a decoded JSON value and replaces string leaves
// larger than budget bytes with the elision marker. Containers are kept.
func elideLargeStrings(value any, budget int) any {
	switch v := value.(type) {
	case string:
		if len(v) > budget {
			return elisionMarker
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, entry := range v {
			out[key] = elideLargeStrings(entry, budget)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, entry := range v {
			out[i] = elideLargeStrings(entry, budget)
		}
		return out
	default:
		return value
	}
}

func restoreStateFromCheckpoint(raw map[string]any) (State, string, error) {
	if len(raw) == 0 {
		return State{}, "", fmt.Errorf("checkpoint state is empty")
	}
	payloadRaw, err := json.Marshal(raw)
	if err != nil {
		return State{}, "", fmt.Errorf("failed to marshal checkpoint state: %w", err)
	}
	var snapshot checkpointSnapshot
	if err := json.Unmarshal(payloadRaw, &snapshot); err != nil {
		return State{}, "", fmt.Errorf("failed to decode checkpoint state: %w", err)
	}
	snapshot.State.ensureData()
	return snapshot.State, snapshot.NextNodeID, nil
}
