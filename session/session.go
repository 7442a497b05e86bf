// Package session persists chat sessions and their message history behind
// the HTTP session endpoints.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/types"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID        string         `json:"id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// StoredMessage is one persisted chat message.
type StoredMessage struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	Role      types.Role `json:"role"`
	Name      string     `json:"name,omitempty"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Store interface {
	CreateSession(ctx context.Context, metadata map[string]any) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	DeleteSession(ctx context.Context, id string) error
	AppendMessages(ctx context.Context, sessionID string, messages []types.Message) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]StoredMessage, error)
	Close() error
}

var knownRoles = map[types.Role]struct{}{
	types.RoleUser:      {},
	types.RoleAssistant: {},
	types.RoleSystem:    {},
	types.RoleTool:      {},
}

// filterKnown drops messages with unrecognized roles. Dropped messages are
// logged, never stored.
func filterKnown(sessionID string, messages []types.Message) []types.Message {
	kept := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if _, ok := knownRoles[msg.Role]; !ok {
			logging.GetLogger("session").Warn("dropping message with unknown role",
				"session_id", sessionID, "role", string(msg.Role))
			continue
		}
		kept = append(kept, msg)
	}
	return kept
}
