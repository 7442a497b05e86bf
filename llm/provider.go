// Package llm defines the model-provider contract shared by the
// orchestration roles (supervisor, planner, validator, responder) and
// the specialists that talk to a model directly.
package llm

import (
	"context"
	"errors"

	"github.com/opsmind/opsmind/types"
)

var ErrNotSupported = errors.New("operation not supported by provider")

// Capabilities advertises what a provider can do. The orchestration
// layer only requires Generate; tool calling is used by the specialist
// agents when available.
type Capabilities struct {
	Tools            bool
	Streaming        bool
	StructuredOutput bool
}

// Provider is a synchronous chat-completion backend. Each orchestration
// role may pin its own model via types.Request.Model; the provider falls
// back to its configured default when the request leaves it empty.
type Provider interface {
	Name() string
	Capabilities() Capabilities
	Generate(ctx context.Context, req types.Request) (types.Response, error)
}

// Model resolves the model for a request: the per-role override on the
// request wins, otherwise the provider's configured fallback.
func Model(req types.Request, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	return fallback
}
