// Package agents holds the specialist catalog. A specialist owns a bundle
// of adapter-backed tools and produces domain content for one slice of the
// assistant's capabilities.
package agents

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opsmind/opsmind/types"
)

// Specialist handles one planned step.
type Specialist interface {
	Name() string
	Description() string
	Handle(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error)
}

// Registry is the closed set of specialists available to the planner and
// orchestrator.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Specialist
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Specialist{}}
}

func (r *Registry) Register(s Specialist) error {
	if s == nil || s.Name() == "" {
		return fmt.Errorf("specialist name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[s.Name()]; exists {
		return fmt.Errorf("specialist %q already registered", s.Name())
	}
	r.byName[s.Name()] = s
	r.order = append(r.order, s.Name())
	return nil
}

func (r *Registry) MustRegister(s Specialist) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(name string) (Specialist, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// Names returns registered specialist names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Catalog renders "name: description" lines for planner prompts, sorted by
// name so prompts are stable.
func (r *Registry) Catalog() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fmt.Sprintf("%s: %s", name, r.byName[name].Description()))
	}
	return out
}

func respond(content string, artifacts map[string]any) types.AgentResponse {
	return types.AgentResponse{
		Content:   content,
		Artifacts: artifacts,
		Timestamp: time.Now().UTC(),
	}
}

// timeNow is swapped in tests.
var timeNow = func() time.Time { return time.Now().UTC() }

func contextString(ctx map[string]any, key string) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx[key].(string); ok {
		return v
	}
	return ""
}
