package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/opsmind/opsmind/types"
)

// Registry holds the adapter-backed tools of one assistant process.
// Bundles group the tools a specialist agent owns.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	bundles map[string]Bundle
}

type Bundle struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tools       []string `json:"tools"`
}

type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   map[string]Tool{},
		bundles: map[string]Bundle{},
	}
}

func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is required")
	}
	name := strings.TrimSpace(tool.Definition().Name)
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

func (r *Registry) RegisterBundle(name, description string, toolNames []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("bundle name is required")
	}
	cleaned := make([]string, 0, len(toolNames))
	for _, t := range toolNames {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		cleaned = append(cleaned, t)
	}
	if len(cleaned) == 0 {
		return fmt.Errorf("bundle %q has no tools", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bundles[name]; exists {
		return fmt.Errorf("bundle %q already registered", name)
	}
	for _, t := range cleaned {
		if _, ok := r.tools[t]; !ok {
			return fmt.Errorf("bundle %q references unknown tool %q", name, t)
		}
	}
	r.bundles[name] = Bundle{Name: name, Description: strings.TrimSpace(description), Tools: cleaned}
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Catalog() []ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		def := t.Definition()
		out = append(out, ToolInfo{Name: def.Name, Description: def.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Bundle resolves a bundle to its tools in registration order.
func (r *Registry) Bundle(name string) ([]Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bundle, ok := r.bundles[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool bundle %q", name)
	}
	out := make([]Tool, 0, len(bundle.Tools))
	for _, n := range bundle.Tools {
		tool, ok := r.tools[n]
		if !ok {
			return nil, fmt.Errorf("bundle %q references unknown tool %q", name, n)
		}
		out = append(out, tool)
	}
	return out, nil
}

func (r *Registry) BundleCatalog() []Bundle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Bundle, 0, len(r.bundles))
	for _, bundle := range r.bundles {
		clone := Bundle{
			Name:        bundle.Name,
			Description: bundle.Description,
			Tools:       append([]string(nil), bundle.Tools...),
		}
		out = append(out, clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs a registered tool by name.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (types.ToolResult, error) {
	tool, ok := r.Get(name)
	if !ok {
		return types.ToolResult{}, fmt.Errorf("unknown tool %q", name)
	}
	return tool.Invoke(ctx, args)
}
