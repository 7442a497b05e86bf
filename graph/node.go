package graph

import (
	"context"
	"fmt"
)

type Node interface {
	Execute(ctx context.Context, state *State) error
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc func(ctx context.Context, state *State) error

func (f NodeFunc) Execute(ctx context.Context, state *State) error {
	if f == nil {
		return fmt.Errorf("node func is nil")
	}
	return f(ctx, state)
}

type ToolFunc func(ctx context.Context, state *State) error

type ToolNode struct {
	Func ToolFunc
}

func NewToolNode(fn ToolFunc) *ToolNode {
	return &ToolNode{Func: fn}
}

func (n *ToolNode) Execute(ctx context.Context, state *State) error {
	if n == nil || n.Func == nil {
		return fmt.Errorf("tool node func is required")
	}
	if state == nil {
		return fmt.Errorf("state is required")
	}
	return n.Func(ctx, state)
}

type RouteFunc func(ctx context.Context, state *State) (string, error)

// RouterNode runs a routing decision and records the chosen target under
// RouteKey ("route" by default) for edge conditions to match on.
type RouterNode struct {
	Route    RouteFunc
	RouteKey string
}

func NewRouterNode(route RouteFunc) *RouterNode {
	return &RouterNode{Route: route}
}

func (n *RouterNode) Execute(ctx context.Context, state *State) error {
	if n == nil || n.Route == nil {
		return fmt.Errorf("router node route func is required")
	}
	if state == nil {
		return fmt.Errorf("state is required")
	}

	route, err := n.Route(ctx, state)
	if err != nil {
		return err
	}
	state.ensureData()
	key := n.RouteKey
	if key == "" {
		key = "route"
	}
	state.Data[key] = route
	return nil
}
