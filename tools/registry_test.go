package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/opsmind/opsmind/types"
)

func echoTool(name string) Tool {
	return NewFuncTool(name, "echoes arguments", nil, func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
		_ = ctx
		return types.OkResult(string(args)), nil
	})
}

func TestRegistry_RegisterAndInvoke(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("echo"))

	if err := r.Register(echoTool("echo")); err == nil {
		t.Fatalf("expected duplicate registration error")
	}

	result, err := r.Invoke(context.Background(), "echo", json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if !result.Success || result.Source != types.SourceLive {
		t.Fatalf("unexpected result: %#v", result)
	}
	if result.Data != `{"a":1}` {
		t.Fatalf("unexpected data: %v", result.Data)
	}

	if _, err := r.Invoke(context.Background(), "missing", nil); err == nil {
		t.Fatalf("expected unknown tool error")
	}
}

func TestRegistry_Bundles(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(echoTool("one"))
	r.MustRegister(echoTool("two"))

	if err := r.RegisterBundle("pair", "both echo tools", []string{"one", "two"}); err != nil {
		t.Fatalf("register bundle failed: %v", err)
	}
	if err := r.RegisterBundle("broken", "", []string{"ghost"}); err == nil {
		t.Fatalf("expected unknown tool error for bundle")
	}

	bundleTools, err := r.Bundle("pair")
	if err != nil {
		t.Fatalf("bundle lookup failed: %v", err)
	}
	if len(bundleTools) != 2 {
		t.Fatalf("expected 2 bundle tools, got %d", len(bundleTools))
	}

	catalog := r.Catalog()
	if len(catalog) != 2 || catalog[0].Name != "one" {
		t.Fatalf("unexpected catalog: %#v", catalog)
	}
}
