package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsmind/opsmind/adapters/grafana"
	"github.com/opsmind/opsmind/pipeline"
	"github.com/opsmind/opsmind/types"
)

// RendererAgent renders a named dashboard to a PNG. When the name does not
// resolve it returns the dashboard list instead of failing.
type RendererAgent struct {
	client *grafana.Client
}

func NewRendererAgent(client *grafana.Client) *RendererAgent {
	return &RendererAgent{client: client}
}

func (a *RendererAgent) Name() string { return "grafana-renderer" }

func (a *RendererAgent) Description() string {
	return "render a named dashboard to a PNG image"
}

func (a *RendererAgent) Handle(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	name := contextString(req.Context, "dashboard")
	if name == "" {
		name = extractDashboardName(req.Query)
	}
	window := pipeline.NormalizeWindow(req.Query)

	encoded, err := a.client.RenderDashboard(ctx, name, window)
	if err != nil {
		dashboards, _, listErr := a.client.ListDashboards(ctx)
		if listErr != nil {
			return types.AgentResponse{}, fmt.Errorf("render and list both failed: %w", err)
		}
		titles := make([]string, 0, len(dashboards))
		for _, d := range dashboards {
			titles = append(titles, d.Title)
		}
		return respond(
			fmt.Sprintf("I could not render %q. Available dashboards: %s.", name, strings.Join(titles, ", ")),
			map[string]any{"dashboards": titles},
		), nil
	}

	content := fmt.Sprintf("Rendered %q over the last %s.\n\n![dashboard](data:image/png;base64,%s)", name, window, encoded)
	return respond(content, map[string]any{
		"image_base64": encoded,
		"dashboard":    name,
		"window":       window,
	}), nil
}

// extractDashboardName strips the render phrasing and time suffix from a
// query like "render Node Exporter Full for the last 6 hours".
func extractDashboardName(query string) string {
	name := query
	for _, prefix := range []string{"render", "show", "display"} {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, prefix+" ") {
			name = name[len(prefix)+1:]
			break
		}
	}
	for _, marker := range []string{" for the last ", " over the last ", " last ", " dashboard"} {
		if idx := strings.Index(strings.ToLower(name), marker); idx > 0 {
			name = name[:idx]
		}
	}
	return strings.TrimSpace(name)
}
