package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/opsmind/opsmind/adapters/grafana"
	"github.com/opsmind/opsmind/adapters/tempo"
	"github.com/opsmind/opsmind/pipeline"
	"github.com/opsmind/opsmind/types"
)

// GrafanaAnalysisAgent answers numeric metric questions: it resolves the
// requested window to Unix seconds, pulls per-service duration percentiles
// from recent traces, and names the dashboards that cover the service.
type GrafanaAnalysisAgent struct {
	grafana *grafana.Client
	tempo   *tempo.Client
}

func NewGrafanaAnalysisAgent(g *grafana.Client, t *tempo.Client) *GrafanaAnalysisAgent {
	return &GrafanaAnalysisAgent{grafana: g, tempo: t}
}

func (a *GrafanaAnalysisAgent) Name() string { return "grafana-analysis" }

func (a *GrafanaAnalysisAgent) Description() string {
	return "numeric service metrics (latency percentiles, error rate) and matching dashboards"
}

func (a *GrafanaAnalysisAgent) Handle(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	service := contextString(req.Context, "service")
	if service == "" {
		service = guessServiceToken(req.Query)
	}
	window := pipeline.ResolveWindow(pipeline.NormalizeWindow(req.Query), timeNow())

	metrics, source, err := a.tempo.ServiceMetrics(ctx, service, window.StartSec, window.EndSec, 50, true)
	if err != nil {
		return types.AgentResponse{}, fmt.Errorf("metric aggregation failed: %w", err)
	}

	dashboards, _, _ := a.grafana.ListDashboards(ctx)
	var matched []string
	for _, d := range dashboards {
		if service == "" || strings.Contains(strings.ToLower(d.Title), strings.ToLower(service)) {
			matched = append(matched, d.Title)
		}
	}

	content := fmt.Sprintf(
		"%s over the last %s: %d traces, error rate %.1f%%, p50 %.0fms, p95 %.0fms, p99 %.0fms (max %.0fms).",
		displayService(service), window.Token, metrics.TraceCount, metrics.ErrorRate*100,
		metrics.P50Ms, metrics.P95Ms, metrics.P99Ms, metrics.MaxMs)
	if source == types.SourceSample {
		content += " Figures are from sample data; the trace store was unreachable."
	}
	return respond(content, map[string]any{
		"metrics":    metrics,
		"source":     string(source),
		"dashboards": matched,
		"window":     window.Token,
	}), nil
}

func displayService(service string) string {
	if service == "" {
		return "all services"
	}
	return service
}

// guessServiceToken picks the first hyphenated lowercase token, the common
// shape of service names in queries.
func guessServiceToken(query string) string {
	for _, field := range strings.Fields(query) {
		token := strings.Trim(strings.ToLower(field), `.,!?"'`)
		if strings.Contains(token, "-") && !strings.HasPrefix(token, "-") {
			return token
		}
	}
	return ""
}
