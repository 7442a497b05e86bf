package agents

import (
	"context"

	"github.com/opsmind/opsmind/pipeline"
	"github.com/opsmind/opsmind/types"
)

// ObservabilityAgent runs the full log/trace analysis pipeline for one
// query and packages the evidence as artifacts.
type ObservabilityAgent struct {
	pipeline *pipeline.Pipeline
}

func NewObservabilityAgent(p *pipeline.Pipeline) *ObservabilityAgent {
	return &ObservabilityAgent{pipeline: p}
}

func (a *ObservabilityAgent) Name() string { return "observability-analysis" }

func (a *ObservabilityAgent) Description() string {
	return "log and trace analysis: fetch logs, correlate traces, summarize service health"
}

func (a *ObservabilityAgent) Handle(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	analysis := a.pipeline.Run(ctx, req.Query)

	content := analysis.Summary
	if analysis.UsedSample() {
		content += "\n\nNote: some of this is sample data because a backend was unreachable."
	}
	return respond(content, map[string]any{
		"intents":      analysis.Intents,
		"log_query":    analysis.LogQuery,
		"window":       analysis.Window.Token,
		"logs":         analysis.Logs,
		"log_source":   string(analysis.LogSource),
		"trace_ids":    analysis.TraceIDs,
		"traces":       analysis.Traces,
		"trace_source": string(analysis.TraceSource),
	}), nil
}
