package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/opsmind/opsmind/adapters/loki"
	"github.com/opsmind/opsmind/adapters/tempo"
	"github.com/opsmind/opsmind/pipeline"
	"github.com/opsmind/opsmind/types"
)

// LokiTempoAgent gives direct log and trace access for targeted questions
// that do not need the full analysis pipeline: fetch a trace by id, list
// label values, or run a raw log query.
type LokiTempoAgent struct {
	logs   *loki.Client
	traces *tempo.Client
}

func NewLokiTempoAgent(logs *loki.Client, traces *tempo.Client) *LokiTempoAgent {
	return &LokiTempoAgent{logs: logs, traces: traces}
}

func (a *LokiTempoAgent) Name() string { return "loki-tempo" }

func (a *LokiTempoAgent) Description() string {
	return "direct log and trace lookups: raw queries, trace by id, label listings"
}

var traceIDArg = regexp.MustCompile(`\b([0-9a-f]{16,64})\b`)

func (a *LokiTempoAgent) Handle(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	lower := strings.ToLower(req.Query)

	if strings.Contains(lower, "trace") {
		if m := traceIDArg.FindStringSubmatch(lower); m != nil {
			return a.traceByID(ctx, m[1])
		}
	}
	if strings.Contains(lower, "label") || strings.Contains(lower, "service list") || strings.Contains(lower, "services") {
		return a.labels(ctx)
	}
	return a.rawLogQuery(ctx, req)
}

func (a *LokiTempoAgent) traceByID(ctx context.Context, traceID string) (types.AgentResponse, error) {
	trace, source, err := a.traces.GetTrace(ctx, traceID)
	if err != nil {
		return types.AgentResponse{}, err
	}
	content := fmt.Sprintf("Trace %s: root %s %q, %.1fms, %d spans, %d errors.",
		trace.TraceID, trace.RootService, trace.RootOperation, trace.DurationMs, trace.SpanCount, trace.ErrorCount)
	return respond(content, map[string]any{"trace": trace, "source": string(source)}), nil
}

func (a *LokiTempoAgent) labels(ctx context.Context) (types.AgentResponse, error) {
	services, source, err := a.logs.LabelValues(ctx, "service", true)
	if err != nil {
		return types.AgentResponse{}, err
	}
	content := fmt.Sprintf("Known services: %s.", strings.Join(services, ", "))
	if source == types.SourceSample {
		content += " (sample data: log store unreachable)"
	}
	return respond(content, map[string]any{"services": services, "source": string(source)}), nil
}

func (a *LokiTempoAgent) rawLogQuery(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	query := contextString(req.Context, "logql")
	if query == "" {
		services, _, _ := a.logs.LabelValues(ctx, "service", true)
		params := pipeline.ExtractParams(ctx, nil, "", req.Query, services)
		query = pipeline.BuildLogQuery(params, "", false)
	}
	window := pipeline.ResolveWindow(pipeline.NormalizeWindow(req.Query), timeNow())

	entries, source, err := a.logs.QueryRange(ctx, query, window.StartNs, window.EndNs, 50, true)
	if err != nil {
		return types.AgentResponse{}, err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d log lines for %s over the last %s.\n", len(entries), query, window.Token)
	for i, entry := range entries {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&b, "[%s] %s\n", entry.Timestamp, entry.Line)
	}
	if source == types.SourceSample {
		b.WriteString("(sample data: log store unreachable)\n")
	}
	return respond(b.String(), map[string]any{
		"logs":   entries,
		"query":  query,
		"source": string(source),
	}), nil
}
