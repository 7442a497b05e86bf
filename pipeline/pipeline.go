// Package pipeline implements the log/trace analysis flow: intent
// detection, parameter extraction, query synthesis, log fetch, trace id
// extraction and fetch, synthetic correlation, and summarization. Every
// step degrades instead of raising; the caller always gets an Analysis.
package pipeline

import (
	"context"
	"time"

	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/types"
)

// LogStore is the slice of the log adapter the pipeline uses. The pipeline
// opts in to sample fallbacks so analysis degrades instead of failing.
type LogStore interface {
	QueryRange(ctx context.Context, query string, startNs, endNs int64, limit int, allowSample bool) ([]types.LogEntry, types.ResultSource, error)
	LabelValues(ctx context.Context, label string, allowSample bool) ([]string, types.ResultSource, error)
}

// TraceStore is the slice of the trace adapter the pipeline uses.
type TraceStore interface {
	GetTrace(ctx context.Context, traceID string) (types.Trace, types.ResultSource, error)
	Search(ctx context.Context, query string, startSec, endSec int64, limit int, allowSample bool) ([]types.Trace, types.ResultSource, error)
}

type Config struct {
	Model      string
	LogLimit   int
	TraceLimit int
	// DefaultWindow is the time range used when the query names none.
	// Empty means "1h".
	DefaultWindow string
}

type Pipeline struct {
	provider llm.Provider
	logs     LogStore
	traces   TraceStore
	cfg      Config
	now      func() time.Time
}

func New(provider llm.Provider, logs LogStore, traces TraceStore, cfg Config) *Pipeline {
	if cfg.LogLimit <= 0 {
		cfg.LogLimit = 100
	}
	if cfg.TraceLimit <= 0 {
		cfg.TraceLimit = 20
	}
	if cfg.DefaultWindow == "" {
		cfg.DefaultWindow = defaultWindowToken
	}
	return &Pipeline{provider: provider, logs: logs, traces: traces, cfg: cfg, now: time.Now}
}

// Analysis is the pipeline's aggregated output.
type Analysis struct {
	Query       string             `json:"query"`
	Intents     []types.Intent     `json:"intents"`
	Params      Params             `json:"params"`
	LogQuery    string             `json:"log_query"`
	Window      Window             `json:"window"`
	Logs        []types.LogEntry   `json:"logs,omitempty"`
	LogSource   types.ResultSource `json:"log_source"`
	TraceIDs    []string           `json:"trace_ids,omitempty"`
	Traces      []types.Trace      `json:"traces,omitempty"`
	TraceSource types.ResultSource `json:"trace_source,omitempty"`
	Summary     string             `json:"summary"`
}

// UsedSample reports whether any stage substituted synthetic data.
func (a Analysis) UsedSample() bool {
	if a.LogSource == types.SourceSample || a.TraceSource == types.SourceSample {
		return true
	}
	for _, trace := range a.Traces {
		if trace.Synthetic {
			return true
		}
	}
	return false
}

// Run walks the full analysis flow for one query.
func (p *Pipeline) Run(ctx context.Context, query string) Analysis {
	log := logging.GetLogger("pipeline")
	analysis := Analysis{Query: query, LogSource: types.SourceLive}

	analysis.Intents = DetectIntents(ctx, p.provider, p.cfg.Model, query)

	services, _, _ := p.logs.LabelValues(ctx, "service", true)
	analysis.Params = ExtractParams(ctx, p.provider, p.cfg.Model, query, services)
	analysis.LogQuery = BuildLogQuery(analysis.Params, "", false)
	if analysis.Params.TimeRange == defaultWindowToken {
		analysis.Params.TimeRange = p.cfg.DefaultWindow
	}
	analysis.Window = ResolveWindow(analysis.Params.TimeRange, p.now())

	entries, logSource, err := p.logs.QueryRange(ctx, analysis.LogQuery, analysis.Window.StartNs, analysis.Window.EndNs, p.cfg.LogLimit, true)
	if err != nil {
		log.Warn("log fetch failed", "error", err)
	}
	analysis.Logs = entries
	analysis.LogSource = logSource

	wantTraces := hasIntent(analysis.Intents, types.IntentTraceQuery) || hasIntent(analysis.Intents, types.IntentLogQuery)
	if wantTraces {
		p.collectTraces(ctx, &analysis)
	}

	analysis.Summary = Summarize(ctx, p.provider, p.cfg.Model, summaryService(analysis), analysis.Logs, analysis.Traces)
	log.Info("analysis complete",
		"intents", len(analysis.Intents),
		"logs", len(analysis.Logs),
		"traces", len(analysis.Traces),
		"sampled", analysis.UsedSample())
	return analysis
}

func (p *Pipeline) collectTraces(ctx context.Context, analysis *Analysis) {
	if len(analysis.Logs) == 0 {
		// nothing to correlate against; search the service's recent traces
		p.serviceTraceSearch(ctx, analysis)
		return
	}
	analysis.TraceIDs = ExtractTraceIDs(analysis.Logs)

	var fetched []types.Trace
	source := types.SourceLive
	for _, id := range analysis.TraceIDs {
		if len(fetched) >= p.cfg.TraceLimit {
			break
		}
		trace, traceSource, err := p.traces.GetTrace(ctx, id)
		if err != nil {
			continue
		}
		if traceSource == types.SourceSample {
			source = types.SourceSample
		}
		fetched = append(fetched, trace)
	}

	if len(fetched) == 0 && len(analysis.TraceIDs) > 0 {
		p.serviceTraceSearch(ctx, analysis)
		return
	}
	if len(fetched) == 0 {
		// no ids in the logs at all: synthesize per-cluster traces
		analysis.Traces = CorrelateLogs(analysis.Logs, analysis.Params.Service)
		analysis.TraceSource = types.SourceSample
		return
	}
	analysis.Traces = fetched
	analysis.TraceSource = source
}

func (p *Pipeline) serviceTraceSearch(ctx context.Context, analysis *Analysis) {
	if analysis.Params.Service == "" {
		return
	}
	query := `{resource.service.name="` + analysis.Params.Service + `"}`
	traces, source, err := p.traces.Search(ctx, query, analysis.Window.StartSec, analysis.Window.EndSec, p.cfg.TraceLimit, true)
	if err != nil {
		return
	}
	analysis.Traces = traces
	analysis.TraceSource = source
}

func hasIntent(intents []types.Intent, want types.Intent) bool {
	for _, intent := range intents {
		if intent == want {
			return true
		}
	}
	return false
}

func summaryService(analysis Analysis) string {
	if analysis.Params.Service != "" {
		return analysis.Params.Service
	}
	return "all services"
}
