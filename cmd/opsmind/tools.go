package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsmind/opsmind/adapters/argocd"
	"github.com/opsmind/opsmind/adapters/grafana"
	"github.com/opsmind/opsmind/adapters/k6"
	"github.com/opsmind/opsmind/adapters/loki"
	"github.com/opsmind/opsmind/adapters/milvus"
	"github.com/opsmind/opsmind/adapters/sonarqube"
	"github.com/opsmind/opsmind/adapters/tempo"
	"github.com/opsmind/opsmind/adapters/weather"
	"github.com/opsmind/opsmind/pipeline"
	"github.com/opsmind/opsmind/tools"
	"github.com/opsmind/opsmind/types"
)

type backendClients struct {
	loki      *loki.Client
	tempo     *tempo.Client
	grafana   *grafana.Client
	argocd    *argocd.Client
	sonarqube *sonarqube.Client
	milvus    *milvus.Client
	weather   *weather.Client
	k6        *k6.Runner
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func intProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}

func boolProp(description string) map[string]any {
	return map[string]any{"type": "boolean", "description": description}
}

// sourced converts a (data, source, err) adapter result into a ToolResult
// that carries provenance.
func sourced(data any, source types.ResultSource, err error) (types.ToolResult, error) {
	if err != nil {
		return types.ErrResult(err), nil
	}
	if source == types.SourceSample {
		return types.SampleResult(data), nil
	}
	return types.OkResult(data), nil
}

func plain(data any, err error) (types.ToolResult, error) {
	if err != nil {
		return types.ErrResult(err), nil
	}
	return types.OkResult(data), nil
}

// registerTools builds the adapter tool surface shared by the specialists
// and the MCP export.
func registerTools(reg *tools.Registry, clients backendClients, defaultCollection, defaultWindow string) error {
	if defaultWindow == "" {
		defaultWindow = "1h"
	}
	windowBounds := func(window string) (startNs, endNs, startSec, endSec int64) {
		if window == "" {
			window = defaultWindow
		}
		w := pipeline.ResolveWindow(window, time.Now().UTC())
		return w.StartNs, w.EndNs, w.StartSec, w.EndSec
	}

	reg.MustRegister(tools.NewFuncTool("query_logs", "Run a LogQL query over the log store",
		objectSchema(map[string]any{
			"query":        stringProp("LogQL query, e.g. {service=\"payment\", level=\"error\"}"),
			"window":       stringProp("time window token such as 1h, 30m, 7d (default 1h)"),
			"limit":        intProp("maximum log lines (default 100)"),
			"allow_sample": boolProp("serve synthetic sample logs when the backend is unreachable (default false)"),
		}, "query"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Query       string `json:"query"`
				Window      string `json:"window"`
				Limit       int    `json:"limit"`
				AllowSample bool   `json:"allow_sample"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			startNs, endNs, _, _ := windowBounds(in.Window)
			entries, source, err := clients.loki.QueryRange(ctx, in.Query, startNs, endNs, in.Limit, in.AllowSample)
			return sourced(entries, source, err)
		}))

	reg.MustRegister(tools.NewFuncTool("list_label_values", "List values of a log label",
		objectSchema(map[string]any{
			"label":        stringProp("label name, e.g. service"),
			"allow_sample": boolProp("serve sample values when the backend is unreachable (default false)"),
		}, "label"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Label       string `json:"label"`
				AllowSample bool   `json:"allow_sample"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			values, source, err := clients.loki.LabelValues(ctx, in.Label, in.AllowSample)
			return sourced(values, source, err)
		}))

	reg.MustRegister(tools.NewFuncTool("get_trace", "Fetch a distributed trace by id",
		objectSchema(map[string]any{
			"trace_id": stringProp("hex trace id"),
		}, "trace_id"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				TraceID string `json:"trace_id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			trace, source, err := clients.tempo.GetTrace(ctx, in.TraceID)
			return sourced(trace, source, err)
		}))

	reg.MustRegister(tools.NewFuncTool("search_traces", "Search traces with a TraceQL query",
		objectSchema(map[string]any{
			"query":        stringProp("TraceQL query, e.g. {resource.service.name=\"payment\"}"),
			"window":       stringProp("time window token (default 1h)"),
			"limit":        intProp("maximum traces (default 20)"),
			"allow_sample": boolProp("serve synthetic sample traces when the backend is unreachable (default false)"),
		}, "query"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Query       string `json:"query"`
				Window      string `json:"window"`
				Limit       int    `json:"limit"`
				AllowSample bool   `json:"allow_sample"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			_, _, startSec, endSec := windowBounds(in.Window)
			traces, source, err := clients.tempo.Search(ctx, in.Query, startSec, endSec, in.Limit, in.AllowSample)
			return sourced(traces, source, err)
		}))

	reg.MustRegister(tools.NewFuncTool("service_metrics", "Latency and error metrics for one service derived from traces",
		objectSchema(map[string]any{
			"service":      stringProp("service name"),
			"window":       stringProp("time window token (default 1h)"),
			"allow_sample": boolProp("aggregate over sample traces when the backend is unreachable (default false)"),
		}, "service"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Service     string `json:"service"`
				Window      string `json:"window"`
				AllowSample bool   `json:"allow_sample"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			_, _, startSec, endSec := windowBounds(in.Window)
			metrics, source, err := clients.tempo.ServiceMetrics(ctx, in.Service, startSec, endSec, 0, in.AllowSample)
			return sourced(metrics, source, err)
		}))

	reg.MustRegister(tools.NewFuncTool("list_dashboards", "List dashboards",
		objectSchema(map[string]any{}),
		func(ctx context.Context, _ json.RawMessage) (types.ToolResult, error) {
			dashboards, source, err := clients.grafana.ListDashboards(ctx)
			return sourced(dashboards, source, err)
		}))

	reg.MustRegister(tools.NewFuncTool("render_dashboard", "Render a dashboard to a base64 PNG",
		objectSchema(map[string]any{
			"name":   stringProp("dashboard title or uid"),
			"window": stringProp("time window token (default 1h)"),
		}, "name"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Name   string `json:"name"`
				Window string `json:"window"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			window := in.Window
			if window == "" {
				window = defaultWindow
			}
			image, err := clients.grafana.RenderDashboard(ctx, in.Name, pipeline.NormalizeWindow(window))
			return plain(map[string]string{"image_base64": image}, err)
		}))

	reg.MustRegister(tools.NewFuncTool("argocd_list_applications", "List GitOps applications and their sync state",
		objectSchema(map[string]any{}),
		func(ctx context.Context, _ json.RawMessage) (types.ToolResult, error) {
			return plain(clients.argocd.ListApplications(ctx))
		}))

	reg.MustRegister(tools.NewFuncTool("argocd_sync", "Trigger a sync of one application",
		objectSchema(map[string]any{
			"name": stringProp("application name"),
		}, "name"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			if err := clients.argocd.Sync(ctx, in.Name); err != nil {
				return types.ErrResult(err), nil
			}
			return types.OkResult(map[string]string{"synced": in.Name}), nil
		}))

	reg.MustRegister(tools.NewFuncTool("argocd_history", "Deployment history of one application, newest first",
		objectSchema(map[string]any{
			"name": stringProp("application name"),
		}, "name"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			return plain(clients.argocd.History(ctx, in.Name))
		}))

	reg.MustRegister(tools.NewFuncTool("argocd_rollback", "Roll an application back to a previous revision",
		objectSchema(map[string]any{
			"name":       stringProp("application name"),
			"history_id": intProp("history entry id; omit for the previous revision"),
		}, "name"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Name      string `json:"name"`
				HistoryID *int64 `json:"history_id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			historyID := int64(-1)
			if in.HistoryID != nil {
				historyID = *in.HistoryID
			}
			return plain(clients.argocd.Rollback(ctx, in.Name, historyID))
		}))

	reg.MustRegister(tools.NewFuncTool("sonar_issues", "Search code issues for a project",
		objectSchema(map[string]any{
			"project":    stringProp("project key"),
			"severities": stringProp("comma-separated severities, e.g. CRITICAL,BLOCKER"),
			"limit":      intProp("maximum issues (default 100)"),
		}, "project"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Project    string `json:"project"`
				Severities string `json:"severities"`
				Limit      int    `json:"limit"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			if in.Limit <= 0 {
				in.Limit = 100
			}
			return plain(clients.sonarqube.SearchIssues(ctx, in.Project, in.Severities, in.Limit))
		}))

	reg.MustRegister(tools.NewFuncTool("sonar_quality_gate", "Quality gate status of a project",
		objectSchema(map[string]any{
			"project": stringProp("project key"),
		}, "project"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Project string `json:"project"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			return plain(clients.sonarqube.QualityGateStatus(ctx, in.Project))
		}))

	reg.MustRegister(tools.NewFuncTool("sonar_measures", "Key metrics (bugs, coverage, duplication) for a project",
		objectSchema(map[string]any{
			"project": stringProp("project key"),
		}, "project"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Project string `json:"project"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			return plain(clients.sonarqube.Measures(ctx, in.Project, nil))
		}))

	reg.MustRegister(tools.NewFuncTool("rag_search", "Hybrid semantic search over the knowledge base",
		objectSchema(map[string]any{
			"query":      stringProp("search query"),
			"collection": stringProp("collection name (default " + defaultCollection + ")"),
			"limit":      intProp("maximum hits (default 5)"),
		}, "query"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Query      string `json:"query"`
				Collection string `json:"collection"`
				Limit      int    `json:"limit"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			if in.Collection == "" {
				in.Collection = defaultCollection
			}
			if in.Limit <= 0 {
				in.Limit = 5
			}
			return plain(clients.milvus.HybridSearch(ctx, in.Collection, in.Query, in.Limit, 0))
		}))

	reg.MustRegister(tools.NewFuncTool("rag_ingest", "Chunk and store a document in the knowledge base",
		objectSchema(map[string]any{
			"content":      stringProp("document text"),
			"collection":   stringProp("collection name (default " + defaultCollection + ")"),
			"chunk_method": stringProp("sentence, paragraph, token, or semantic (default sentence)"),
			"title":        stringProp("document title"),
		}, "content"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Content     string `json:"content"`
				Collection  string `json:"collection"`
				ChunkMethod string `json:"chunk_method"`
				Title       string `json:"title"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			if in.Collection == "" {
				in.Collection = defaultCollection
			}
			method := milvus.ChunkMethod(in.ChunkMethod)
			if method == "" {
				method = milvus.ChunkSentence
			}
			count, err := clients.milvus.InsertDocument(ctx, in.Collection, in.Content, method, milvus.Chunk{Title: in.Title})
			return plain(map[string]int{"chunks": count}, err)
		}))

	reg.MustRegister(tools.NewFuncTool("k6_run", "Run a containerized load test against a URL",
		objectSchema(map[string]any{
			"url":      stringProp("target URL"),
			"vus":      intProp("virtual users (default 10)"),
			"duration": stringProp("test duration, e.g. 30s"),
		}, "url"),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				URL      string `json:"url"`
				VUs      int    `json:"vus"`
				Duration string `json:"duration"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			result, source, err := clients.k6.RunSimple(ctx, in.URL, k6.RunOptions{VUs: in.VUs, Duration: in.Duration})
			return sourced(result, source, err)
		}))

	reg.MustRegister(tools.NewFuncTool("get_weather", "Current weather for a location",
		objectSchema(map[string]any{
			"location": stringProp("city name (default Seoul)"),
		}),
		func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var in struct {
				Location string `json:"location"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return types.ErrResult(err), nil
			}
			current, source, err := clients.weather.CurrentWeather(ctx, in.Location)
			return sourced(current, source, err)
		}))

	bundles := []struct {
		name        string
		description string
		tools       []string
	}{
		{"observability-analysis", "log and trace analysis", []string{"query_logs", "list_label_values", "get_trace", "search_traces"}},
		{"grafana-analysis", "dashboard-driven service analysis", []string{"list_dashboards", "service_metrics"}},
		{"grafana-renderer", "dashboard rendering", []string{"list_dashboards", "render_dashboard"}},
		{"loki-tempo", "raw log and trace access", []string{"query_logs", "list_label_values", "get_trace"}},
		{"argocd-ops", "GitOps deployment operations", []string{"argocd_list_applications", "argocd_sync", "argocd_history", "argocd_rollback"}},
		{"sonarqube", "code quality inspection", []string{"sonar_issues", "sonar_quality_gate", "sonar_measures"}},
		{"milvus-rag", "knowledge base search and ingest", []string{"rag_search", "rag_ingest"}},
		{"k6-perf", "load testing", []string{"k6_run"}},
		{"weather", "weather lookups", []string{"get_weather"}},
	}
	for _, b := range bundles {
		if err := reg.RegisterBundle(b.name, b.description, b.tools); err != nil {
			return fmt.Errorf("failed to register bundle %q: %w", b.name, err)
		}
	}
	return nil
}
