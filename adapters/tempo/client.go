// Package tempo wraps the trace store. It flattens OTLP-shaped trace
// payloads into the normalized Span/Trace types and runs
// trace-query-language searches. Search callers that opt in get
// deterministic sample results when the backend is down.
package tempo

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opsmind/opsmind/adapters"
	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/types"
)

const backendName = "tempo"

type Config struct {
	BaseURL      string
	AuthUser     string
	AuthPassword string
	DefaultLimit int
}

type Client struct {
	http         *adapters.Client
	defaultLimit int
}

func New(cfg Config) *Client {
	var opts []adapters.Option
	if cfg.AuthUser != "" || cfg.AuthPassword != "" {
		opts = append(opts, adapters.WithBasicAuth(cfg.AuthUser, cfg.AuthPassword))
	}
	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = 20
	}
	return &Client{
		http:         adapters.NewClient(backendName, cfg.BaseURL),
		defaultLimit: limit,
	}
}

// OTLP response shapes, trimmed to what we read.

type otlpAttribute struct {
	Key   string `json:"key"`
	Value struct {
		StringValue string `json:"stringValue,omitempty"`
		IntValue    string `json:"intValue,omitempty"`
		BoolValue   *bool  `json:"boolValue,omitempty"`
	} `json:"value"`
}

type otlpSpan struct {
	TraceID           string          `json:"traceId"`
	SpanID            string          `json:"spanId"`
	ParentSpanID      string          `json:"parentSpanId,omitempty"`
	Name              string          `json:"name"`
	StartTimeUnixNano string          `json:"startTimeUnixNano"`
	EndTimeUnixNano   string          `json:"endTimeUnixNano"`
	Attributes        []otlpAttribute `json:"attributes"`
	Status            struct {
		Code string `json:"code,omitempty"`
	} `json:"status"`
	Events []struct {
		Name string `json:"name"`
	} `json:"events,omitempty"`
}

type otlpTraceResponse struct {
	Batches []struct {
		Resource struct {
			Attributes []otlpAttribute `json:"attributes"`
		} `json:"resource"`
		ScopeSpans []struct {
			Spans []otlpSpan `json:"spans"`
		} `json:"scopeSpans"`
	} `json:"batches"`
}

// GetTrace fetches one trace by id and flattens it. Ids that cannot be
// fetched return an error; candidate ids extracted from log text are often
// false positives, so callers skip them rather than synthesize a trace.
func (c *Client) GetTrace(ctx context.Context, traceID string) (types.Trace, types.ResultSource, error) {
	var resp otlpTraceResponse
	if err := c.http.GetJSON(ctx, "/api/traces/"+url.PathEscape(traceID), nil, &resp); err != nil {
		logging.GetLogger("tempo").Warn("trace fetch failed", "trace_id", traceID, "error", err)
		return types.Trace{}, types.SourceLive, err
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	trace := flattenTrace(traceID, resp)
	if trace.SpanCount == 0 {
		return types.Trace{}, types.SourceLive, fmt.Errorf("trace %q not found", traceID)
	}
	return trace, types.SourceLive, nil
}

func flattenTrace(traceID string, resp otlpTraceResponse) types.Trace {
	var spans []types.Span
	for _, batch := range resp.Batches {
		service := attrString(batch.Resource.Attributes, "service.name")
		if service == "" {
			service = "unknown"
		}
		for _, scope := range batch.ScopeSpans {
			for _, s := range scope.Spans {
				startNs := parseNano(s.StartTimeUnixNano)
				endNs := parseNano(s.EndTimeUnixNano)
				status := "ok"
				if s.Status.Code == "STATUS_CODE_ERROR" {
					status = "error"
				}
				for _, ev := range s.Events {
					if ev.Name == "exception" {
						status = "error"
					}
				}
				attrs := map[string]string{}
				for _, a := range s.Attributes {
					attrs[a.Key] = attrValue(a)
				}
				spans = append(spans, types.Span{
					SpanID:       s.SpanID,
					ParentSpanID: s.ParentSpanID,
					Service:      service,
					Operation:    s.Name,
					StartTime:    startNs / int64(time.Millisecond),
					DurationMs:   float64(endNs-startNs) / float64(time.Millisecond),
					Status:       status,
					Attributes:   attrs,
				})
			}
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].StartTime < spans[j].StartTime })

	trace := types.Trace{TraceID: traceID, SpanCount: len(spans), Spans: spans}
	if len(spans) == 0 {
		return trace
	}
	root := spans[0]
	for _, s := range spans {
		if s.ParentSpanID == "" {
			root = s
			break
		}
	}
	trace.RootService = root.Service
	trace.RootOperation = root.Operation
	trace.StartTime = spans[0].StartTime
	var end float64
	for _, s := range spans {
		if s.Status == "error" {
			trace.ErrorCount++
		}
		if e := float64(s.StartTime) + s.DurationMs; e > end {
			end = e
		}
	}
	trace.DurationMs = end - float64(trace.StartTime)
	return trace
}

type searchResponse struct {
	Traces []struct {
		TraceID           string `json:"traceID"`
		RootServiceName   string `json:"rootServiceName"`
		RootTraceName     string `json:"rootTraceName"`
		StartTimeUnixNano string `json:"startTimeUnixNano"`
		DurationMs        int    `json:"durationMs"`
	} `json:"traces"`
}

// Search runs a trace-query-language expression. Times are seconds since
// epoch. When allowSample is set, backend failure returns deterministic
// sample summaries with SourceSample instead of an error.
func (c *Client) Search(ctx context.Context, query string, startSec, endSec int64, limit int, allowSample bool) ([]types.Trace, types.ResultSource, error) {
	if limit <= 0 {
		limit = c.defaultLimit
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("start", strconv.FormatInt(startSec, 10))
	params.Set("end", strconv.FormatInt(endSec, 10))
	params.Set("limit", strconv.Itoa(limit))

	var resp searchResponse
	if err := c.http.GetJSON(ctx, "/api/search", params, &resp); err != nil {
		if !allowSample {
			return nil, types.SourceLive, err
		}
		adapters.RecordCall(backendName, string(types.SourceSample))
		return sampleSearchResults(query, limit), types.SourceSample, nil
	}
	adapters.RecordCall(backendName, string(types.SourceLive))

	traces := make([]types.Trace, 0, len(resp.Traces))
	for _, t := range resp.Traces {
		traces = append(traces, types.Trace{
			TraceID:       t.TraceID,
			RootService:   t.RootServiceName,
			RootOperation: t.RootTraceName,
			StartTime:     parseNano(t.StartTimeUnixNano) / int64(time.Millisecond),
			DurationMs:    float64(t.DurationMs),
			SpanCount:     1,
		})
	}
	return traces, types.SourceLive, nil
}

// ServiceMetrics searches a service's recent traces and aggregates duration
// percentiles and error rate.
func (c *Client) ServiceMetrics(ctx context.Context, service string, startSec, endSec int64, limit int, allowSample bool) (types.ServiceMetrics, types.ResultSource, error) {
	query := BuildQuery(service, nil, "")
	summaries, source, err := c.Search(ctx, query, startSec, endSec, limit, allowSample)
	if err != nil {
		return types.ServiceMetrics{Service: service}, source, err
	}
	metrics := types.ServiceMetrics{Service: service, TraceCount: len(summaries)}
	if len(summaries) == 0 {
		return metrics, source, nil
	}
	durations := make([]float64, 0, len(summaries))
	errored := 0
	for _, t := range summaries {
		durations = append(durations, t.DurationMs)
		if t.ErrorCount > 0 {
			errored++
		}
	}
	sort.Float64s(durations)
	var sum float64
	for _, d := range durations {
		sum += d
	}
	metrics.ErrorRate = float64(errored) / float64(len(summaries))
	metrics.AvgMs = sum / float64(len(durations))
	metrics.MaxMs = durations[len(durations)-1]
	metrics.P50Ms = percentile(durations, 0.50)
	metrics.P95Ms = percentile(durations, 0.95)
	metrics.P99Ms = percentile(durations, 0.99)
	return metrics, source, nil
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// BuildQuery assembles a trace-query-language expression from a service,
// attribute matchers, and an optional minimum duration like "100ms".
func BuildQuery(service string, attrs map[string]string, minDuration string) string {
	var parts []string
	if service != "" {
		parts = append(parts, fmt.Sprintf(`resource.service.name=%q`, service))
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`.%s=%q`, k, attrs[k]))
	}
	if minDuration != "" {
		parts = append(parts, "duration>"+minDuration)
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, " && ") + "}"
}

func attrString(attrs []otlpAttribute, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return attrValue(a)
		}
	}
	return ""
}

func attrValue(a otlpAttribute) string {
	switch {
	case a.Value.StringValue != "":
		return a.Value.StringValue
	case a.Value.IntValue != "":
		return a.Value.IntValue
	case a.Value.BoolValue != nil:
		return strconv.FormatBool(*a.Value.BoolValue)
	}
	return ""
}

func parseNano(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
