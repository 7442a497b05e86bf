package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/types"
)

type fakeProvider struct {
	reply string
	err   error
	calls int
}

func (f *fakeProvider) Name() string                   { return "fake" }
func (f *fakeProvider) Capabilities() llm.Capabilities { return llm.Capabilities{} }
func (f *fakeProvider) Generate(ctx context.Context, req types.Request) (types.Response, error) {
	f.calls++
	if f.err != nil {
		return types.Response{}, f.err
	}
	return types.Response{Message: types.Message{Role: types.RoleAssistant, Content: f.reply}}, nil
}

type fakeLogStore struct {
	entries []types.LogEntry
	source  types.ResultSource
	queries []string
}

func (f *fakeLogStore) QueryRange(ctx context.Context, query string, startNs, endNs int64, limit int, allowSample bool) ([]types.LogEntry, types.ResultSource, error) {
	f.queries = append(f.queries, query)
	return f.entries, f.source, nil
}

func (f *fakeLogStore) LabelValues(ctx context.Context, label string, allowSample bool) ([]string, types.ResultSource, error) {
	return []string{"order-service", "api-gateway"}, types.SourceLive, nil
}

type fakeTraceStore struct {
	traces      map[string]types.Trace
	searchHits  []types.Trace
	gets        []string
	searches    []string
	traceSource types.ResultSource
}

func (f *fakeTraceStore) GetTrace(ctx context.Context, traceID string) (types.Trace, types.ResultSource, error) {
	f.gets = append(f.gets, traceID)
	if t, ok := f.traces[traceID]; ok {
		return t, f.traceSource, nil
	}
	return types.Trace{}, f.traceSource, fmt.Errorf("trace %s not found", traceID)
}

func (f *fakeTraceStore) Search(ctx context.Context, query string, startSec, endSec int64, limit int, allowSample bool) ([]types.Trace, types.ResultSource, error) {
	f.searches = append(f.searches, query)
	return f.searchHits, f.traceSource, nil
}

func logEntry(offset time.Duration, line, level string) types.LogEntry {
	ts := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC).Add(offset)
	return types.LogEntry{
		Timestamp: ts.Format(time.RFC3339Nano),
		UnixNano:  ts.UnixNano(),
		Line:      line,
		Labels:    map[string]string{"service": "order-service", "level": level},
	}
}

func TestNormalizeWindow(t *testing.T) {
	cases := map[string]string{
		"show errors for the last 3h": "3h",
		"지난 30분 동안의 로그":               "30m",
		"2 시간 전부터":                    "2h",
		"last 7 days":                 "7d",
		"now-6h":                      "6h",
		"2주":                          "14d",
		"no time here":                "1h",
		"15m":                         "15m",
	}
	for input, want := range cases {
		if got := NormalizeWindow(input); got != want {
			t.Errorf("NormalizeWindow(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestResolveWindow_SpanArithmetic(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	threeH := ResolveWindow("3h", now)
	thirtyM := ResolveWindow("30m", now)
	diff := thirtyM.StartNs - threeH.StartNs
	if diff != (2*time.Hour + 30*time.Minute).Nanoseconds() {
		t.Fatalf("3h and 30m windows differ by %v ns, want 2h30m", diff)
	}
	if threeH.EndSec != now.Unix() || threeH.StartSec != now.Add(-3*time.Hour).Unix() {
		t.Fatalf("second representation wrong: %+v", threeH)
	}
}

func TestDetectIntents_RulesAndModelUnion(t *testing.T) {
	provider := &fakeProvider{reply: `{"intents": ["TRACE_QUERY", "WEATHER"]}`}
	intents := DetectIntents(context.Background(), provider, "m", "show error logs for order-service")
	want := []types.Intent{types.IntentLogQuery, types.IntentTraceQuery, types.IntentWeather}
	if len(intents) != len(want) {
		t.Fatalf("got %v want %v", intents, want)
	}
	for i := range want {
		if intents[i] != want[i] {
			t.Fatalf("got %v want %v", intents, want)
		}
	}
}

func TestDetectIntents_ModelDownFallsBackToRules(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("model down")}
	intents := DetectIntents(context.Background(), provider, "m", "트레이스 보여줘")
	if len(intents) != 1 || intents[0] != types.IntentTraceQuery {
		t.Fatalf("unexpected intents: %v", intents)
	}

	general := DetectIntents(context.Background(), provider, "m", "hello there")
	if len(general) != 1 || general[0] != types.IntentGeneral {
		t.Fatalf("expected GENERAL fallback, got %v", general)
	}
}

func TestExtractParams_RegexFallback(t *testing.T) {
	provider := &fakeProvider{reply: "sorry, I cannot do that"}
	params := ExtractParams(context.Background(), provider, "m",
		"show errors in order-service over the last 1h", []string{"order-service", "api-gateway"})
	if params.Service != "order-service" {
		t.Fatalf("service not extracted: %+v", params)
	}
	if params.Level != "error" {
		t.Fatalf("level not extracted: %+v", params)
	}
	if params.TimeRange != "1h" {
		t.Fatalf("time range not extracted: %+v", params)
	}
}

func TestExtractParams_KoreanLevelAndFilters(t *testing.T) {
	params := regexParams("api-gateway 에러 로그 env=prod", []string{"api-gateway"})
	if params.Level != "error" {
		t.Fatalf("korean level not mapped: %+v", params)
	}
	if params.AdditionalFilters["env"] != "prod" {
		t.Fatalf("filter not extracted: %+v", params)
	}
}

func TestExtractParams_MixedCaseWarningNormalized(t *testing.T) {
	provider := &fakeProvider{reply: `{"service": "order-service", "timeRange": "3h", "level": "Warning"}`}
	params := ExtractParams(context.Background(), provider, "m",
		"order-service warnings", []string{"order-service"})
	if params.Level != "warn" {
		t.Fatalf("level = %q, want %q", params.Level, "warn")
	}
}

func TestBuildLogQuery(t *testing.T) {
	query := BuildLogQuery(Params{Service: "order-service", Level: "error"}, "", false)
	if query != `{service="order-service", level="error"}` {
		t.Fatalf("unexpected query %q", query)
	}

	escaped := BuildLogQuery(Params{Service: `or"der`}, "time\"out", false)
	if escaped != `{service="or\"der"} |= "time\"out"` {
		t.Fatalf("quotes not escaped: %q", escaped)
	}

	regex := BuildLogQuery(Params{Service: "api"}, "timeout|refused", true)
	if regex != `{service="api"} |~ "timeout|refused"` {
		t.Fatalf("regex filter wrong: %q", regex)
	}
}

func TestExtractTraceIDs_EnsembleAndIdempotence(t *testing.T) {
	entries := []types.LogEntry{
		{Line: `request failed trace_id=abcdef0123456789 status=500`},
		{Line: `{"trace-id": "0123456789abcdef0123456789abcdef"}`},
		{Line: `standalone deadbeefdeadbeefdeadbeefdeadbeef token`},
		{Line: `dup trace_id=abcdef0123456789 again`},
		{Line: `not hex: zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz`},
	}
	first := ExtractTraceIDs(entries)
	if len(first) != 3 {
		t.Fatalf("expected 3 unique ids, got %v", first)
	}
	second := ExtractTraceIDs(entries)
	if len(second) != len(first) {
		t.Fatalf("extractor not idempotent: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("extractor order unstable: %v vs %v", first, second)
		}
	}
}

func TestCorrelateLogs_ClustersOnOneSecondGap(t *testing.T) {
	entries := []types.LogEntry{
		logEntry(0, "GET /orders failed with error", "error"),
		logEntry(500*time.Millisecond, "retrying", "warn"),
		logEntry(5*time.Second, "POST /payments ok", "info"),
	}
	traces := CorrelateLogs(entries, "order-service")
	if len(traces) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(traces))
	}
	first := traces[0]
	if !first.Synthetic || len(first.TraceID) != 32 {
		t.Fatalf("synthetic trace malformed: %+v", first)
	}
	if first.SpanCount != 2 || first.Spans[1].ParentSpanID != first.Spans[0].SpanID {
		t.Fatalf("spans not chained: %+v", first.Spans)
	}
	if first.RootOperation != "GET /orders" {
		t.Fatalf("endpoint not extracted: %q", first.RootOperation)
	}
	if first.ErrorCount != 1 {
		t.Fatalf("error count wrong: %d", first.ErrorCount)
	}
}

func TestPipeline_Run_LogAndTraceCorrelation(t *testing.T) {
	logs := &fakeLogStore{
		entries: []types.LogEntry{
			logEntry(0, "boom trace_id=abcdefabcdefabcd", "error"),
		},
		source: types.SourceLive,
	}
	traces := &fakeTraceStore{
		traces: map[string]types.Trace{
			"abcdefabcdefabcd": {TraceID: "abcdefabcdefabcd", RootService: "order-service", SpanCount: 3},
		},
		traceSource: types.SourceLive,
	}
	provider := &fakeProvider{err: fmt.Errorf("model down")}

	p := New(provider, logs, traces, Config{Model: "m"})
	analysis := p.Run(context.Background(), "show errors in order-service over the last 1h and the traces behind them")

	if len(logs.queries) != 1 || logs.queries[0] != `{service="order-service", level="error"}` {
		t.Fatalf("unexpected log query: %v", logs.queries)
	}
	if len(analysis.TraceIDs) != 1 || len(analysis.Traces) != 1 {
		t.Fatalf("trace correlation failed: ids=%v traces=%d", analysis.TraceIDs, len(analysis.Traces))
	}
	if analysis.UsedSample() {
		t.Fatalf("live data should not be flagged as sample")
	}
	if analysis.Summary == "" {
		t.Fatalf("summary must never be empty")
	}
}

func TestPipeline_Run_EmptyLogsSearchesServiceTraces(t *testing.T) {
	logs := &fakeLogStore{source: types.SourceLive}
	traces := &fakeTraceStore{
		searchHits:  []types.Trace{{TraceID: "t1", RootService: "order-service"}},
		traceSource: types.SourceLive,
	}
	p := New(&fakeProvider{err: fmt.Errorf("down")}, logs, traces, Config{})
	analysis := p.Run(context.Background(), "order-service error logs")

	if len(traces.searches) != 1 {
		t.Fatalf("expected service trace search, got %v", traces.searches)
	}
	if len(analysis.Traces) != 1 || analysis.Traces[0].TraceID != "t1" {
		t.Fatalf("search results not used: %+v", analysis.Traces)
	}
}

func TestPipeline_Run_ConfiguredDefaultWindow(t *testing.T) {
	logs := &fakeLogStore{source: types.SourceLive}
	traces := &fakeTraceStore{traceSource: types.SourceLive}
	p := New(&fakeProvider{err: fmt.Errorf("down")}, logs, traces, Config{DefaultWindow: "6h"})

	analysis := p.Run(context.Background(), "order-service error logs")
	if analysis.Window.Token != "6h" {
		t.Fatalf("window = %q, want configured default 6h", analysis.Window.Token)
	}

	hinted := p.Run(context.Background(), "order-service error logs from the last 30m")
	if hinted.Window.Token != "30m" {
		t.Fatalf("explicit window overridden: %q", hinted.Window.Token)
	}
}

func TestBuildEvidence_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("주문 서비스 오류 발생 ", 30)
	evidence := buildEvidence("order-service", []types.LogEntry{{Timestamp: "t", Line: long}}, nil)
	if !utf8.ValidString(evidence) {
		t.Fatalf("evidence contains a split rune: %q", evidence)
	}
	if strings.Contains(evidence, long) {
		t.Fatalf("long line was not truncated")
	}
}

func TestPipeline_Run_SyntheticCorrelationWhenNoIDs(t *testing.T) {
	logs := &fakeLogStore{
		entries: []types.LogEntry{logEntry(0, "plain error line with no ids", "error")},
		source:  types.SourceSample,
	}
	traces := &fakeTraceStore{traceSource: types.SourceLive}
	p := New(&fakeProvider{err: fmt.Errorf("down")}, logs, traces, Config{})
	analysis := p.Run(context.Background(), "order-service error logs")

	if len(analysis.Traces) != 1 || !analysis.Traces[0].Synthetic {
		t.Fatalf("expected synthetic correlation: %+v", analysis.Traces)
	}
	if !analysis.UsedSample() {
		t.Fatalf("sample substitution must be signaled")
	}
}
