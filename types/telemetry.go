package types

// Normalized shapes for log and trace payloads. Every adapter flattens its
// backend's nested response into these before anything downstream sees it.

type LogEntry struct {
	Timestamp string            `json:"timestamp"`
	UnixNano  int64             `json:"unix_nano"`
	Line      string            `json:"line"`
	Labels    map[string]string `json:"labels,omitempty"`
}

type Span struct {
	SpanID       string            `json:"spanID"`
	ParentSpanID string            `json:"parentSpanID,omitempty"`
	Service      string            `json:"service"`
	Operation    string            `json:"operation"`
	StartTime    int64             `json:"startTime"` // unix milliseconds
	DurationMs   float64           `json:"durationMs"`
	Status       string            `json:"status"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

type Trace struct {
	TraceID       string  `json:"traceID"`
	RootService   string  `json:"rootService"`
	RootOperation string  `json:"rootOperation"`
	StartTime     int64   `json:"startTime"` // unix milliseconds
	DurationMs    float64 `json:"durationMs"`
	SpanCount     int     `json:"spanCount"`
	ErrorCount    int     `json:"errorCount"`
	Spans         []Span  `json:"spans,omitempty"`
	Synthetic     bool    `json:"isSynthetic,omitempty"`
}

// ServiceMetrics aggregates trace durations for one service over a window.
type ServiceMetrics struct {
	Service    string  `json:"service"`
	TraceCount int     `json:"traceCount"`
	ErrorRate  float64 `json:"errorRate"`
	P50Ms      float64 `json:"p50Ms"`
	P95Ms      float64 `json:"p95Ms"`
	P99Ms      float64 `json:"p99Ms"`
	AvgMs      float64 `json:"avgMs"`
	MaxMs      float64 `json:"maxMs"`
}
