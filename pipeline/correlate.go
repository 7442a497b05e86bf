package pipeline

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/opsmind/opsmind/types"
)

const (
	clusterGap       = time.Second
	maxSyntheticSpan = 5
)

var (
	servicePattern  = regexp.MustCompile(`(?i)\b(?:service|svc|app)[=:"\s]+([a-z0-9_-]+)`)
	endpointPattern = regexp.MustCompile(`(?i)\b(GET|POST|PUT|PATCH|DELETE)\s+(/[^\s"]*)`)
)

// CorrelateLogs synthesizes one trace per log cluster when no real traces
// were found. Logs are clustered on a 1-second gap; each cluster becomes a
// trace whose id is the md5 of the first line and whose spans chain parent
// to child, one per log line, capped at 5.
func CorrelateLogs(entries []types.LogEntry, fallbackService string) []types.Trace {
	if len(entries) == 0 {
		return nil
	}
	sorted := append([]types.LogEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UnixNano < sorted[j].UnixNano })

	var clusters [][]types.LogEntry
	current := []types.LogEntry{sorted[0]}
	for _, entry := range sorted[1:] {
		if entry.UnixNano-current[len(current)-1].UnixNano > clusterGap.Nanoseconds() {
			clusters = append(clusters, current)
			current = nil
		}
		current = append(current, entry)
	}
	clusters = append(clusters, current)

	traces := make([]types.Trace, 0, len(clusters))
	for _, cluster := range clusters {
		traces = append(traces, syntheticTrace(cluster, fallbackService))
	}
	return traces
}

func syntheticTrace(cluster []types.LogEntry, fallbackService string) types.Trace {
	sum := md5.Sum([]byte(cluster[0].Line))
	traceID := hex.EncodeToString(sum[:])

	spanCount := len(cluster)
	if spanCount > maxSyntheticSpan {
		spanCount = maxSyntheticSpan
	}

	spans := make([]types.Span, 0, spanCount)
	var parent string
	errorCount := 0
	for i := 0; i < spanCount; i++ {
		entry := cluster[i]
		service := extractService(entry, fallbackService)
		operation := extractEndpoint(entry.Line)
		status := "ok"
		if isErrorLine(entry) {
			status = "error"
			errorCount++
		}
		spanSum := md5.Sum([]byte(traceID + entry.Line))
		span := types.Span{
			SpanID:       hex.EncodeToString(spanSum[:8]),
			ParentSpanID: parent,
			Service:      service,
			Operation:    operation,
			StartTime:    entry.UnixNano / int64(time.Millisecond),
			DurationMs:   1,
			Status:       status,
		}
		spans = append(spans, span)
		parent = span.SpanID
	}

	first := spans[0]
	last := spans[len(spans)-1]
	duration := float64(last.StartTime-first.StartTime) + last.DurationMs
	return types.Trace{
		TraceID:       traceID,
		RootService:   first.Service,
		RootOperation: first.Operation,
		StartTime:     first.StartTime,
		DurationMs:    duration,
		SpanCount:     len(spans),
		ErrorCount:    errorCount,
		Spans:         spans,
		Synthetic:     true,
	}
}

func extractService(entry types.LogEntry, fallback string) string {
	if s := entry.Labels["service"]; s != "" {
		return s
	}
	if m := servicePattern.FindStringSubmatch(entry.Line); m != nil {
		return strings.ToLower(m[1])
	}
	if fallback != "" {
		return fallback
	}
	return "unknown"
}

func extractEndpoint(line string) string {
	if m := endpointPattern.FindStringSubmatch(line); m != nil {
		return m[1] + " " + m[2]
	}
	return "log event"
}

func isErrorLine(entry types.LogEntry) bool {
	if strings.EqualFold(entry.Labels["level"], "error") {
		return true
	}
	lower := strings.ToLower(entry.Line)
	return strings.Contains(lower, "error") || strings.Contains(lower, "exception") || strings.Contains(lower, "failed")
}
