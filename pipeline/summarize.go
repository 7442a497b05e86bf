package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/types"
)

const (
	maxLogSamples    = 5
	maxLogSampleLen  = 150
	maxTraceSummary  = 3
	summarizerPrompt = `You are an observability analyst. Given log and trace evidence for a service,
write a short paragraph covering: error patterns, performance, anomalies, and overall health.
Be specific and concise.`
)

// Summarize asks the model for an analysis paragraph over the collected
// evidence. Model failures degrade to a numeric one-liner.
func Summarize(ctx context.Context, provider llm.Provider, model, service string, logs []types.LogEntry, traces []types.Trace) string {
	fallback := numericSummary(service, logs, traces)
	if provider == nil {
		return fallback
	}
	resp, err := provider.Generate(ctx, types.Request{
		Model:        model,
		SystemPrompt: summarizerPrompt,
		Messages:     []types.Message{{Role: types.RoleUser, Content: buildEvidence(service, logs, traces)}},
	})
	if err != nil || strings.TrimSpace(resp.Message.Content) == "" {
		return fallback
	}
	return strings.TrimSpace(resp.Message.Content)
}

func buildEvidence(service string, logs []types.LogEntry, traces []types.Trace) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\nLog count: %d\nTrace count: %d\n", service, len(logs), len(traces))

	b.WriteString("\nLog samples:\n")
	for i, entry := range logs {
		if i >= maxLogSamples {
			break
		}
		line := truncateLine(entry.Line, maxLogSampleLen)
		fmt.Fprintf(&b, "- [%s] %s\n", entry.Timestamp, line)
	}

	if len(traces) > 0 {
		b.WriteString("\nTrace summaries:\n")
		for i, trace := range traces {
			if i >= maxTraceSummary {
				break
			}
			fmt.Fprintf(&b, "- %s root=%s op=%q duration=%.1fms spans=%d errors=%d\n",
				trace.TraceID, trace.RootService, trace.RootOperation, trace.DurationMs, trace.SpanCount, trace.ErrorCount)
		}
	}
	return b.String()
}

// truncateLine caps a log line at max bytes without splitting a rune.
func truncateLine(line string, max int) string {
	if len(line) <= max {
		return line
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut]
}

func numericSummary(service string, logs []types.LogEntry, traces []types.Trace) string {
	errors := 0
	for _, entry := range logs {
		if isErrorLine(entry) {
			errors++
		}
	}
	return fmt.Sprintf("%s: %d logs (%d error-like), %d traces collected over the requested window.",
		service, len(logs), errors, len(traces))
}
