package pipeline

import (
	"regexp"

	"github.com/opsmind/opsmind/types"
)

// Regex ensemble for harvesting trace ids out of raw log lines. The
// standalone patterns anchor on non-hex neighbors instead of lookarounds,
// which RE2 does not support.
var traceIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)trace[_-]?id\s*[=:]\s*["']?([0-9a-f]{16,64})`),
	regexp.MustCompile(`(?i)["']trace[_-]?id["']\s*:\s*["']([0-9a-f]{16,64})["']`),
	regexp.MustCompile(`(?:^|[^0-9a-fA-F])([0-9a-f]{64})(?:[^0-9a-fA-F]|$)`),
	regexp.MustCompile(`(?:^|[^0-9a-fA-F])([0-9a-f]{32})(?:[^0-9a-fA-F]|$)`),
}

// ExtractTraceIDs runs the ensemble over every log line and returns the
// deduplicated ids in first-seen order. False positives are tolerated; a
// fetch for a non-trace hex string just 404s.
func ExtractTraceIDs(entries []types.LogEntry) []string {
	seen := map[string]bool{}
	var out []string
	for _, entry := range entries {
		for _, pattern := range traceIDPatterns {
			for _, m := range pattern.FindAllStringSubmatch(entry.Line, -1) {
				id := m[1]
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
		}
	}
	return out
}
