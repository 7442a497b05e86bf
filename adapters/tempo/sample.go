package tempo

import (
	"fmt"
	"time"

	"github.com/opsmind/opsmind/types"
)

var sampleServices = []string{"api-gateway", "order-service", "payment-service", "inventory-service"}

var sampleOperations = []string{"GET /api/orders", "POST /api/payments", "SELECT orders", "publish event"}

// SampleTrace derives a deterministic trace from the id's hex digits so the
// same lookup always yields the same shape. Between 3 and 7 spans, chained
// parent to child.
func SampleTrace(traceID string) types.Trace {
	seed := hexSeed(traceID)
	spanCount := 3 + int(seed%5)
	now := time.Now().UTC().Add(-5 * time.Minute)
	startMs := now.UnixMilli()

	spans := make([]types.Span, 0, spanCount)
	var parent string
	offset := int64(0)
	errorCount := 0
	for i := 0; i < spanCount; i++ {
		local := seed + uint64(i)*31
		duration := float64(10 + local%490)
		status := "ok"
		if i == spanCount-1 && seed%3 == 0 {
			status = "error"
			errorCount++
		}
		span := types.Span{
			SpanID:       fmt.Sprintf("%016x", local),
			ParentSpanID: parent,
			Service:      sampleServices[int(local)%len(sampleServices)],
			Operation:    sampleOperations[int(local)%len(sampleOperations)],
			StartTime:    startMs + offset,
			DurationMs:   duration,
			Status:       status,
		}
		spans = append(spans, span)
		parent = span.SpanID
		offset += int64(duration / 2)
	}

	last := spans[len(spans)-1]
	total := float64(last.StartTime-startMs) + last.DurationMs
	return types.Trace{
		TraceID:       traceID,
		RootService:   spans[0].Service,
		RootOperation: spans[0].Operation,
		StartTime:     startMs,
		DurationMs:    total,
		SpanCount:     spanCount,
		ErrorCount:    errorCount,
		Spans:         spans,
		Synthetic:     true,
	}
}

func sampleSearchResults(query string, limit int) []types.Trace {
	if limit <= 0 || limit > 3 {
		limit = 3
	}
	out := make([]types.Trace, 0, limit)
	for i := 0; i < limit; i++ {
		id := fmt.Sprintf("%032x", hexSeed(query)+uint64(i))
		trace := SampleTrace(id)
		trace.Spans = nil
		out = append(out, trace)
	}
	return out
}

func hexSeed(s string) uint64 {
	var seed uint64
	for _, r := range s {
		var v uint64
		switch {
		case r >= '0' && r <= '9':
			v = uint64(r - '0')
		case r >= 'a' && r <= 'f':
			v = uint64(r-'a') + 10
		case r >= 'A' && r <= 'F':
			v = uint64(r-'A') + 10
		default:
			v = uint64(r) % 16
		}
		seed = seed*16 + v
		seed %= 1_000_000_007
	}
	return seed
}
