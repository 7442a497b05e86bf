package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opsmind/opsmind/types"
)

func TestQueryRange_ParsesStreams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/query_range" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("query"); got != `{service="api", level="error"}` {
			t.Fatalf("unexpected query %q", got)
		}
		resp := map[string]any{
			"status": "success",
			"data": map[string]any{
				"resultType": "streams",
				"result": []map[string]any{
					{
						"stream": map[string]string{"service": "api", "level": "error"},
						"values": [][2]string{
							{"1700000001000000000", "second line"},
							{"1700000000000000000", "first line"},
						},
					},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL})
	entries, source, err := client.QueryRange(context.Background(), `{service="api", level="error"}`, 1699999000000000000, 1700000100000000000, 10, false)
	if err != nil {
		t.Fatalf("QueryRange failed: %v", err)
	}
	if source != types.SourceLive {
		t.Fatalf("expected live source, got %s", source)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Line != "second line" {
		t.Fatalf("expected newest first, got %q", entries[0].Line)
	}
	if entries[0].Labels["service"] != "api" {
		t.Fatalf("labels not carried: %#v", entries[0].Labels)
	}
}

func TestQueryRange_SampleFallbackIsOptIn(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1"})

	entries, source, err := client.QueryRange(context.Background(), `{service="api"}`, 0, 1, 3, true)
	if err != nil {
		t.Fatalf("expected degraded result, got error: %v", err)
	}
	if source != types.SourceSample {
		t.Fatalf("expected sample source, got %s", source)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 sample entries, got %d", len(entries))
	}

	if _, _, err := client.QueryRange(context.Background(), `{service="api"}`, 0, 1, 3, false); err == nil {
		t.Fatal("expected error when samples are not allowed")
	}
}

func TestLabelValues(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/label/service/values" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": []string{"api", "worker"}})
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL})
	values, source, err := client.LabelValues(context.Background(), "service", false)
	if err != nil {
		t.Fatalf("LabelValues failed: %v", err)
	}
	if source != types.SourceLive || len(values) != 2 || values[0] != "api" {
		t.Fatalf("unexpected values: %v (%s)", values, source)
	}
}

func TestLabelValues_ErrorsWithoutSampleOptIn(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1"})
	if _, _, err := client.LabelValues(context.Background(), "service", false); err == nil {
		t.Fatal("expected error when samples are not allowed")
	}
	values, source, err := client.LabelValues(context.Background(), "service", true)
	if err != nil || source != types.SourceSample || len(values) == 0 {
		t.Fatalf("opt-in fallback: values=%v source=%s err=%v", values, source, err)
	}
}
