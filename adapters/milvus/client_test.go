package milvus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestInsertDocument_ChunksAndEmbeds(t *testing.T) {
	var inserted []map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/vectordb/entities/insert":
			var body struct {
				CollectionName string           `json:"collectionName"`
				Data           []map[string]any `json:"data"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if body.CollectionName != "runbooks" {
				t.Errorf("unexpected collection %q", body.CollectionName)
			}
			inserted = body.Data
			json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{"insertCount": len(body.Data)}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL}, NewHashEmbedder(32))
	content := "Restart the pod first. Check the logs second. Escalate if both fail."
	count, err := client.InsertDocument(context.Background(), "runbooks", content, ChunkSentence, Chunk{
		Title:    "Incident Runbook",
		DocType:  "markdown",
		Keywords: []string{"incident", "restart"},
	})
	if err != nil {
		t.Fatalf("InsertDocument failed: %v", err)
	}
	if count == 0 || len(inserted) != count {
		t.Fatalf("insert count mismatch: returned %d, posted %d", count, len(inserted))
	}
	row := inserted[0]
	if row["doc_title"] != "Incident Runbook" || row["chunk_method"] != "sentence" {
		t.Fatalf("metadata missing on row: %#v", row)
	}
	if _, ok := row[VectorField]; !ok {
		t.Fatalf("dense vector missing on row")
	}
}

func TestHybridSearch_Reranks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/vectordb/entities/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 0,
			"data": []map[string]any{
				{"content": "unrelated document", "distance": 0.60},
				{"content": "database timeout runbook", "distance": 0.55, "keywords": "timeout,database"},
			},
		})
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL}, NewHashEmbedder(32))
	hits, err := client.HybridSearch(context.Background(), "runbooks", "database timeout", 5, 0)
	if err != nil {
		t.Fatalf("HybridSearch failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Content != "database timeout runbook" {
		t.Fatalf("lexical boost did not rerank: %+v", hits)
	}
}

func TestCreateCollection_ErrorCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 1100, "message": "collection exists"})
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL}, nil)
	if err := client.CreateCollection(context.Background(), "runbooks"); err == nil {
		t.Fatalf("expected error from non-zero code")
	}
}
