package argocd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func appFixture(name, syncStatus string) map[string]any {
	return map[string]any{
		"metadata": map[string]any{"name": name, "namespace": "default"},
		"spec":     map[string]any{"project": "default"},
		"status": map[string]any{
			"sync":   map[string]any{"status": syncStatus, "revision": "abc"},
			"health": map[string]any{"status": "Healthy"},
			"history": []map[string]any{
				{"id": 1, "revision": "rev-1", "deployedAt": "2026-08-30T10:00:00Z"},
				{"id": 2, "revision": "rev-2", "deployedAt": "2026-08-31T10:00:00Z"},
			},
		},
	}
}

func TestListOutOfSync(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("missing bearer token, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				appFixture("frontend", "Synced"),
				appFixture("backend", "OutOfSync"),
			},
		})
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL, Token: "token-1"})
	apps, err := client.ListOutOfSync(context.Background())
	if err != nil {
		t.Fatalf("ListOutOfSync failed: %v", err)
	}
	if len(apps) != 1 || apps[0].Metadata.Name != "backend" {
		t.Fatalf("unexpected apps: %+v", apps)
	}
}

func TestRollback_DefaultsToPreviousAndSyncs(t *testing.T) {
	var rollbackID float64
	synced := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/applications/backend":
			json.NewEncoder(w).Encode(appFixture("backend", "Synced"))
		case "/api/v1/applications/backend/rollback":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			rollbackID = body["id"].(float64)
			w.Write([]byte("{}"))
		case "/api/v1/applications/backend/sync":
			synced = true
			w.Write([]byte("{}"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL})
	target, err := client.Rollback(context.Background(), "backend", -1)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	// history is newest first, so the previous deployment is id 1
	if target.ID != 1 || rollbackID != 1 {
		t.Fatalf("rolled back to wrong entry: target=%+v posted=%v", target, rollbackID)
	}
	if !synced {
		t.Fatalf("rollback did not trigger a sync")
	}
}

func TestRollback_UnknownHistoryID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(appFixture("backend", "Synced"))
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL})
	if _, err := client.Rollback(context.Background(), "backend", 99); err == nil {
		t.Fatalf("expected unknown history id error")
	}
}
