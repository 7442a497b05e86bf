package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestGetJSON_NoRetryOn4xx(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient("test", ts.URL)
	var out map[string]any
	err := client.GetJSON(context.Background(), "/x", nil, &out)
	if err == nil {
		t.Fatalf("expected error on 400")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != 400 {
		t.Fatalf("expected StatusError 400, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("client retried an HTTP error: %d calls", got)
	}
}

func TestGetJSON_RetriesTransportOnce(t *testing.T) {
	client := NewClient("test", "http://127.0.0.1:1")
	var out map[string]any
	err := client.GetJSON(context.Background(), "/x", nil, &out)
	if err == nil {
		t.Fatalf("expected transport error")
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Fatalf("transport failure must not surface as StatusError")
	}
}

func TestAuthInjection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "u" || pass != "p" {
			t.Errorf("basic auth not injected")
		}
		w.Write([]byte("{}"))
	}))
	defer ts.Close()

	client := NewClient("test", ts.URL, WithBasicAuth("u", "p"))
	var out map[string]any
	if err := client.GetJSON(context.Background(), "/x", nil, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}

	ts2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("bearer token not injected, got %q", got)
		}
		w.Write([]byte("{}"))
	}))
	defer ts2.Close()

	client2 := NewClient("test", ts2.URL, WithBearerToken("tok"))
	if err := client2.GetJSON(context.Background(), "/x", nil, &out); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
}
