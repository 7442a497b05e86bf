// Package loki wraps the log store's query_range and label APIs and
// normalizes stream responses into flat log entries. Callers that opt in
// get synthesized sample logs when the backend is unreachable, so the
// pipeline keeps moving; callers must check the returned source.
package loki

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/opsmind/opsmind/adapters"
	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/types"
)

const backendName = "loki"

type Config struct {
	BaseURL      string
	AuthUser     string
	AuthPassword string
	DefaultLimit int
}

type Client struct {
	http         *adapters.Client
	defaultLimit int
}

func New(cfg Config) *Client {
	var opts []adapters.Option
	if cfg.AuthUser != "" || cfg.AuthPassword != "" {
		opts = append(opts, adapters.WithBasicAuth(cfg.AuthUser, cfg.AuthPassword))
	}
	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = 100
	}
	return &Client{
		http:         adapters.NewClient(backendName, cfg.BaseURL, opts...),
		defaultLimit: limit,
	}
}

type queryRangeResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// QueryRange runs a range query. Timestamps are nanoseconds since epoch.
// When allowSample is set, backend failure returns sample entries with
// SourceSample instead of an error.
func (c *Client) QueryRange(ctx context.Context, query string, startNs, endNs int64, limit int, allowSample bool) ([]types.LogEntry, types.ResultSource, error) {
	if limit <= 0 {
		limit = c.defaultLimit
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("start", strconv.FormatInt(startNs, 10))
	params.Set("end", strconv.FormatInt(endNs, 10))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("direction", "backward")

	var resp queryRangeResponse
	if err := c.http.GetJSON(ctx, "/loki/api/v1/query_range", params, &resp); err != nil {
		if !allowSample {
			return nil, types.SourceLive, err
		}
		logging.GetLogger("loki").Warn("query_range failed, serving sample logs", "error", err)
		adapters.RecordCall(backendName, string(types.SourceSample))
		return SampleLogs(query, limit), types.SourceSample, nil
	}
	adapters.RecordCall(backendName, string(types.SourceLive))

	entries := make([]types.LogEntry, 0, limit)
	for _, stream := range resp.Data.Result {
		for _, value := range stream.Values {
			ns, err := strconv.ParseInt(value[0], 10, 64)
			if err != nil {
				continue
			}
			entries = append(entries, types.LogEntry{
				Timestamp: time.Unix(0, ns).UTC().Format(time.RFC3339Nano),
				UnixNano:  ns,
				Line:      value[1],
				Labels:    stream.Stream,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UnixNano > entries[j].UnixNano })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, types.SourceLive, nil
}

type labelsResponse struct {
	Status string   `json:"status"`
	Data   []string `json:"data"`
}

// Labels lists the label names known to the log store.
func (c *Client) Labels(ctx context.Context, allowSample bool) ([]string, types.ResultSource, error) {
	var resp labelsResponse
	if err := c.http.GetJSON(ctx, "/loki/api/v1/labels", nil, &resp); err != nil {
		if !allowSample {
			return nil, types.SourceLive, err
		}
		adapters.RecordCall(backendName, string(types.SourceSample))
		return []string{"service", "level", "namespace", "pod"}, types.SourceSample, nil
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return resp.Data, types.SourceLive, nil
}

// LabelValues lists the values seen for one label.
func (c *Client) LabelValues(ctx context.Context, label string, allowSample bool) ([]string, types.ResultSource, error) {
	var resp labelsResponse
	path := "/loki/api/v1/label/" + url.PathEscape(label) + "/values"
	if err := c.http.GetJSON(ctx, path, nil, &resp); err != nil {
		if !allowSample {
			return nil, types.SourceLive, err
		}
		adapters.RecordCall(backendName, string(types.SourceSample))
		if label == "service" {
			return []string{"api-gateway", "order-service", "payment-service"}, types.SourceSample, nil
		}
		return []string{"error", "warn", "info"}, types.SourceSample, nil
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return resp.Data, types.SourceLive, nil
}

// SampleLogs synthesizes a small, deterministic log set for offline demos.
func SampleLogs(query string, limit int) []types.LogEntry {
	if limit <= 0 || limit > 5 {
		limit = 5
	}
	now := time.Now().UTC()
	templates := []struct {
		level string
		line  string
	}{
		{"error", "request failed: upstream timeout after 5s"},
		{"error", "database connection refused: dial tcp 10.0.0.12:5432"},
		{"warn", "retrying request, attempt 2 of 3"},
		{"info", "request completed in 182ms"},
		{"info", "health check passed"},
	}
	entries := make([]types.LogEntry, 0, limit)
	for i := 0; i < limit; i++ {
		tpl := templates[i%len(templates)]
		ts := now.Add(-time.Duration(i) * time.Minute)
		entries = append(entries, types.LogEntry{
			Timestamp: ts.Format(time.RFC3339Nano),
			UnixNano:  ts.UnixNano(),
			Line:      fmt.Sprintf("[sample] %s", tpl.line),
			Labels:    map[string]string{"level": tpl.level, "query": query},
		})
	}
	return entries
}
