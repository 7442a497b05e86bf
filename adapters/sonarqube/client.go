// Package sonarqube wraps the code-quality service's web API. Tokens are
// sent as the basic-auth username with an empty password, which is the
// service's convention.
package sonarqube

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/opsmind/opsmind/adapters"
	"github.com/opsmind/opsmind/types"
)

const backendName = "sonarqube"

type Config struct {
	BaseURL string
	Token   string
}

type Client struct {
	http *adapters.Client
}

func New(cfg Config) *Client {
	var opts []adapters.Option
	if cfg.Token != "" {
		opts = append(opts, adapters.WithBasicAuth(cfg.Token, ""))
	}
	return &Client{http: adapters.NewClient(backendName, cfg.BaseURL, opts...)}
}

type Project struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type Issue struct {
	Key       string `json:"key"`
	Rule      string `json:"rule"`
	Severity  string `json:"severity"`
	Component string `json:"component"`
	Line      int    `json:"line,omitempty"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Status    string `json:"status"`
}

type paging struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
	Total     int `json:"total"`
}

// SearchProjects lists projects, optionally filtered by a query string.
func (c *Client) SearchProjects(ctx context.Context, query string) ([]Project, error) {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	var resp struct {
		Components []Project `json:"components"`
	}
	if err := c.http.GetJSON(ctx, "/api/projects/search", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to search projects: %w", err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return resp.Components, nil
}

// SearchIssues pages through issues for a project. Severities is optional,
// e.g. "BLOCKER,CRITICAL". At most maxIssues are returned.
func (c *Client) SearchIssues(ctx context.Context, projectKey, severities string, maxIssues int) ([]Issue, error) {
	if maxIssues <= 0 {
		maxIssues = 100
	}
	var issues []Issue
	for page := 1; len(issues) < maxIssues; page++ {
		params := url.Values{}
		params.Set("componentKeys", projectKey)
		params.Set("ps", "100")
		params.Set("p", strconv.Itoa(page))
		if severities != "" {
			params.Set("severities", strings.ToUpper(severities))
		}
		var resp struct {
			Paging paging  `json:"paging"`
			Issues []Issue `json:"issues"`
		}
		if err := c.http.GetJSON(ctx, "/api/issues/search", params, &resp); err != nil {
			return nil, fmt.Errorf("failed to search issues: %w", err)
		}
		issues = append(issues, resp.Issues...)
		if page*resp.Paging.PageSize >= resp.Paging.Total || len(resp.Issues) == 0 {
			break
		}
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	if len(issues) > maxIssues {
		issues = issues[:maxIssues]
	}
	return issues, nil
}

type QualityGate struct {
	Status     string `json:"status"`
	Conditions []struct {
		Status         string `json:"status"`
		MetricKey      string `json:"metricKey"`
		ActualValue    string `json:"actualValue"`
		ErrorThreshold string `json:"errorThreshold"`
	} `json:"conditions"`
}

// QualityGateStatus fetches the project's quality gate result.
func (c *Client) QualityGateStatus(ctx context.Context, projectKey string) (QualityGate, error) {
	params := url.Values{}
	params.Set("projectKey", projectKey)
	var resp struct {
		ProjectStatus QualityGate `json:"projectStatus"`
	}
	if err := c.http.GetJSON(ctx, "/api/qualitygates/project_status", params, &resp); err != nil {
		return QualityGate{}, fmt.Errorf("failed to get quality gate: %w", err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return resp.ProjectStatus, nil
}

type Measure struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

// Measures fetches metric values for a component.
func (c *Client) Measures(ctx context.Context, componentKey string, metricKeys []string) ([]Measure, error) {
	if len(metricKeys) == 0 {
		metricKeys = []string{"bugs", "vulnerabilities", "code_smells", "coverage", "duplicated_lines_density"}
	}
	params := url.Values{}
	params.Set("component", componentKey)
	params.Set("metricKeys", strings.Join(metricKeys, ","))
	var resp struct {
		Component struct {
			Measures []Measure `json:"measures"`
		} `json:"component"`
	}
	if err := c.http.GetJSON(ctx, "/api/measures/component", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to get measures: %w", err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return resp.Component.Measures, nil
}

type Rule struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Language string `json:"lang"`
	HTMLDesc string `json:"htmlDesc,omitempty"`
}

// SearchRules searches rules by free text.
func (c *Client) SearchRules(ctx context.Context, query string, limit int) ([]Rule, error) {
	if limit <= 0 {
		limit = 20
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("ps", strconv.Itoa(limit))
	var resp struct {
		Rules []Rule `json:"rules"`
	}
	if err := c.http.GetJSON(ctx, "/api/rules/search", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to search rules: %w", err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return resp.Rules, nil
}

// ShowRule fetches one rule, including its description.
func (c *Client) ShowRule(ctx context.Context, key string) (Rule, error) {
	params := url.Values{}
	params.Set("key", key)
	var resp struct {
		Rule Rule `json:"rule"`
	}
	if err := c.http.GetJSON(ctx, "/api/rules/show", params, &resp); err != nil {
		return Rule{}, fmt.Errorf("failed to show rule %q: %w", key, err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return resp.Rule, nil
}

// ServerVersion returns the service version string.
func (c *Client) ServerVersion(ctx context.Context) (string, error) {
	raw, err := c.http.GetBytes(ctx, "/api/server/version", nil)
	if err != nil {
		return "", fmt.Errorf("failed to get server version: %w", err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return strings.TrimSpace(string(raw)), nil
}

// Health probes /api/system/health.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Health string `json:"health"`
	}
	if err := c.http.GetJSON(ctx, "/api/system/health", nil, &resp); err != nil {
		return "", fmt.Errorf("health check failed: %w", err)
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return resp.Health, nil
}
