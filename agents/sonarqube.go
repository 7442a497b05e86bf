package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/opsmind/opsmind/adapters/sonarqube"
	"github.com/opsmind/opsmind/types"
)

// SonarQubeAgent answers code-quality questions against the quality
// service: projects, issues, quality gates, measures, and rules.
type SonarQubeAgent struct {
	client *sonarqube.Client
}

func NewSonarQubeAgent(client *sonarqube.Client) *SonarQubeAgent {
	return &SonarQubeAgent{client: client}
}

func (a *SonarQubeAgent) Name() string { return "sonarqube" }

func (a *SonarQubeAgent) Description() string {
	return "code quality: projects, issues, quality gates, metrics, rules"
}

var projectKeyPattern = regexp.MustCompile(`(?i)\b(?:project|for)\s+([a-z0-9][a-z0-9:._-]*)`)

func (a *SonarQubeAgent) Handle(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	lower := strings.ToLower(req.Query)
	projectKey := contextString(req.Context, "project")
	if projectKey == "" {
		if m := projectKeyPattern.FindStringSubmatch(req.Query); m != nil {
			projectKey = m[1]
		}
	}

	switch {
	case strings.Contains(lower, "quality gate") || strings.Contains(lower, "gate"):
		return a.qualityGate(ctx, projectKey)
	case strings.Contains(lower, "issue") || strings.Contains(lower, "bug") || strings.Contains(lower, "vulnerab"):
		return a.issues(ctx, projectKey, lower)
	case strings.Contains(lower, "measure") || strings.Contains(lower, "metric") || strings.Contains(lower, "coverage"):
		return a.measures(ctx, projectKey)
	case strings.Contains(lower, "rule"):
		return a.rules(ctx, req.Query)
	case strings.Contains(lower, "version") || strings.Contains(lower, "health"):
		return a.serverInfo(ctx)
	default:
		return a.projects(ctx)
	}
}

func (a *SonarQubeAgent) projects(ctx context.Context) (types.AgentResponse, error) {
	projects, err := a.client.SearchProjects(ctx, "")
	if err != nil {
		return types.AgentResponse{}, err
	}
	var names []string
	for _, p := range projects {
		names = append(names, fmt.Sprintf("%s (%s)", p.Name, p.Key))
	}
	return respond(fmt.Sprintf("%d projects: %s", len(names), strings.Join(names, ", ")),
		map[string]any{"projects": projects}), nil
}

func (a *SonarQubeAgent) issues(ctx context.Context, projectKey, lower string) (types.AgentResponse, error) {
	if projectKey == "" {
		return respond("Which project's issues? Name one, e.g. \"issues for my-project\".", nil), nil
	}
	severities := ""
	for _, sev := range []string{"blocker", "critical", "major", "minor"} {
		if strings.Contains(lower, sev) {
			severities = strings.ToUpper(sev)
			break
		}
	}
	issues, err := a.client.SearchIssues(ctx, projectKey, severities, 100)
	if err != nil {
		return types.AgentResponse{}, err
	}
	bySeverity := map[string]int{}
	for _, issue := range issues {
		bySeverity[issue.Severity]++
	}
	return respond(fmt.Sprintf("%s has %d issues (%v).", projectKey, len(issues), bySeverity),
		map[string]any{"issues": issues}), nil
}

func (a *SonarQubeAgent) qualityGate(ctx context.Context, projectKey string) (types.AgentResponse, error) {
	if projectKey == "" {
		return respond("Which project's quality gate? Name one, e.g. \"quality gate for my-project\".", nil), nil
	}
	gate, err := a.client.QualityGateStatus(ctx, projectKey)
	if err != nil {
		return types.AgentResponse{}, err
	}
	content := fmt.Sprintf("Quality gate for %s: %s.", projectKey, gate.Status)
	for _, cond := range gate.Conditions {
		if cond.Status == "ERROR" {
			content += fmt.Sprintf(" %s is %s (threshold %s).", cond.MetricKey, cond.ActualValue, cond.ErrorThreshold)
		}
	}
	return respond(content, map[string]any{"quality_gate": gate}), nil
}

func (a *SonarQubeAgent) measures(ctx context.Context, projectKey string) (types.AgentResponse, error) {
	if projectKey == "" {
		return respond("Which project's metrics? Name one, e.g. \"metrics for my-project\".", nil), nil
	}
	measures, err := a.client.Measures(ctx, projectKey, nil)
	if err != nil {
		return types.AgentResponse{}, err
	}
	var parts []string
	for _, m := range measures {
		parts = append(parts, fmt.Sprintf("%s=%s", m.Metric, m.Value))
	}
	return respond(fmt.Sprintf("Measures for %s: %s.", projectKey, strings.Join(parts, ", ")),
		map[string]any{"measures": measures}), nil
}

func (a *SonarQubeAgent) rules(ctx context.Context, query string) (types.AgentResponse, error) {
	rules, err := a.client.SearchRules(ctx, query, 10)
	if err != nil {
		return types.AgentResponse{}, err
	}
	var lines []string
	for _, r := range rules {
		lines = append(lines, fmt.Sprintf("%s [%s] %s", r.Key, r.Severity, r.Name))
	}
	return respond(fmt.Sprintf("Matching rules:\n%s", strings.Join(lines, "\n")),
		map[string]any{"rules": rules}), nil
}

func (a *SonarQubeAgent) serverInfo(ctx context.Context) (types.AgentResponse, error) {
	version, err := a.client.ServerVersion(ctx)
	if err != nil {
		return types.AgentResponse{}, err
	}
	health, healthErr := a.client.Health(ctx)
	if healthErr != nil {
		health = "unknown"
	}
	return respond(fmt.Sprintf("Quality service version %s, health %s.", version, health),
		map[string]any{"version": version, "health": health}), nil
}
