package agents

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/opsmind/opsmind/adapters/k6"
	"github.com/opsmind/opsmind/types"
)

// K6Agent dispatches load tests to the containerized runner.
type K6Agent struct {
	runner *k6.Runner
}

func NewK6Agent(runner *k6.Runner) *K6Agent {
	return &K6Agent{runner: runner}
}

func (a *K6Agent) Name() string { return "k6-perf" }

func (a *K6Agent) Description() string {
	return "run load tests against a URL with configurable virtual users and duration"
}

var (
	urlPattern = regexp.MustCompile(`https?://[^\s"']+`)
	vusPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:vus?|virtual users?|users?)`)
)

func (a *K6Agent) Handle(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	target := contextString(req.Context, "url")
	if target == "" {
		target = urlPattern.FindString(req.Query)
	}
	if target == "" {
		return respond("I need a target URL to load test, e.g. \"load test http://api:8080/health with 20 vus for 1m\".", nil), nil
	}

	opts := k6.RunOptions{}
	if m := vusPattern.FindStringSubmatch(req.Query); m != nil {
		opts.VUs, _ = strconv.Atoi(m[1])
	}
	if raw := contextString(req.Context, "duration"); raw != "" {
		opts.Duration = raw
	} else if m := regexp.MustCompile(`(?i)for\s+(\d+[smh])`).FindStringSubmatch(req.Query); m != nil {
		opts.Duration = strings.ToLower(m[1])
	}
	if strings.Contains(strings.ToLower(req.Query), "ramp") {
		target := opts.VUs
		if target <= 0 {
			target = 20
		}
		opts.Stages = []k6.Stage{
			{Duration: "30s", Target: target},
			{Duration: "1m", Target: target},
			{Duration: "30s", Target: 0},
		}
		opts.VUs = 0
		opts.Duration = ""
	}

	result, source, err := a.runner.RunSimple(ctx, target, opts)
	if err != nil {
		return types.AgentResponse{}, fmt.Errorf("load test failed to start: %w", err)
	}

	content := fmt.Sprintf("Load test against %s finished.\n\n```\n%s\n```", target, result.OutputTail)
	if result.DashboardURL != "" {
		content += fmt.Sprintf("\nLive metrics: %s", result.DashboardURL)
	}
	return respond(content, map[string]any{
		"result": result,
		"source": string(source),
		"target": target,
	}), nil
}
