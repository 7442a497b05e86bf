// Package k6 dispatches load-test scripts to a containerized runner over
// os/exec. Results carry the stdout tail plus the check and threshold
// verdicts parsed from the summary; metrics flow to the remote-write
// endpoint the runner is configured with.
package k6

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/opsmind/opsmind/adapters"
	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/types"
)

const (
	backendName  = "k6"
	defaultImage = "grafana/k6:latest"
	tailLines    = 40
)

type Config struct {
	Image          string
	RemoteWriteURL string
	DashboardURL   string
}

// execCommand is swapped in tests.
type execCommand func(ctx context.Context, name string, args ...string) ([]byte, error)

type Runner struct {
	cfg  Config
	exec execCommand
}

func NewRunner(cfg Config) *Runner {
	if cfg.Image == "" {
		cfg.Image = defaultImage
	}
	return &Runner{
		cfg: cfg,
		exec: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Stage is one ramp step of a staged scenario.
type Stage struct {
	Duration string `json:"duration"`
	Target   int    `json:"target"`
}

type RunOptions struct {
	VUs      int
	Duration string
	Stages   []Stage
	Env      map[string]string
}

// Check is one named check verdict from the end-of-run summary.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

type Result struct {
	OutputTail   string          `json:"output_tail"`
	Checks       []Check         `json:"checks,omitempty"`
	ChecksPassed int             `json:"checks_passed"`
	ChecksFailed int             `json:"checks_failed"`
	Thresholds   map[string]bool `json:"thresholds,omitempty"`
	DashboardURL string          `json:"dashboard_url,omitempty"`
	ExitError    string          `json:"exit_error,omitempty"`
}

// RunScript writes the script to a temp file and runs it inside the
// container. The returned result carries the last lines of runner output
// even when the run itself failed thresholds.
func (r *Runner) RunScript(ctx context.Context, script string, opts RunOptions) (Result, types.ResultSource, error) {
	dir, err := os.MkdirTemp("", "loadtest-*")
	if err != nil {
		return Result{}, types.SourceLive, fmt.Errorf("failed to create script dir: %w", err)
	}
	defer os.RemoveAll(dir)

	scriptPath := filepath.Join(dir, "script.js")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		return Result{}, types.SourceLive, fmt.Errorf("failed to write script: %w", err)
	}

	args := []string{"run", "--rm", "-v", scriptPath + ":/script.js:ro"}
	for _, key := range sortedKeys(opts.Env) {
		args = append(args, "-e", key+"="+opts.Env[key])
	}
	if r.cfg.RemoteWriteURL != "" {
		args = append(args, "-e", "K6_PROMETHEUS_RW_SERVER_URL="+r.cfg.RemoteWriteURL)
	}
	args = append(args, r.cfg.Image, "run")
	if r.cfg.RemoteWriteURL != "" {
		args = append(args, "-o", "experimental-prometheus-rw")
	}
	if opts.VUs > 0 {
		args = append(args, "--vus", fmt.Sprintf("%d", opts.VUs))
	}
	if opts.Duration != "" {
		args = append(args, "--duration", opts.Duration)
	}
	args = append(args, "/script.js")

	logging.GetLogger("k6").Info("starting load test", "vus", opts.VUs, "duration", opts.Duration)
	started := time.Now()
	output, runErr := r.exec(ctx, "docker", args...)
	logging.GetLogger("k6").Info("load test finished", "elapsed", time.Since(started).String(), "failed", runErr != nil)

	result := Result{
		OutputTail:   tail(string(output), tailLines),
		DashboardURL: r.cfg.DashboardURL,
	}
	parseSummary(string(output), &result)
	if runErr != nil {
		result.ExitError = runErr.Error()
		if len(output) == 0 {
			adapters.RecordCall(backendName, string(types.SourceSample))
			return result, types.SourceSample, fmt.Errorf("load test runner failed: %w", runErr)
		}
	}
	adapters.RecordCall(backendName, string(types.SourceLive))
	return result, types.SourceLive, nil
}

// RunSimple generates and runs a basic HTTP GET scenario against a URL.
func (r *Runner) RunSimple(ctx context.Context, targetURL string, opts RunOptions) (Result, types.ResultSource, error) {
	if opts.VUs <= 0 {
		opts.VUs = 10
	}
	if opts.Duration == "" && len(opts.Stages) == 0 {
		opts.Duration = "30s"
	}
	return r.RunScript(ctx, BuildScript(targetURL, opts.Stages), opts)
}

// BuildScript renders a GET scenario. With stages the ramp plan is embedded
// in options and --vus/--duration are left unset by the caller.
func BuildScript(targetURL string, stages []Stage) string {
	var b strings.Builder
	b.WriteString("import http from 'k6/http';\n")
	b.WriteString("import { check, sleep } from 'k6';\n\n")
	if len(stages) > 0 {
		b.WriteString("export const options = {\n  stages: [\n")
		for _, s := range stages {
			fmt.Fprintf(&b, "    { duration: '%s', target: %d },\n", s.Duration, s.Target)
		}
		b.WriteString("  ],\n};\n\n")
	}
	fmt.Fprintf(&b, "export default function () {\n  const res = http.get('%s');\n", targetURL)
	b.WriteString("  check(res, { 'status is 2xx': (r) => r.status >= 200 && r.status < 300 });\n  sleep(1);\n}\n")
	return b.String()
}

// parseSummary pulls check and threshold verdicts out of the runner's
// end-of-run summary. Check lines look like "✓ status is 2xx", threshold
// verdicts like "✓ http_req_duration...: p(95)<500", and the aggregate
// line like "checks....: 97.00% ✓ 342 ✗ 10".
func parseSummary(output string, result *Result) {
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(line, "checks") && strings.Contains(line, ":") {
			fields := strings.Fields(line)
			for i := 0; i < len(fields)-1; i++ {
				switch fields[i] {
				case "✓":
					fmt.Sscanf(fields[i+1], "%d", &result.ChecksPassed)
				case "✗":
					fmt.Sscanf(fields[i+1], "%d", &result.ChecksFailed)
				}
			}
			continue
		}

		passed := strings.HasPrefix(line, "✓ ")
		failed := strings.HasPrefix(line, "✗ ")
		if !passed && !failed {
			continue
		}
		rest := strings.TrimSpace(line[len("✓ "):])
		if dots := strings.Index(rest, "..."); dots > 0 && strings.Contains(rest, ":") {
			// metric line with a threshold verdict
			if result.Thresholds == nil {
				result.Thresholds = map[string]bool{}
			}
			result.Thresholds[rest[:dots]] = passed
			continue
		}
		result.Checks = append(result.Checks, Check{Name: rest, Passed: passed})
	}
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
