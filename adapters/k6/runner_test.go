package k6

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/opsmind/opsmind/types"
)

func TestRunSimple_BuildsDockerInvocation(t *testing.T) {
	r := NewRunner(Config{RemoteWriteURL: "http://prom:9090/api/v1/write", DashboardURL: "http://grafana:3000/d/k6"})
	var gotName string
	var gotArgs []string
	r.exec = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return []byte("k6 output\nchecks 100%\n"), nil
	}

	result, source, err := r.RunSimple(context.Background(), "http://api:8080/health", RunOptions{VUs: 5, Duration: "10s"})
	if err != nil {
		t.Fatalf("RunSimple failed: %v", err)
	}
	if source != types.SourceLive {
		t.Fatalf("expected live source, got %s", source)
	}
	if gotName != "docker" {
		t.Fatalf("expected docker invocation, got %q", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, want := range []string{"--vus 5", "--duration 10s", "-o experimental-prometheus-rw", "K6_PROMETHEUS_RW_SERVER_URL=http://prom:9090/api/v1/write", "grafana/k6:latest"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in args: %s", want, joined)
		}
	}
	if !strings.Contains(result.OutputTail, "checks 100%") {
		t.Fatalf("output tail missing: %q", result.OutputTail)
	}
	if result.DashboardURL == "" {
		t.Fatalf("dashboard link missing")
	}
}

func TestRunScript_TailIsBounded(t *testing.T) {
	r := NewRunner(Config{})
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	r.exec = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(strings.Join(lines, "\n")), nil
	}

	result, _, err := r.RunScript(context.Background(), "export default function(){}", RunOptions{})
	if err != nil {
		t.Fatalf("RunScript failed: %v", err)
	}
	got := strings.Split(result.OutputTail, "\n")
	if len(got) != tailLines {
		t.Fatalf("expected %d tail lines, got %d", tailLines, len(got))
	}
	if got[len(got)-1] != "line 99" {
		t.Fatalf("tail must keep the last line, got %q", got[len(got)-1])
	}
}

func TestRunScript_RunnerUnavailable(t *testing.T) {
	r := NewRunner(Config{})
	r.exec = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, fmt.Errorf("docker: command not found")
	}
	_, source, err := r.RunScript(context.Background(), "export default function(){}", RunOptions{})
	if err == nil {
		t.Fatalf("expected error when runner is unavailable")
	}
	if source != types.SourceSample {
		t.Fatalf("expected sample source marker, got %s", source)
	}
}

func TestRunScript_ParsesChecksAndThresholds(t *testing.T) {
	summary := `
     ✓ status is 2xx
     ✗ body has order id

     checks.........................: 97.00% ✓ 342 ✗ 10
     http_req_duration..............: avg=120ms p(95)=210ms
   ✓ http_req_duration..............: p(95)<500
   ✗ http_req_failed................: rate<0.01
`
	r := NewRunner(Config{})
	r.exec = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(summary), nil
	}

	result, _, err := r.RunScript(context.Background(), "export default function(){}", RunOptions{})
	if err != nil {
		t.Fatalf("RunScript failed: %v", err)
	}
	if len(result.Checks) != 2 {
		t.Fatalf("checks = %+v, want 2 entries", result.Checks)
	}
	if result.Checks[0].Name != "status is 2xx" || !result.Checks[0].Passed {
		t.Fatalf("first check wrong: %+v", result.Checks[0])
	}
	if result.Checks[1].Name != "body has order id" || result.Checks[1].Passed {
		t.Fatalf("second check wrong: %+v", result.Checks[1])
	}
	if result.ChecksPassed != 342 || result.ChecksFailed != 10 {
		t.Fatalf("counts = %d/%d, want 342/10", result.ChecksPassed, result.ChecksFailed)
	}
	if passed, ok := result.Thresholds["http_req_duration"]; !ok || !passed {
		t.Fatalf("duration threshold = %v %v", passed, ok)
	}
	if passed, ok := result.Thresholds["http_req_failed"]; !ok || passed {
		t.Fatalf("failure-rate threshold = %v %v", passed, ok)
	}
}

func TestBuildScript_Stages(t *testing.T) {
	script := BuildScript("http://svc/", []Stage{{Duration: "30s", Target: 20}, {Duration: "1m", Target: 0}})
	if !strings.Contains(script, "{ duration: '30s', target: 20 }") {
		t.Fatalf("stage missing from script:\n%s", script)
	}
	if !strings.Contains(script, "http.get('http://svc/')") {
		t.Fatalf("target URL missing from script")
	}
}
