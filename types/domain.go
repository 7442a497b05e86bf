package types

import "time"

// Intent tags recognized by the orchestration layer. A query may carry
// several at once.
type Intent string

const (
	IntentLogQuery        Intent = "LOG_QUERY"
	IntentTraceQuery      Intent = "TRACE_QUERY"
	IntentStatusQuery     Intent = "STATUS_QUERY"
	IntentWeather         Intent = "WEATHER"
	IntentSearch          Intent = "SEARCH"
	IntentDeploy          Intent = "DEPLOY"
	IntentRenderDashboard Intent = "RENDER_DASHBOARD"
	IntentLoadTest        Intent = "LOAD_TEST"
	IntentRAGLookup       Intent = "RAG_LOOKUP"
	IntentGeneral         Intent = "GENERAL"
)

type TaskStatus string

const (
	StatusPlanning   TaskStatus = "planning"
	StatusExecuting  TaskStatus = "executing"
	StatusValidating TaskStatus = "validating"
	StatusResponding TaskStatus = "responding"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

type AgentRequest struct {
	Query   string         `json:"query"`
	Context map[string]any `json:"context,omitempty"`
}

type AgentResponse struct {
	Content   string         `json:"content"`
	Artifacts map[string]any `json:"artifacts,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type TaskStep struct {
	Description  string         `json:"description"`
	Agent        string         `json:"agent"`
	Request      AgentRequest   `json:"request"`
	Dependencies []int          `json:"dependencies,omitempty"`
	Status       TaskStatus     `json:"status"`
	StartTime    *time.Time     `json:"startTime,omitempty"`
	EndTime      *time.Time     `json:"endTime,omitempty"`
	Response     *AgentResponse `json:"response,omitempty"`
}

type ValidationResult struct {
	Completeness       int      `json:"completeness"`
	Accuracy           int      `json:"accuracy"`
	Quality            int      `json:"quality"`
	Consistency        int      `json:"consistency"`
	Feedback           string   `json:"feedback"`
	MissingInformation bool     `json:"missingInformation"`
	SuggestedAgents    []string `json:"suggestedAgents,omitempty"`
}

// Average returns the mean of the four dimension scores. It is reported in
// the message log but never gates routing.
func (v ValidationResult) Average() float64 {
	return float64(v.Completeness+v.Accuracy+v.Quality+v.Consistency) / 4
}

// ResultSource marks whether an adapter returned live backend data or a
// synthesized sample payload.
type ResultSource string

const (
	SourceLive   ResultSource = "live"
	SourceSample ResultSource = "sample"
)

type ToolResult struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
	Source  ResultSource `json:"source,omitempty"`
}

func OkResult(data any) ToolResult {
	return ToolResult{Success: true, Data: data, Source: SourceLive}
}

func SampleResult(data any) ToolResult {
	return ToolResult{Success: true, Data: data, Source: SourceSample}
}

func ErrResult(err error) ToolResult {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ToolResult{Success: false, Error: msg}
}
