package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/types"
)

// Params is the structured query record the pipeline works from.
type Params struct {
	Service           string            `json:"service,omitempty"`
	TimeRange         string            `json:"timeRange,omitempty"`
	Level             string            `json:"level,omitempty"`
	AdditionalFilters map[string]string `json:"additionalFilters,omitempty"`
}

var (
	levelPattern  = regexp.MustCompile(`(?i)\b(error|warning|warn|info|debug)`)
	koreanLevels  = map[string]string{"오류": "error", "에러": "error", "경고": "warn", "정보": "info", "디버그": "debug"}
	filterPattern = regexp.MustCompile(`(\w+)=(\w+)`)
)

const paramsPromptFormat = `Extract log query parameters from the user query.
Known service names: %s
Respond with JSON only:
{"service": "...", "timeRange": "...", "level": "...", "additionalFilters": {}}
Use empty strings for unknown fields. timeRange is a relative token like "3h", "30m", "7d".`

// ExtractParams asks the model for a structured record and falls back to
// regex extraction when the output is not JSON-shaped.
func ExtractParams(ctx context.Context, provider llm.Provider, model, query string, knownServices []string) Params {
	if provider != nil {
		resp, err := provider.Generate(ctx, types.Request{
			Model:        model,
			SystemPrompt: fmt.Sprintf(paramsPromptFormat, strings.Join(knownServices, ", ")),
			Messages:     []types.Message{{Role: types.RoleUser, Content: query}},
			Temperature:  0,
		})
		if err == nil {
			var params Params
			if jsonErr := json.Unmarshal([]byte(StripCodeFence(resp.Message.Content)), &params); jsonErr == nil {
				return normalizeParams(params, query, knownServices)
			}
		}
	}
	return normalizeParams(regexParams(query, knownServices), query, knownServices)
}

// regexParams is the rule-based fallback extractor.
func regexParams(query string, knownServices []string) Params {
	params := Params{AdditionalFilters: map[string]string{}}
	lower := strings.ToLower(query)

	for _, service := range knownServices {
		if service != "" && strings.Contains(lower, strings.ToLower(service)) {
			params.Service = service
			break
		}
	}
	if m := levelPattern.FindStringSubmatch(query); m != nil {
		params.Level = strings.ToLower(m[1])
	} else {
		for kr, level := range koreanLevels {
			if strings.Contains(query, kr) {
				params.Level = level
				break
			}
		}
	}
	params.TimeRange = NormalizeWindow(query)
	for _, m := range filterPattern.FindAllStringSubmatch(query, -1) {
		key := strings.ToLower(m[1])
		if key == "service" || key == "level" {
			continue
		}
		params.AdditionalFilters[key] = m[2]
	}
	return params
}

func normalizeParams(params Params, query string, knownServices []string) Params {
	if params.AdditionalFilters == nil {
		params.AdditionalFilters = map[string]string{}
	}
	params.Level = strings.ToLower(strings.TrimSpace(params.Level))
	if params.Level == "warning" {
		params.Level = "warn"
	}
	params.TimeRange = NormalizeWindow(params.TimeRange)
	if params.Service == "" {
		fallback := regexParams(query, knownServices)
		params.Service = fallback.Service
	}
	if params.TimeRange == defaultWindowToken {
		params.TimeRange = NormalizeWindow(query)
	}
	return params
}
