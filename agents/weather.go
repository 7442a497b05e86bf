package agents

import (
	"context"
	"strings"

	"github.com/opsmind/opsmind/adapters/weather"
	"github.com/opsmind/opsmind/llm"
	"github.com/opsmind/opsmind/types"
)

// WeatherAgent answers weather questions: location extraction via the
// model, then current conditions and a short forecast.
type WeatherAgent struct {
	client   *weather.Client
	provider llm.Provider
	model    string
}

func NewWeatherAgent(client *weather.Client, provider llm.Provider, model string) *WeatherAgent {
	return &WeatherAgent{client: client, provider: provider, model: model}
}

func (a *WeatherAgent) Name() string { return "weather" }

func (a *WeatherAgent) Description() string {
	return "current weather and short-range forecast for a location"
}

func (a *WeatherAgent) Handle(ctx context.Context, req types.AgentRequest) (types.AgentResponse, error) {
	location := a.extractLocation(ctx, req.Query)
	current, source, err := a.client.CurrentWeather(ctx, location)
	if err != nil {
		return types.AgentResponse{}, err
	}

	content := weather.Format(current)
	if source == types.SourceSample {
		content += " (sample data: weather service unreachable)"
	}
	artifacts := map[string]any{
		"weather": current,
		"source":  string(source),
	}
	if forecast, _, err := a.client.Forecast(ctx, location, 4); err == nil && len(forecast) > 0 {
		artifacts["forecast"] = forecast
	}
	return respond(content, artifacts), nil
}

func (a *WeatherAgent) extractLocation(ctx context.Context, query string) string {
	if a.provider != nil {
		resp, err := a.provider.Generate(ctx, types.Request{
			Model:        a.model,
			SystemPrompt: "Extract the location name from the user query. Respond with the location only, nothing else. If no location is present respond with: Seoul",
			Messages:     []types.Message{{Role: types.RoleUser, Content: query}},
			Temperature:  0,
		})
		if err == nil {
			location := strings.TrimSpace(resp.Message.Content)
			if location != "" && len(location) < 60 {
				return location
			}
		}
	}
	return query
}
