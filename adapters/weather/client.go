// Package weather wraps the weather service: geocoding with a capital-city
// fallback, current conditions, and the short-range forecast.
package weather

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opsmind/opsmind/adapters"
	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/types"
)

const backendName = "weather"

// Geocode failures fall back to Seoul.
const (
	fallbackCity = "Seoul"
	fallbackLat  = 37.5665
	fallbackLon  = 126.9780
)

type Config struct {
	BaseURL string
	APIKey  string
}

type Client struct {
	http   *adapters.Client
	apiKey string
}

func New(cfg Config) *Client {
	return &Client{
		http:   adapters.NewClient(backendName, cfg.BaseURL),
		apiKey: cfg.APIKey,
	}
}

type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Geocode resolves a free-text location to coordinates. On failure it
// returns the fallback capital instead of an error.
func (c *Client) Geocode(ctx context.Context, location string) Location {
	params := url.Values{}
	params.Set("q", strings.TrimSpace(location))
	params.Set("limit", "1")
	params.Set("appid", c.apiKey)

	var results []Location
	if err := c.http.GetJSON(ctx, "/geo/1.0/direct", params, &results); err != nil || len(results) == 0 {
		logging.GetLogger("weather").Warn("geocode failed, using fallback city",
			"location", location, "fallback", fallbackCity)
		return Location{Name: fallbackCity, Lat: fallbackLat, Lon: fallbackLon}
	}
	if results[0].Name == "" {
		results[0].Name = location
	}
	return results[0]
}

type Current struct {
	Location    string  `json:"location"`
	TempC       float64 `json:"temp_c"`
	FeelsLikeC  float64 `json:"feels_like_c"`
	Humidity    int     `json:"humidity"`
	Condition   string  `json:"condition"`
	WindSpeedMS float64 `json:"wind_speed_ms"`
	ObservedAt  string  `json:"observed_at"`
}

type currentResponse struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Dt   int64  `json:"dt"`
	Name string `json:"name"`
}

// CurrentWeather fetches conditions for a free-text location.
func (c *Client) CurrentWeather(ctx context.Context, location string) (Current, types.ResultSource, error) {
	loc := c.Geocode(ctx, location)
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(loc.Lat, 'f', 4, 64))
	params.Set("lon", strconv.FormatFloat(loc.Lon, 'f', 4, 64))
	params.Set("units", "metric")
	params.Set("appid", c.apiKey)

	var resp currentResponse
	if err := c.http.GetJSON(ctx, "/data/2.5/weather", params, &resp); err != nil {
		adapters.RecordCall(backendName, string(types.SourceSample))
		return sampleCurrent(loc.Name), types.SourceSample, nil
	}
	adapters.RecordCall(backendName, string(types.SourceLive))

	condition := ""
	if len(resp.Weather) > 0 {
		condition = resp.Weather[0].Description
	}
	name := resp.Name
	if name == "" {
		name = loc.Name
	}
	return Current{
		Location:    name,
		TempC:       resp.Main.Temp,
		FeelsLikeC:  resp.Main.FeelsLike,
		Humidity:    resp.Main.Humidity,
		Condition:   condition,
		WindSpeedMS: resp.Wind.Speed,
		ObservedAt:  time.Unix(resp.Dt, 0).UTC().Format(time.RFC3339),
	}, types.SourceLive, nil
}

type ForecastEntry struct {
	Time      string  `json:"time"`
	TempC     float64 `json:"temp_c"`
	Condition string  `json:"condition"`
}

type forecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"list"`
}

// Forecast fetches up to count upcoming forecast points for a location.
func (c *Client) Forecast(ctx context.Context, location string, count int) ([]ForecastEntry, types.ResultSource, error) {
	if count <= 0 {
		count = 8
	}
	loc := c.Geocode(ctx, location)
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(loc.Lat, 'f', 4, 64))
	params.Set("lon", strconv.FormatFloat(loc.Lon, 'f', 4, 64))
	params.Set("units", "metric")
	params.Set("cnt", strconv.Itoa(count))
	params.Set("appid", c.apiKey)

	var resp forecastResponse
	if err := c.http.GetJSON(ctx, "/data/2.5/forecast", params, &resp); err != nil {
		adapters.RecordCall(backendName, string(types.SourceSample))
		return sampleForecast(count), types.SourceSample, nil
	}
	adapters.RecordCall(backendName, string(types.SourceLive))

	entries := make([]ForecastEntry, 0, len(resp.List))
	for _, item := range resp.List {
		condition := ""
		if len(item.Weather) > 0 {
			condition = item.Weather[0].Description
		}
		entries = append(entries, ForecastEntry{
			Time:      time.Unix(item.Dt, 0).UTC().Format(time.RFC3339),
			TempC:     item.Main.Temp,
			Condition: condition,
		})
	}
	return entries, types.SourceLive, nil
}

// Format renders current conditions as a short sentence.
func Format(w Current) string {
	return fmt.Sprintf("%s: %.1f°C (feels like %.1f°C), %s, humidity %d%%, wind %.1f m/s",
		w.Location, w.TempC, w.FeelsLikeC, w.Condition, w.Humidity, w.WindSpeedMS)
}

func sampleCurrent(location string) Current {
	return Current{
		Location:    location,
		TempC:       21.0,
		FeelsLikeC:  21.0,
		Humidity:    55,
		Condition:   "clear sky",
		WindSpeedMS: 2.1,
		ObservedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

func sampleForecast(count int) []ForecastEntry {
	if count > 8 {
		count = 8
	}
	now := time.Now().UTC()
	out := make([]ForecastEntry, 0, count)
	conditions := []string{"clear sky", "few clouds", "scattered clouds", "light rain"}
	for i := 0; i < count; i++ {
		out = append(out, ForecastEntry{
			Time:      now.Add(time.Duration(i*3) * time.Hour).Format(time.RFC3339),
			TempC:     20 + float64(i%4),
			Condition: conditions[i%len(conditions)],
		})
	}
	return out
}
