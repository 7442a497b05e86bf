package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opsmind/opsmind/types"
)

func TestCurrentWeather_GeocodesThenFetches(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/geo/1.0/direct":
			if got := r.URL.Query().Get("q"); got != "Busan" {
				t.Errorf("unexpected geocode query %q", got)
			}
			json.NewEncoder(w).Encode([]map[string]any{{"name": "Busan", "lat": 35.1796, "lon": 129.0756}})
		case "/data/2.5/weather":
			if got := r.URL.Query().Get("lat"); got != "35.1796" {
				t.Errorf("unexpected lat %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"weather": []map[string]any{{"description": "light rain"}},
				"main":    map[string]any{"temp": 24.3, "feels_like": 25.0, "humidity": 78},
				"wind":    map[string]any{"speed": 4.2},
				"dt":      1756600000,
				"name":    "Busan",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL, APIKey: "key"})
	current, source, err := client.CurrentWeather(context.Background(), "Busan")
	if err != nil {
		t.Fatalf("CurrentWeather failed: %v", err)
	}
	if source != types.SourceLive {
		t.Fatalf("expected live source, got %s", source)
	}
	if current.TempC != 24.3 || current.Condition != "light rain" {
		t.Fatalf("unexpected conditions: %+v", current)
	}
	formatted := Format(current)
	if !strings.Contains(formatted, "24.3") || !strings.Contains(formatted, "light rain") {
		t.Fatalf("formatted output incomplete: %q", formatted)
	}
}

func TestGeocode_FallsBackToCapital(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer ts.Close()

	client := New(Config{BaseURL: ts.URL, APIKey: "key"})
	loc := client.Geocode(context.Background(), "nowhere-at-all")
	if loc.Name != "Seoul" || loc.Lat != 37.5665 || loc.Lon != 126.9780 {
		t.Fatalf("expected Seoul fallback, got %+v", loc)
	}
}

func TestCurrentWeather_SampleFallback(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:1", APIKey: "key"})
	current, source, err := client.CurrentWeather(context.Background(), "Seoul")
	if err != nil {
		t.Fatalf("expected degraded result, got error: %v", err)
	}
	if source != types.SourceSample || current.Condition == "" {
		t.Fatalf("unexpected fallback: %+v (%s)", current, source)
	}
}
