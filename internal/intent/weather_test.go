package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hlab/insightchat/config"
)

func TestWeatherCanHandle(t *testing.T) {
	p := NewWeatherProvider(config.ToolConfig{APIURL: "http://weather.local"})

	cases := []struct {
		query string
		want  bool
	}{
		{"What's the temperature?", true},
		{"do I need an umbrella today?", true},
		{"is it what's it like outside right now", true},
		{"will it snow tomorrow?", true},
		{"summarize the report", false},
		{"what's on my calendar?", false},
	}
	for _, c := range cases {
		if got := p.CanHandle(c.query); got != c.want {
			t.Fatalf("CanHandle(%q) = %v, want %v", c.query, got, c.want)
		}
	}

	if NewWeatherProvider(config.ToolConfig{}).CanHandle("weather") {
		t.Fatal("provider without api_url should not handle anything")
	}
}

func TestWeatherExecute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/weather/query" || r.Method != http.MethodPost {
			t.Errorf("expected POST /weather/query, got %s %s", r.Method, r.URL.Path)
		}
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["broadcast"] != false {
			t.Errorf("expected broadcast=false, got %v", req["broadcast"])
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":       true,
			"response_text": "Currently 72F and sunny.",
			"timestamp":     "2025-12-03T14:00:00Z",
		})
	}))
	defer srv.Close()

	p := NewWeatherProvider(config.ToolConfig{APIURL: srv.URL})
	result := p.Execute(context.Background(), "what's the weather?")
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}

	formatted := p.FormatForLLM(result)
	if !strings.Contains(formatted, "WEATHER INFORMATION:") {
		t.Fatalf("expected weather block, got %q", formatted)
	}
	if !strings.Contains(formatted, "Currently 72F and sunny.") {
		t.Fatalf("expected response text, got %q", formatted)
	}
	if !strings.Contains(formatted, "Timestamp: 2025-12-03T14:00:00Z") {
		t.Fatalf("expected timestamp, got %q", formatted)
	}
}

func TestWeatherExecute_APIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": "station offline",
		})
	}))
	defer srv.Close()

	p := NewWeatherProvider(config.ToolConfig{APIURL: srv.URL})
	result := p.Execute(context.Background(), "weather?")
	if result.Success {
		t.Fatal("expected failure result")
	}
	if !strings.Contains(result.Error, "station offline") {
		t.Fatalf("expected API message carried through, got %q", result.Error)
	}
	if formatted := p.FormatForLLM(result); !strings.Contains(formatted, "[Weather data unavailable:") {
		t.Fatalf("expected unavailable marker, got %q", formatted)
	}
}
