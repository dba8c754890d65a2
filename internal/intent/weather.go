package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hlab/insightchat/config"
)

// WeatherProvider answers weather questions through the weather station API's
// natural-language query endpoint.
type WeatherProvider struct {
	apiURL string
	client *http.Client
	logger *log.Logger
}

func NewWeatherProvider(cfg config.ToolConfig) *WeatherProvider {
	cfg = cfg.Normalize()
	return &WeatherProvider{
		apiURL: cfg.APIURL,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.New(log.Writer(), "[WEATHER] ", log.LstdFlags),
	}
}

func (p *WeatherProvider) Name() string { return "weather" }

func (p *WeatherProvider) Description() string {
	return "Weather provider - current conditions and forecasts from the weather station API"
}

func (p *WeatherProvider) IntentKeywords() []string {
	return []string{
		"weather", "temperature", "temp", "forecast",
		"rain", "raining", "sunny", "cloudy", "snow", "snowing",
		"wind", "windy", "humidity", "humid",
		"hot", "cold", "warm", "cool", "freezing",
		"degrees", "fahrenheit", "celsius",
		"precipitation", "pressure", "barometric",
		"uv", "uv index", "sunshine",
		"outside", "outdoors",
		"umbrella", "jacket", "coat", "shorts",
		"what.*like outside", "how.*outside",
		"tempest", "station", "sensor",
	}
}

// CanHandle matches the weather vocabulary. Keywords containing ".*" are
// treated as regular expressions; the rest match as plain substrings.
func (p *WeatherProvider) CanHandle(query string) bool {
	if p.apiURL == "" {
		return false
	}
	q := strings.ToLower(query)
	for _, kw := range p.IntentKeywords() {
		if strings.Contains(kw, ".*") {
			if matched, err := regexp.MatchString(kw, q); err == nil && matched {
				return true
			}
		} else if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

type weatherQueryResponse struct {
	Success      bool   `json:"success"`
	ResponseText string `json:"response_text"`
	Timestamp    string `json:"timestamp"`
	Message      string `json:"message"`
}

func (p *WeatherProvider) Execute(ctx context.Context, query string) ToolResult {
	if p.apiURL == "" {
		return failure("weather", "weather API URL not configured")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"prompt":           query,
		"include_current":  true,
		"include_forecast": true,
		"broadcast":        false,
	})
	if err != nil {
		return failure("weather", "encoding weather request: %v", err)
	}

	endpoint := p.apiURL + "/weather/query"
	p.logger.Printf("calling weather API: %s", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return failure("weather", "building weather request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return failure("weather", "cannot connect to weather service at %s: %v", p.apiURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failure("weather", "weather API returned error: %d", resp.StatusCode)
	}

	var data weatherQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return failure("weather", "decoding weather response: %v", err)
	}
	if !data.Success {
		msg := data.Message
		if msg == "" {
			msg = "unknown error from weather API"
		}
		return failure("weather", "%s", msg)
	}

	return ToolResult{
		Tool:    "weather",
		Success: true,
		Data: map[string]interface{}{
			"response":  data.ResponseText,
			"timestamp": data.Timestamp,
		},
		Metadata: map[string]interface{}{
			"tool":              "weather",
			"api_url":           p.apiURL,
			"includes_forecast": true,
			"includes_current":  true,
		},
	}
}

func (p *WeatherProvider) FormatForLLM(result ToolResult) string {
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return fmt.Sprintf("[Weather data unavailable: %s]", msg)
	}

	data, _ := result.Data.(map[string]interface{})
	response, _ := data["response"].(string)
	timestamp, _ := data["timestamp"].(string)

	return fmt.Sprintf(`---
WEATHER INFORMATION:
%s

Timestamp: %s
---

Use the weather information above to answer the user's question about weather conditions.`, response, timestamp)
}

func (p *WeatherProvider) HealthCheck(ctx context.Context) bool {
	if p.apiURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/weather/status", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Printf("health check failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
