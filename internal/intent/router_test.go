package intent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hlab/insightchat/config"
)

type stubProvider struct {
	name    string
	handles bool
	delay   time.Duration
	result  ToolResult
	output  string
	healthy bool
}

func (s *stubProvider) Name() string             { return s.name }
func (s *stubProvider) Description() string      { return s.name + " stub" }
func (s *stubProvider) IntentKeywords() []string { return []string{s.name} }
func (s *stubProvider) CanHandle(string) bool    { return s.handles }

func (s *stubProvider) Execute(ctx context.Context, query string) ToolResult {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.result
}

func (s *stubProvider) FormatForLLM(result ToolResult) string { return s.output }
func (s *stubProvider) HealthCheck(context.Context) bool      { return s.healthy }

func TestRoute_RegistrationOrderPreserved(t *testing.T) {
	r := NewRouter(nil)
	// The first provider finishes last; merged context must still lead with it.
	r.Register(&stubProvider{name: "slow", handles: true, delay: 30 * time.Millisecond,
		result: ToolResult{Tool: "slow", Success: true}, output: "SLOW CONTEXT"})
	r.Register(&stubProvider{name: "fast", handles: true,
		result: ToolResult{Tool: "fast", Success: true}, output: "FAST CONTEXT"})

	results, merged := r.Route(context.Background(), "anything")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Tool != "slow" || results[1].Tool != "fast" {
		t.Fatalf("expected results in registration order, got %v", results)
	}
	slowPos := strings.Index(merged, "SLOW CONTEXT")
	fastPos := strings.Index(merged, "FAST CONTEXT")
	if slowPos < 0 || fastPos < 0 || slowPos > fastPos {
		t.Fatalf("expected registration order in merged context, got %q", merged)
	}
	if !strings.Contains(merged, "SLOW CONTEXT\n\nFAST CONTEXT") {
		t.Fatalf("expected blank-line separator, got %q", merged)
	}
}

func TestRoute_FailureDoesNotAbortOthers(t *testing.T) {
	r := NewRouter(nil)
	r.Register(&stubProvider{name: "broken", handles: true,
		result: ToolResult{Tool: "broken", Success: false, Error: "boom"}, output: "[broken error]"})
	r.Register(&stubProvider{name: "working", handles: true,
		result: ToolResult{Tool: "working", Success: true}, output: "OK"})

	results, merged := r.Route(context.Background(), "anything")
	if len(results) != 2 {
		t.Fatalf("expected both results, got %d", len(results))
	}
	if results[0].Success {
		t.Fatal("expected first result failed")
	}
	if !results[1].Success {
		t.Fatal("expected second result succeeded")
	}
	if !strings.Contains(merged, "[broken error]") || !strings.Contains(merged, "OK") {
		t.Fatalf("expected both outputs in merged context, got %q", merged)
	}
	if !ToolsHandledQuery(results) {
		t.Fatal("one success should mark the query as handled")
	}
}

func TestRoute_NoMatch(t *testing.T) {
	r := NewRouter(nil)
	r.Register(&stubProvider{name: "idle", handles: false})

	results, merged := r.Route(context.Background(), "anything")
	if results != nil || merged != "" {
		t.Fatalf("expected empty routing result, got %v %q", results, merged)
	}
	if ToolsHandledQuery(results) {
		t.Fatal("no results should not count as handled")
	}
}

func TestToolsHandledQuery_AllFailed(t *testing.T) {
	results := []ToolResult{
		{Tool: "a", Success: false},
		{Tool: "b", Success: false},
	}
	if ToolsHandledQuery(results) {
		t.Fatal("all-failed results should not count as handled")
	}
}

func TestNewRouterFromConfig_RegistersEnabledProviders(t *testing.T) {
	cfg := config.ToolsConfig{
		Calendar: config.ToolConfig{Enabled: true, APIURL: "http://calendar.local"},
		Weather:  config.ToolConfig{Enabled: true}, // enabled but no URL
		Quotes:   config.ToolConfig{Enabled: false, APIURL: "http://quotes.local"},
	}
	r := NewRouterFromConfig(cfg, "UTC", nil)
	providers := r.Providers()
	if len(providers) != 1 {
		t.Fatalf("expected 1 registered provider, got %d", len(providers))
	}
	if providers[0].Name() != "calendar" {
		t.Fatalf("expected calendar provider, got %s", providers[0].Name())
	}
}

func TestHealthCheckAll(t *testing.T) {
	r := NewRouter(nil)
	r.Register(&stubProvider{name: "up", healthy: true})
	r.Register(&stubProvider{name: "down", healthy: false})

	status := r.HealthCheckAll(context.Background())
	if !status["up"] || status["down"] {
		t.Fatalf("unexpected health map: %v", status)
	}
}

func TestInfo_CapsKeywords(t *testing.T) {
	r := NewRouter(nil)
	r.Register(NewCalendarProvider(config.ToolConfig{APIURL: "http://calendar.local"}, "UTC"))

	info := r.Info()
	if len(info) != 1 {
		t.Fatalf("expected one entry, got %d", len(info))
	}
	if info[0].Name != "calendar" || len(info[0].Keywords) > 10 {
		t.Fatalf("unexpected info: %+v", info[0])
	}
}
