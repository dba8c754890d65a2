package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/history"
)

func testConfig(llmURL, calendarURL string) *config.Config {
	return &config.Config{
		General: config.GeneralConfig{Timezone: "UTC"},
		LLM:     config.LLMConfig{Endpoint: llmURL, Model: "m"},
		Tools: config.ToolsConfig{
			Calendar: config.ToolConfig{Enabled: calendarURL != "", APIURL: calendarURL},
		},
	}
}

func TestHealthz(t *testing.T) {
	e := New(testConfig("http://llm.invalid", ""), nil, history.NewMemoryStore(10))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("expected ok, got %q", rec.Body.String())
	}
}

func TestProduceContext_MissingQuery(t *testing.T) {
	e := New(testConfig("http://llm.invalid", ""), nil, history.NewMemoryStore(10))

	req := httptest.NewRequest(http.MethodPost, "/context", strings.NewReader(`{"query":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if body["error"] != "query is required" {
		t.Fatalf("unexpected error message: %q", body["error"])
	}
}

func TestProduceContext_CalendarTurn(t *testing.T) {
	calendar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"events": []map[string]string{
				{"summary": "Standup", "start": "2025-12-03 09:00"},
			},
		})
	}))
	defer calendar.Close()

	e := New(testConfig("http://llm.invalid", calendar.URL), nil, history.NewMemoryStore(10))

	req := httptest.NewRequest(http.MethodPost, "/context", strings.NewReader(`{"query":"What's on my calendar today?","session_id":"s1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var turn struct {
		TurnID       string `json:"turn_id"`
		ToolsHandled bool   `json:"tools_handled"`
		Context      struct {
			Text string `json:"text"`
		} `json:"context"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &turn); err != nil {
		t.Fatalf("unmarshal turn: %v", err)
	}
	if turn.TurnID == "" {
		t.Fatal("expected a turn id")
	}
	if !turn.ToolsHandled {
		t.Fatal("expected tools_handled true")
	}
	if !strings.Contains(turn.Context.Text, "Standup") {
		t.Fatalf("expected event in context, got %q", turn.Context.Text)
	}
}

func TestAsk_AnswersAndRecordsHistory(t *testing.T) {
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"content": "Hello back."},
		})
	}))
	defer llmSrv.Close()

	store := history.NewMemoryStore(10)
	e := New(testConfig(llmSrv.URL, ""), nil, store)

	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"query":"Say hello","session_id":"s1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp askResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Response != "Hello back." {
		t.Fatalf("expected model answer, got %q", resp.Response)
	}

	msgs, err := store.Recent(context.Background(), "s1")
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected user and assistant messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "Say hello" {
		t.Fatalf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "Hello back." {
		t.Fatalf("unexpected second message: %+v", msgs[1])
	}
}

func TestSummarize_MissingSource(t *testing.T) {
	e := New(testConfig("http://llm.invalid", ""), nil, history.NewMemoryStore(10))

	req := httptest.NewRequest(http.MethodPost, "/summarize", strings.NewReader(`{"query":"what is this"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestToolsEndpoints(t *testing.T) {
	calendar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer calendar.Close()

	e := New(testConfig("http://llm.invalid", calendar.URL), nil, history.NewMemoryStore(10))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal tools: %v", err)
	}
	if len(body.Tools) != 1 || body.Tools[0].Name != "calendar" {
		t.Fatalf("unexpected tools list: %+v", body.Tools)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var health map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if !health["calendar"] {
		t.Fatalf("expected calendar healthy, got %+v", health)
	}
}
