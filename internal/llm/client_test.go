package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hlab/insightchat/config"
)

func TestChat_SendsModelMessagesAndTemperature(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"content": "hello back"},
		})
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{
		Endpoint:     srv.URL,
		Model:        "llama3.2:latest",
		Temperature:  0.7,
		SystemPrompt: "You are a helpful assistant.",
	}, nil)

	got, err := c.Chat(context.Background(), "answer", "hi", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "hello back" {
		t.Fatalf("expected %q, got %q", "hello back", got)
	}
	if captured["model"] != "llama3.2:latest" {
		t.Fatalf("expected model in request, got %v", captured["model"])
	}
	if captured["stream"] != false {
		t.Fatalf("expected stream=false, got %v", captured["stream"])
	}
	msgs, ok := captured["messages"].([]interface{})
	if !ok || len(msgs) != 2 {
		t.Fatalf("expected system+user messages, got %v", captured["messages"])
	}
	first := msgs[0].(map[string]interface{})
	if first["role"] != "system" {
		t.Fatalf("expected system message first, got %v", first)
	}
}

func TestChat_ErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(config.LLMConfig{Endpoint: srv.URL, Model: "m"}, nil)
	if _, err := c.Chat(context.Background(), "answer", "hi", nil); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestBuildMessages_DoesNotDuplicateSystemPrompt(t *testing.T) {
	c := NewClient(config.LLMConfig{Endpoint: "http://x", Model: "m", SystemPrompt: "sys"}, nil)
	history := []Message{
		{Role: "system", Content: "custom"},
		{Role: "user", Content: "earlier"},
		{Role: "assistant", Content: "reply"},
	}
	msgs := c.BuildMessages("now", history)
	systems := 0
	for _, m := range msgs {
		if m.Role == "system" {
			systems++
		}
	}
	if systems != 1 {
		t.Fatalf("expected exactly one system message, got %d", systems)
	}
	if msgs[len(msgs)-1].Content != "now" {
		t.Fatalf("expected user prompt last, got %v", msgs[len(msgs)-1])
	}
}
