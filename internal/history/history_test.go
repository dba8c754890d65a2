package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/llm"
)

func TestMemoryStore_BoundedTranscript(t *testing.T) {
	s := NewMemoryStore(6)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if err := s.Append(ctx, "sess", llm.Message{Role: role, Content: fmt.Sprintf("message %d", i)}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	msgs, err := s.Recent(ctx, "sess")
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 6 {
		t.Fatalf("expected transcript capped at 6 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "message 4" {
		t.Fatalf("expected oldest retained message to be %q, got %q", "message 4", msgs[0].Content)
	}
	if msgs[5].Content != "message 9" {
		t.Fatalf("expected newest message last, got %q", msgs[5].Content)
	}
}

func TestMemoryStore_SessionsIsolated(t *testing.T) {
	s := NewMemoryStore(6)
	ctx := context.Background()

	_ = s.Append(ctx, "a", llm.Message{Role: "user", Content: "for a"})
	_ = s.Append(ctx, "b", llm.Message{Role: "user", Content: "for b"})

	msgs, _ := s.Recent(ctx, "a")
	if len(msgs) != 1 || msgs[0].Content != "for a" {
		t.Fatalf("unexpected transcript for session a: %v", msgs)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore(6)
	ctx := context.Background()

	_ = s.Append(ctx, "sess", llm.Message{Role: "user", Content: "hello"})
	if err := s.Clear(ctx, "sess"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	msgs, _ := s.Recent(ctx, "sess")
	if len(msgs) != 0 {
		t.Fatalf("expected empty transcript after clear, got %d messages", len(msgs))
	}
}

func TestNew_DisabledUsesMemory(t *testing.T) {
	store, err := New(context.Background(), config.HistoryConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected MemoryStore when history is disabled, got %T", store)
	}
}
