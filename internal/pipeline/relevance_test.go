package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/llm"
)

func TestParseRelevanceScore(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  int
	}{
		{"plain", "Relevance Score: 7/10\nSummary: covers the topic", 7},
		{"no slash", "Relevance Score: 4", 4},
		{"missing line", "I cannot rate this.", 0},
		{"garbage score", "Relevance Score: high/10", 0},
		{"clamped above ten", "Relevance Score: 15/10", 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseRelevanceScore(tc.reply); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func newScoringLLM(t *testing.T, reply string) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"content": reply},
		})
	}))
	t.Cleanup(srv.Close)
	return llm.NewClient(config.LLMConfig{Endpoint: srv.URL, Model: "test"}, nil)
}

func TestLLMScorer_RelevantChunkKeepsSummary(t *testing.T) {
	reply := "Relevance Score: 8/10\nSummary: the section discusses revenue."
	scorer := NewLLMScorer(newScoringLLM(t, reply), 0)

	rel, err := scorer.Score(context.Background(), "what was revenue?",
		DocumentChunk{Index: 2, Text: "revenue went up"}, 2, 5)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rel.Score != 8 {
		t.Fatalf("expected score 8, got %d", rel.Score)
	}
	if rel.ChunkIndex != 2 {
		t.Fatalf("expected chunk index 2, got %d", rel.ChunkIndex)
	}
	if rel.Summary == "" {
		t.Fatal("expected summary for relevant chunk")
	}
}

func TestLLMScorer_BelowThresholdHasNoSummary(t *testing.T) {
	scorer := NewLLMScorer(newScoringLLM(t, "Relevance Score: 3/10"), 0)
	rel, err := scorer.Score(context.Background(), "q", DocumentChunk{Index: 0, Text: "x"}, 0, 1)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if rel.Score != 3 || rel.Summary != "" {
		t.Fatalf("expected score 3 with no summary, got %+v", rel)
	}
}

func TestKeywordScorer_RanksMatchingChunkHighest(t *testing.T) {
	chunks := []DocumentChunk{
		{Index: 0, Text: "The quarterly revenue report shows revenue growth across regions."},
		{Index: 1, Text: "Notes about office furniture and the coffee machine."},
	}
	scorer := NewKeywordScorer(chunks, 0)

	top, err := scorer.Score(context.Background(), "quarterly revenue", chunks[0], 0, 2)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	other, err := scorer.Score(context.Background(), "quarterly revenue", chunks[1], 1, 2)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if top.Score != 10 {
		t.Fatalf("expected best match to score 10, got %d", top.Score)
	}
	if top.Summary == "" {
		t.Fatal("expected extractive summary for relevant chunk")
	}
	if other.Score >= top.Score {
		t.Fatalf("expected non-matching chunk below top, got %d vs %d", other.Score, top.Score)
	}
	if other.Score < 0 || other.Score > 10 {
		t.Fatalf("score out of range: %d", other.Score)
	}
}

func TestKeywordScorer_ScoresAreInRange(t *testing.T) {
	var chunks []DocumentChunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, DocumentChunk{Index: i, Text: fmt.Sprintf("chunk %d mentions budget planning", i)})
	}
	scorer := NewKeywordScorer(chunks, 0)
	for i, c := range chunks {
		rel, err := scorer.Score(context.Background(), "budget planning", c, i, len(chunks))
		if err != nil {
			t.Fatalf("Score chunk %d: %v", i, err)
		}
		if rel.Score < 0 || rel.Score > 10 {
			t.Fatalf("chunk %d score out of range: %d", i, rel.Score)
		}
	}
}
