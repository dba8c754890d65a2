package pipeline

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve"

	"github.com/hlab/insightchat/internal/helpers"
	"github.com/hlab/insightchat/internal/llm"
)

// ChunkRelevance is the scored outcome for one chunk. Summary is set only when
// the score reached the relevance threshold.
type ChunkRelevance struct {
	ChunkIndex int    `json:"chunk_index"`
	Score      int    `json:"relevance_score"`
	Summary    string `json:"summary,omitempty"`
}

// Scorer rates a chunk's relevance to a query on a 0-10 integer scale.
type Scorer interface {
	Score(ctx context.Context, query string, chunk DocumentChunk, position, total int) (ChunkRelevance, error)
}

// relevanceThreshold is the minimum score at which a summary is produced.
const relevanceThreshold = 6

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// LLMScorer asks the chat model to rate a chunk and summarize it when
// relevant. The raw model reply is kept as the summary, matching what the
// synthesis step expects.
type LLMScorer struct {
	client    *llm.Client
	threshold int
}

// NewLLMScorer creates an LLM-backed scorer. threshold <= 0 selects the
// default of 6.
func NewLLMScorer(client *llm.Client, threshold int) *LLMScorer {
	if threshold <= 0 {
		threshold = relevanceThreshold
	}
	return &LLMScorer{client: client, threshold: threshold}
}

func (s *LLMScorer) Score(ctx context.Context, query string, chunk DocumentChunk, position, total int) (ChunkRelevance, error) {
	prompt := fmt.Sprintf(`Rate the relevance of this document section to the user's question (1-10 scale) and provide a brief summary if relevant (score %d+):

Question: %s

Document section %d/%d:
%s

Response format:
Relevance Score: X/10
Summary: (only if score %d+, max 100 words)`, s.threshold, query, position+1, total, chunk.Text, s.threshold)

	reply, err := s.client.Chat(ctx, "chunk_score", prompt, nil)
	if err != nil {
		return ChunkRelevance{}, err
	}

	score := parseRelevanceScore(reply)
	rel := ChunkRelevance{ChunkIndex: chunk.Index, Score: score}
	if score >= s.threshold {
		rel.Summary = reply
	}
	return rel, nil
}

// parseRelevanceScore extracts the integer before the slash on the
// "Relevance Score:" line. Unparseable replies score zero rather than failing
// the chunk.
func parseRelevanceScore(reply string) int {
	_, after, found := strings.Cut(reply, "Relevance Score:")
	if !found {
		return 0
	}
	line := after
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	head, _, _ := strings.Cut(line, "/")
	score, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return clampScore(score)
}

// KeywordScorer rates chunks with full-text match scores from an in-memory
// bleve index over the whole chunk set. Scores are normalized against the best
// hit so the top match always lands at 10. Summaries are extractive snippets.
type KeywordScorer struct {
	chunks    []DocumentChunk
	threshold int

	once   sync.Once
	scores map[int]float64
	best   float64
	err    error
}

type indexedChunk struct {
	Text string `json:"text"`
}

// NewKeywordScorer creates a scorer over the given chunk set. threshold <= 0
// selects the default of 6.
func NewKeywordScorer(chunks []DocumentChunk, threshold int) *KeywordScorer {
	if threshold <= 0 {
		threshold = relevanceThreshold
	}
	return &KeywordScorer{chunks: chunks, threshold: threshold}
}

func (s *KeywordScorer) prepare(query string) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		s.err = err
		return
	}
	defer index.Close()

	for _, c := range s.chunks {
		if err := index.Index(strconv.Itoa(c.Index), indexedChunk{Text: c.Text}); err != nil {
			s.err = err
			return
		}
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), len(s.chunks), 0, false)
	res, err := index.Search(req)
	if err != nil {
		s.err = err
		return
	}

	s.scores = make(map[int]float64, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.Atoi(hit.ID)
		if err != nil {
			continue
		}
		s.scores[id] = hit.Score
		if hit.Score > s.best {
			s.best = hit.Score
		}
	}
}

func (s *KeywordScorer) Score(ctx context.Context, query string, chunk DocumentChunk, position, total int) (ChunkRelevance, error) {
	s.once.Do(func() { s.prepare(query) })
	if s.err != nil {
		return ChunkRelevance{}, s.err
	}
	if err := ctx.Err(); err != nil {
		return ChunkRelevance{}, err
	}

	score := 0
	if raw, ok := s.scores[chunk.Index]; ok && s.best > 0 {
		score = clampScore(int(math.Round(raw / s.best * 10)))
	}
	rel := ChunkRelevance{ChunkIndex: chunk.Index, Score: score}
	if score >= s.threshold {
		rel.Summary = helpers.Shorten(helpers.NormalizeWhitespace(chunk.Text), 500, " …")
	}
	return rel, nil
}
