package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/helpers"
	"github.com/hlab/insightchat/internal/llm"
	"github.com/hlab/insightchat/internal/telemetry"
)

// ChunkSummary captures one relevant chunk in a summarization result.
type ChunkSummary struct {
	ChunkIndex     int    `json:"chunk_index"`
	RelevanceScore int    `json:"relevance_score"`
	Summary        string `json:"summary"`
	ContentPreview string `json:"content_preview"`
}

// SummaryResult is the output of the map-reduce path for one document.
type SummaryResult struct {
	Success        bool           `json:"success"`
	Response       string         `json:"response"`
	Overview       string         `json:"document_overview"`
	RelevantChunks []ChunkSummary `json:"relevant_chunks"`
	TotalChunks    int            `json:"total_chunks"`
	ChunksAnalyzed int            `json:"chunks_analyzed"`
	DocumentSize   int            `json:"document_size"`
	Error          string         `json:"error,omitempty"`
}

// Summarizer reduces a document that is too large to hand to the model whole.
// It builds a structural overview from the document head, scores chunks for
// relevance concurrently, and synthesizes an answer from the best summaries.
type Summarizer struct {
	cfg       config.SummarizerConfig
	client    *llm.Client
	scorer    Scorer
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewSummarizer creates a summarizer using the LLM scorer.
func NewSummarizer(cfg config.SummarizerConfig, client *llm.Client, tele *telemetry.Telemetry) *Summarizer {
	return &Summarizer{
		cfg:       cfg.Normalize(),
		client:    client,
		scorer:    NewLLMScorer(client, cfg.RelevanceThreshold),
		telemetry: tele,
		logger:    log.New(log.Writer(), "[SUMMARIZER] ", log.LstdFlags),
	}
}

// SetScorer replaces the chunk scorer. Used to swap in the keyword scorer when
// no model should be consulted per chunk.
func (s *Summarizer) SetScorer(sc Scorer) { s.scorer = sc }

// Summarize runs the overview, per-chunk scoring, and synthesis stages for one
// document. Individual chunk-scoring failures are skipped; a failed overview
// or synthesis call fails the whole result.
func (s *Summarizer) Summarize(ctx context.Context, sourceID, content, question string) SummaryResult {
	result := SummaryResult{DocumentSize: len(content)}

	preview := content
	if len(preview) > s.cfg.OverviewChars {
		preview = preview[:s.cfg.OverviewChars]
	}

	overviewPrompt := fmt.Sprintf(`Please provide a brief overview of this document and identify its main sections/topics:

Document: %s
Preview: %s

Question from user: %s

Provide:
1. Document type and purpose
2. Main sections/topics covered
3. Which sections are most relevant to the user's question
4. Recommended approach for analyzing this document given the question

Keep response under 200 words.`, sourceID, preview, question)

	overview, err := s.client.Chat(ctx, "overview", overviewPrompt, nil)
	if err != nil {
		result.Error = fmt.Sprintf("error processing large document: %v", err)
		return result
	}
	result.Overview = overview

	chunks := Chunk(content, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	result.TotalChunks = len(chunks)

	selected := s.selectChunks(chunks)
	result.ChunksAnalyzed = len(selected)
	if len(selected) < len(chunks) {
		s.logger.Printf("document %s has %d chunks, scoring %d (%s sampling)",
			sourceID, len(chunks), len(selected), s.cfg.SampleStrategy)
	}

	scored := s.scoreChunks(ctx, question, selected, len(chunks))

	var relevant []ChunkSummary
	for _, rel := range scored {
		if rel == nil || rel.Score < s.cfg.RelevanceThreshold {
			continue
		}
		chunk := chunkByIndex(selected, rel.ChunkIndex)
		relevant = append(relevant, ChunkSummary{
			ChunkIndex:     rel.ChunkIndex,
			RelevanceScore: rel.Score,
			Summary:        rel.Summary,
			ContentPreview: helpers.Shorten(chunk.Text, 500, "..."),
		})
	}
	result.RelevantChunks = relevant

	if len(relevant) == 0 {
		result.Success = true
		result.Response = fmt.Sprintf("I analyzed the document '%s' but couldn't find sections directly relevant to your question: '%s'. The document overview is:\n\n%s\n\nPlease try asking a more specific question about particular aspects of the document.",
			sourceID, question, overview)
		return result
	}

	top := make([]ChunkSummary, len(relevant))
	copy(top, relevant)
	sort.SliceStable(top, func(i, j int) bool { return top[i].RelevanceScore > top[j].RelevanceScore })
	if len(top) > s.cfg.TopSummaries {
		top = top[:s.cfg.TopSummaries]
	}

	var sections strings.Builder
	for i, cs := range top {
		if i > 0 {
			sections.WriteString("\n")
		}
		fmt.Fprintf(&sections, "Section %d (Relevance: %d/10):\n%s", cs.ChunkIndex+1, cs.RelevanceScore, cs.Summary)
	}

	finalPrompt := fmt.Sprintf(`Based on the document analysis below, provide a comprehensive answer to the user's question:

Document: %s
Question: %s

Document Overview:
%s

Relevant Sections Analysis:
%s

Please provide a thorough answer based on this analysis. If you need to see specific sections in detail, mention that.`,
		sourceID, question, overview, sections.String())

	synthCtx := ctx
	if s.cfg.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		synthCtx, cancel = context.WithTimeout(ctx, s.cfg.SynthesisTimeout)
		defer cancel()
	}
	response, err := s.client.Chat(synthCtx, "synthesis", finalPrompt, nil)
	if err != nil {
		result.Error = fmt.Sprintf("error processing large document: %v", err)
		return result
	}

	result.Success = true
	result.Response = response
	return result
}

// selectChunks applies the analysis cap. The head strategy scores the earliest
// chunks; uniform spreads the cap evenly across the document.
func (s *Summarizer) selectChunks(chunks []DocumentChunk) []DocumentChunk {
	limit := s.cfg.MaxChunksAnalyzed
	if len(chunks) <= limit {
		return chunks
	}
	if s.cfg.SampleStrategy == "uniform" {
		selected := make([]DocumentChunk, 0, limit)
		for i := 0; i < limit; i++ {
			selected = append(selected, chunks[i*len(chunks)/limit])
		}
		return selected
	}
	return chunks[:limit]
}

// scoreChunks runs the scorer over the selection, bounded by MaxInFlight.
// Results land in selection order; failed chunks stay nil.
func (s *Summarizer) scoreChunks(ctx context.Context, question string, selected []DocumentChunk, total int) []*ChunkRelevance {
	results := make([]*ChunkRelevance, len(selected))
	sem := make(chan struct{}, s.cfg.MaxInFlight)
	var wg sync.WaitGroup

	for i, chunk := range selected {
		wg.Add(1)
		sem <- struct{}{}
		go func(pos int, c DocumentChunk) {
			defer wg.Done()
			defer func() { <-sem }()

			rel, err := s.scorer.Score(ctx, question, c, pos, total)
			if s.telemetry != nil {
				s.telemetry.RecordChunkScored()
			}
			if err != nil {
				s.logger.Printf("error scoring chunk %d: %v", c.Index, err)
				return
			}
			results[pos] = &rel
		}(i, chunk)
	}
	wg.Wait()
	return results
}

func chunkByIndex(chunks []DocumentChunk, index int) DocumentChunk {
	for _, c := range chunks {
		if c.Index == index {
			return c
		}
	}
	return DocumentChunk{}
}

// ProcessingRecommendation returns guidance for handling a document of the
// given size directly versus through the map-reduce path.
func ProcessingRecommendation(documentSize int) string {
	switch {
	case documentSize < 100000:
		return "Document size is manageable for direct analysis."
	case documentSize < 300000:
		return `Large document detected. This document may take longer to process. Consider:
- Ask specific questions about particular sections
- Request a summary first, then drill into details
- Use targeted keywords in your questions`
	default:
		return fmt.Sprintf(`Very large document (%d characters).

Recommended approaches:
1. Summarize first: "Give me an overview of this document"
2. Section-specific: "What does the methodology section say about..."
3. Targeted search: "Find information about [specific topic]"
4. Progressive analysis: start broad, then ask follow-up questions

Large documents exceed model context limits; targeted questions get better answers.`, documentSize)
	}
}
