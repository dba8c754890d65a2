package pipeline

import (
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/helpers"
	"github.com/hlab/insightchat/internal/retrieval"
	"github.com/hlab/insightchat/internal/telemetry"
)

// FullDocument is a complete document the user asked about, fetched from the
// retrieval sidecar or carried over from the previous turn.
type FullDocument struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// ContextSegment is one assembled piece. Tier 1 is full-document content,
// tier 2 capability-provider output, tier 3 retrieved passage excerpts.
type ContextSegment struct {
	Tier int    `json:"tier"`
	Text string `json:"text"`
}

// AssembledContext is the budget-bounded context for one turn. Text is the
// final concatenation and never exceeds the configured character budget;
// Segments describe the pieces it was built from, in priority order.
type AssembledContext struct {
	Segments   []ContextSegment `json:"segments"`
	Text       string           `json:"text"`
	TotalChars int              `json:"total_chars"`
}

const (
	retrievalPreamble = "Use the following retrieved document excerpts to answer the user query (do not cite unless asked):"
	truncationMarker  = "\n[truncated]"
	segmentSeparator  = "\n\n"
)

// binarySignatures are leading-byte patterns of formats that must never be
// inlined as text.
var binarySignatures = []string{
	"%PDF",
	"PK\x03\x04",
	"\x89PNG",
	"GIF8",
	"\xff\xd8\xff",
	"\x1f\x8b",
	"\x7fELF",
	"\xd0\xcf\x11\xe0",
	"SQLite format 3",
}

var analyticalWords = []string{"analyze", "analysis", "summarize", "summarise", "summary", "overview", "findings"}

// Assembler combines provider output, retrieved passages, and full documents
// into one deterministic, budget-bounded context string.
type Assembler struct {
	cfg       config.AssemblerConfig
	logger    *log.Logger
	telemetry *telemetry.Telemetry
}

// NewAssembler creates an assembler with the given budget configuration.
func NewAssembler(cfg config.AssemblerConfig, tele *telemetry.Telemetry) *Assembler {
	return &Assembler{
		cfg:       cfg.Normalize(),
		logger:    log.New(log.Writer(), "[ASSEMBLER] ", log.LstdFlags),
		telemetry: tele,
	}
}

// Assemble builds the turn context. maxChars <= 0 falls back to the configured
// budget. Documents that are binary or over the size threshold are excluded
// from the context: for analytical queries they are returned as deferred work
// for the map-reduce path, otherwise a short guidance notice takes their
// place. Empty inputs yield an empty context, not an error.
func (a *Assembler) Assemble(toolContext string, passages []retrieval.Passage, fullDocs []FullDocument, query string, maxChars int) (AssembledContext, []FullDocument) {
	if maxChars <= 0 {
		maxChars = a.cfg.MaxContextChars
	}

	var segments []ContextSegment
	var deferred []FullDocument
	hasDocContent := false

	for _, doc := range fullDocs {
		if strings.TrimSpace(doc.Content) == "" {
			continue
		}
		if IsBinaryContent(doc.Content) || len(doc.Content) > a.cfg.LargeDocChars {
			if IsAnalyticalQuery(query) {
				deferred = append(deferred, doc)
				continue
			}
			var notice string
			if IsBinaryContent(doc.Content) {
				notice = fmt.Sprintf("Document '%s' was not included directly: it is binary content. Ask for a summary or analysis to have it processed section by section.", doc.Source)
			} else {
				notice = fmt.Sprintf("Document '%s' (%d characters) was not included directly.\n%s",
					doc.Source, len(doc.Content), ProcessingRecommendation(len(doc.Content)))
			}
			segments = append(segments, ContextSegment{Tier: 1, Text: notice})
			continue
		}
		hasDocContent = true
		segments = append(segments, ContextSegment{
			Tier: 1,
			Text: fmt.Sprintf("Full content of '%s':\n%s", doc.Source, doc.Content),
		})
	}

	if strings.TrimSpace(toolContext) != "" {
		segments = append(segments, ContextSegment{Tier: 2, Text: toolContext})
	}
	if passageText := a.formatPassages(passages); passageText != "" {
		segments = append(segments, ContextSegment{Tier: 3, Text: passageText})
	}

	joined := joinSegments(segments)
	if len(joined) > maxChars && hasDocContent {
		// Focus each inlined document on the window that best matches the
		// query instead of cutting the tail off the whole context.
		for i, seg := range segments {
			if seg.Tier != 1 || !strings.HasPrefix(seg.Text, "Full content of '") {
				continue
			}
			segments[i].Text = a.focusOnQuery(seg.Text, query)
		}
		joined = joinSegments(segments)
	}
	if len(joined) > maxChars {
		joined = helpers.Shorten(joined, maxChars, truncationMarker)
	}

	if a.telemetry != nil {
		a.telemetry.RecordContextSize(len(joined))
	}
	return AssembledContext{Segments: segments, Text: joined, TotalChars: len(joined)}, deferred
}

// formatPassages renders tier-3 excerpts: a preamble, then one Source-labeled
// block per passage, HTML-escaped and clipped to the per-passage width.
func (a *Assembler) formatPassages(passages []retrieval.Passage) string {
	if len(passages) == 0 {
		return ""
	}
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		content := helpers.Shorten(html.EscapeString(p.Content), a.cfg.PassageWidth, " …")
		parts = append(parts, fmt.Sprintf("---\nSource: %s\n%s\n", p.Source, content))
	}
	return retrievalPreamble + "\n\n" + strings.Join(parts, "\n")
}

// focusOnQuery splits text into fixed-size line windows and keeps the window
// with the most occurrences of the query's words. Ties keep the earliest
// window so output stays deterministic.
func (a *Assembler) focusOnQuery(text, query string) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= a.cfg.WindowLines {
		return text
	}

	words := queryWords(query)
	best := ""
	bestScore := -1
	for start := 0; start < len(lines); start += a.cfg.WindowLines {
		end := start + a.cfg.WindowLines
		if end > len(lines) {
			end = len(lines)
		}
		window := strings.Join(lines[start:end], "\n")
		lower := strings.ToLower(window)
		score := 0
		for _, w := range words {
			score += strings.Count(lower, w)
		}
		if score > bestScore {
			bestScore = score
			best = window
		}
	}
	return best
}

func queryWords(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?\"'():;")
		if len(f) > 2 {
			words = append(words, f)
		}
	}
	return words
}

func joinSegments(segments []ContextSegment) string {
	if len(segments) == 0 {
		return ""
	}
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, segmentSeparator)
}

// IsBinaryContent reports whether content starts with a known binary file
// signature or carries NUL bytes in its leading region.
func IsBinaryContent(content string) bool {
	for _, sig := range binarySignatures {
		if strings.HasPrefix(content, sig) {
			return true
		}
	}
	head := content
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.ContainsRune(head, 0)
}

// IsAnalyticalQuery reports whether the query asks for document-level
// analysis, which routes oversized documents to the map-reduce path.
func IsAnalyticalQuery(query string) bool {
	lower := strings.ToLower(query)
	for _, w := range analyticalWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
