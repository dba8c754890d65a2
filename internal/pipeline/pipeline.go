package pipeline

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/intent"
	"github.com/hlab/insightchat/internal/llm"
	"github.com/hlab/insightchat/internal/retrieval"
	"github.com/hlab/insightchat/internal/telemetry"
)

// TurnResult is the outcome of one context-production turn. Context.Text is
// what callers hand to the model; Summaries carry map-reduce results for
// documents too large to inline.
type TurnResult struct {
	TurnID       string              `json:"turn_id"`
	Query        string              `json:"query"`
	ToolResults  []intent.ToolResult `json:"tool_results,omitempty"`
	ToolsHandled bool                `json:"tools_handled"`
	Passages     []retrieval.Passage `json:"passages,omitempty"`
	Context      AssembledContext    `json:"context"`
	Summaries    []SummaryResult     `json:"summaries,omitempty"`
}

// Pipeline orchestrates one turn: route the query to capability providers,
// fall back to retrieval when no provider handled it, fetch and condense
// documents flagged for deep analysis, and assemble the bounded context.
type Pipeline struct {
	cfg        *config.Config
	router     *intent.Router
	retrieval  *retrieval.Client
	assembler  *Assembler
	summarizer *Summarizer
	telemetry  *telemetry.Telemetry
	logger     *log.Logger

	mu     sync.Mutex
	active map[string]string // session -> document currently under analysis
}

// New wires a pipeline from config.
func New(cfg *config.Config, tele *telemetry.Telemetry) *Pipeline {
	client := llm.NewClient(cfg.LLM, tele)
	return &Pipeline{
		cfg:        cfg,
		router:     intent.NewRouterFromConfig(cfg.Tools, cfg.General.Timezone, tele),
		retrieval:  retrieval.NewClient(cfg.Retrieval, tele),
		assembler:  NewAssembler(cfg.Assembler, tele),
		summarizer: NewSummarizer(cfg.Summarizer, client, tele),
		telemetry:  tele,
		logger:     log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
		active:     make(map[string]string),
	}
}

// Router exposes the provider registry for diagnostics endpoints.
func (p *Pipeline) Router() *intent.Router { return p.router }

// Retrieval exposes the sidecar client.
func (p *Pipeline) Retrieval() *retrieval.Client { return p.retrieval }

// ProduceContext runs one turn for the query. Provider failures and retrieval
// failures never fail the turn; the context is assembled from whatever
// succeeded.
func (p *Pipeline) ProduceContext(ctx context.Context, session, query string) *TurnResult {
	result := &TurnResult{TurnID: uuid.NewString(), Query: query}

	toolResults, toolContext := p.router.Route(ctx, query)
	result.ToolResults = toolResults
	result.ToolsHandled = intent.ToolsHandledQuery(toolResults)

	// Retrieval is skipped when a provider already answered, to avoid
	// injecting redundant or conflicting context.
	if !result.ToolsHandled && p.retrieval.Enabled() {
		result.Passages = p.retrieval.Search(ctx, query, p.retrieval.TopK())
	}

	var fullDocs []FullDocument
	if source := p.documentTarget(session, query, result.Passages); source != "" {
		doc, err := p.retrieval.FetchDocument(ctx, source)
		if err != nil {
			p.logger.Printf("could not fetch document %s: %v", source, err)
		} else {
			fullDocs = append(fullDocs, FullDocument{Source: doc.Source, Content: doc.Content})
		}
	}

	assembled, deferred := p.assembler.Assemble(toolContext, result.Passages, fullDocs, query, 0)
	result.Context = assembled

	for _, doc := range deferred {
		p.logger.Printf("document %s deferred to map-reduce analysis (%d chars)", doc.Source, len(doc.Content))
		summary := p.summarizer.Summarize(ctx, doc.Source, doc.Content, query)
		result.Summaries = append(result.Summaries, summary)
		p.setActiveDocument(session, doc.Source)
	}

	if p.telemetry != nil {
		p.telemetry.RecordTurn(true)
	}
	return result
}

// SummarizeDocument runs the map-reduce path for one document. Content may be
// empty, in which case the document is fetched from the retrieval sidecar.
func (p *Pipeline) SummarizeDocument(ctx context.Context, session, sourceID, content, query string) SummaryResult {
	if content == "" {
		doc, err := p.retrieval.FetchDocument(ctx, sourceID)
		if err != nil {
			return SummaryResult{Error: err.Error()}
		}
		content = doc.Content
	}
	p.setActiveDocument(session, sourceID)
	return p.summarizer.Summarize(ctx, sourceID, content, query)
}

// documentTarget decides which document, if any, to fetch in full for this
// turn: a source the query names directly, or for analytical follow-ups, the
// document the session was already analyzing.
func (p *Pipeline) documentTarget(session, query string, passages []retrieval.Passage) string {
	q := strings.ToLower(query)
	seen := make(map[string]bool)
	for _, pass := range passages {
		if pass.Source == "" || pass.Source == "unknown" || seen[pass.Source] {
			continue
		}
		seen[pass.Source] = true
		name := strings.ToLower(filepath.Base(pass.Source))
		if strings.Contains(q, name) {
			return pass.Source
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if len(stem) > 3 && strings.Contains(q, stem) {
			return pass.Source
		}
	}
	if IsAnalyticalQuery(query) {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.active[session]
	}
	return ""
}

func (p *Pipeline) setActiveDocument(session, source string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[session] = source
}
