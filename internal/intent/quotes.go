package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hlab/insightchat/config"
)

// QuotesProvider surfaces quotes from the RSS quotes API.
type QuotesProvider struct {
	apiURL string
	client *http.Client
	logger *log.Logger
}

func NewQuotesProvider(cfg config.ToolConfig) *QuotesProvider {
	cfg = cfg.Normalize()
	return &QuotesProvider{
		apiURL: cfg.APIURL,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.New(log.Writer(), "[QUOTES] ", log.LstdFlags),
	}
}

func (p *QuotesProvider) Name() string { return "quotes" }

func (p *QuotesProvider) Description() string {
	return "Quotes provider - inspirational quotes and content from RSS feeds"
}

func (p *QuotesProvider) IntentKeywords() []string {
	return []string{
		"quote", "quotes", "quotation",
		"saying", "proverb", "wisdom",
		"inspiration", "inspire", "motivate", "motivation",
		"famous saying", "who said",
		"rss", "feed", "article",
	}
}

func (p *QuotesProvider) CanHandle(query string) bool {
	if p.apiURL == "" {
		return false
	}
	q := strings.ToLower(query)
	for _, kw := range p.IntentKeywords() {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

type quote struct {
	Text    string `json:"text"`
	Content string `json:"content"`
	Author  string `json:"author"`
	Source  string `json:"source"`
}

type quotesResponse struct {
	Quotes []quote `json:"quotes"`
}

func (p *QuotesProvider) Execute(ctx context.Context, query string) ToolResult {
	if p.apiURL == "" {
		return failure("quotes", "quotes API URL not configured")
	}

	endpoint := fmt.Sprintf("%s/api/quotes?query=%s&limit=5", p.apiURL, url.QueryEscape(query))
	p.logger.Printf("calling quotes API: %s/api/quotes", p.apiURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return failure("quotes", "building quotes request: %v", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return failure("quotes", "cannot connect to quotes service at %s: %v", p.apiURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failure("quotes", "quotes API returned error: %d", resp.StatusCode)
	}

	var data quotesResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return failure("quotes", "decoding quotes response: %v", err)
	}
	if len(data.Quotes) == 0 {
		return failure("quotes", "no quotes found matching the query")
	}

	return ToolResult{
		Tool:    "quotes",
		Success: true,
		Data:    data,
		Metadata: map[string]interface{}{
			"tool":    "quotes",
			"api_url": p.apiURL,
			"count":   len(data.Quotes),
		},
	}
}

func (p *QuotesProvider) FormatForLLM(result ToolResult) string {
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Unknown error"
		}
		return fmt.Sprintf("[Quotes unavailable: %s]", msg)
	}

	data, ok := result.Data.(quotesResponse)
	if !ok || len(data.Quotes) == 0 {
		return "[No quotes found]"
	}

	var b strings.Builder
	b.WriteString("---\nRELEVANT QUOTES:\n")
	for i, q := range data.Quotes {
		text := q.Text
		if text == "" {
			text = q.Content
		}
		author := q.Author
		if author == "" {
			author = "Unknown"
		}
		fmt.Fprintf(&b, "\n%d. %q\n   - %s", i+1, text, author)
		if q.Source != "" {
			fmt.Fprintf(&b, " (%s)", q.Source)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n---\n\nUse the quotes above to help answer the user's question.")
	return b.String()
}

func (p *QuotesProvider) HealthCheck(ctx context.Context) bool {
	if p.apiURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/health", nil)
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
