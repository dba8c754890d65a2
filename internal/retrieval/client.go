package retrieval

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/telemetry"
)

// Passage is one retrieved excerpt from the semantic index.
type Passage struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	StartIndex int     `json:"start_index"`
	Score      float64 `json:"score"`
}

// Document is a full document fetched from the index by source identifier.
type Document struct {
	Source      string `json:"source"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	Binary      bool   `json:"binary"`
}

// Client talks to the retrieval sidecar. Search degrades to an empty result on
// any failure; document operations return errors for the caller to handle.
type Client struct {
	baseURL     string
	topK        int
	queryClient *http.Client
	fetchClient *http.Client
	logger      *log.Logger
	telemetry   *telemetry.Telemetry
}

// NewClient creates a retrieval client from config. An empty api_url yields a
// disabled client whose Search always returns nil.
func NewClient(cfg config.RetrievalConfig, tele *telemetry.Telemetry) *Client {
	cfg = cfg.Normalize()
	return &Client{
		baseURL:     cfg.APIURL,
		topK:        cfg.TopK,
		queryClient: &http.Client{Timeout: cfg.QueryTimeout},
		fetchClient: &http.Client{Timeout: cfg.FetchTimeout},
		logger:      log.New(log.Writer(), "[RETRIEVAL] ", log.LstdFlags),
		telemetry:   tele,
	}
}

// Enabled reports whether a sidecar URL is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// TopK returns the configured default passage count.
func (c *Client) TopK() int { return c.topK }

type queryResponse struct {
	Results []struct {
		Content  string `json:"content"`
		Metadata struct {
			Source string `json:"source"`
		} `json:"metadata"`
		StartIndex int     `json:"start_index"`
		Score      float64 `json:"score"`
	} `json:"results"`
}

// Search queries the semantic index for the top-k passages. It never returns
// an error: timeouts, transport failures, and malformed responses all yield an
// empty result so the turn can proceed without retrieved context.
func (c *Client) Search(ctx context.Context, query string, k int) []Passage {
	if !c.Enabled() {
		return nil
	}
	if k <= 0 {
		k = c.topK
	}

	var resp queryResponse
	err := c.postJSON(ctx, c.queryClient, "/query", map[string]interface{}{"prompt": query, "k": k}, &resp)
	if c.telemetry != nil {
		c.telemetry.RecordRetrieval(err == nil)
	}
	if err != nil {
		c.logger.Printf("search failed: %v", err)
		return nil
	}

	passages := make([]Passage, 0, len(resp.Results))
	for _, r := range resp.Results {
		source := r.Metadata.Source
		if source == "" {
			source = "unknown"
		}
		passages = append(passages, Passage{
			Content:    r.Content,
			Source:     source,
			StartIndex: r.StartIndex,
			Score:      r.Score,
		})
	}
	return passages
}

type documentResponse struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

// FetchDocument retrieves a full document by source identifier. Binary content
// arrives base64-encoded and is decoded before being returned; HTML content is
// reduced to readable article text.
func (c *Client) FetchDocument(ctx context.Context, source string) (Document, error) {
	if !c.Enabled() {
		return Document{}, fmt.Errorf("retrieval sidecar not configured")
	}

	var resp documentResponse
	if err := c.postJSON(ctx, c.fetchClient, "/document", map[string]interface{}{"file_path": source}, &resp); err != nil {
		return Document{}, fmt.Errorf("fetching document %s: %w", source, err)
	}

	doc := Document{Source: source, Content: resp.Content, ContentType: resp.ContentType}
	switch {
	case isBinaryContentType(resp.ContentType):
		doc.Binary = true
		if decoded, err := base64.StdEncoding.DecodeString(resp.Content); err == nil {
			doc.Content = string(decoded)
		}
	case isHTMLContentType(resp.ContentType):
		doc.Content = extractReadableText(resp.Content, source)
	}
	return doc, nil
}

type chunksResponse struct {
	Chunks []struct {
		Content  string `json:"content"`
		Metadata struct {
			Source string `json:"source"`
		} `json:"metadata"`
	} `json:"chunks"`
}

// ChunksForDocument returns the stored chunks of one document, up to limit.
func (c *Client) ChunksForDocument(ctx context.Context, source string, limit int) ([]Passage, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("retrieval sidecar not configured")
	}

	var resp chunksResponse
	if err := c.postJSON(ctx, c.fetchClient, "/get_chunks_for_document", map[string]interface{}{"source": source, "limit": limit}, &resp); err != nil {
		return nil, fmt.Errorf("fetching chunks for %s: %w", source, err)
	}

	passages := make([]Passage, 0, len(resp.Chunks))
	for _, ch := range resp.Chunks {
		src := ch.Metadata.Source
		if src == "" {
			src = source
		}
		passages = append(passages, Passage{Content: ch.Content, Source: src})
	}
	return passages, nil
}

// ListDocuments returns the source identifiers known to the index.
func (c *Client) ListDocuments(ctx context.Context) ([]string, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("retrieval sidecar not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/documents", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := c.queryClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing documents: status %d", resp.StatusCode)
	}

	var payload struct {
		Documents []string `json:"documents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding document list: %w", err)
	}
	return payload.Documents, nil
}

func (c *Client) postJSON(ctx context.Context, client *http.Client, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func isBinaryContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "text/") || strings.Contains(ct, "json") || strings.Contains(ct, "xml") {
		return false
	}
	return strings.HasPrefix(ct, "application/") || strings.HasPrefix(ct, "image/") || strings.HasPrefix(ct, "audio/") || strings.HasPrefix(ct, "video/")
}

func isHTMLContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}

// extractReadableText strips boilerplate from HTML documents. Falls back to
// the raw markup when extraction fails.
func extractReadableText(html, source string) string {
	u, err := url.Parse("http://localhost/" + url.PathEscape(source))
	if err != nil {
		return html
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		return html
	}
	return article.TextContent
}
