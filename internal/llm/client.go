package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hlab/insightchat/config"
	"github.com/hlab/insightchat/internal/telemetry"
)

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to the chat-completion service. The wire format matches the
// Ollama-style chat endpoint: a single POST with the full message list and a
// non-streaming response.
type Client struct {
	endpoint     string
	model        string
	temperature  float64
	systemPrompt string
	httpClient   *http.Client
	logger       *log.Logger
	telemetry    *telemetry.Telemetry
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// NewClient creates a chat client from config.
func NewClient(cfg config.LLMConfig, tele *telemetry.Telemetry) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	return &Client{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		systemPrompt: cfg.SystemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       log.New(log.Writer(), "[LLM] ", log.LstdFlags),
		telemetry:    tele,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// BuildMessages assembles the message list for one turn: the system prompt is
// injected once at the front unless the history already carries one, then the
// prior messages, then the user prompt.
func (c *Client) BuildMessages(prompt string, history []Message) []Message {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, history...)

	hasSystem := false
	for _, m := range messages {
		if m.Role == "system" {
			hasSystem = true
			break
		}
	}
	if !hasSystem && c.systemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: c.systemPrompt}}, messages...)
	}
	return append(messages, Message{Role: "user", Content: prompt})
}

// Chat sends one prompt plus history and returns the model's reply. operation
// labels the call for metrics (e.g. "synthesis", "chunk_score", "answer").
func (c *Client) Chat(ctx context.Context, operation, prompt string, history []Message) (string, error) {
	messages := c.BuildMessages(prompt, history)

	start := time.Now()
	content, err := c.send(ctx, messages)
	if c.telemetry != nil {
		c.telemetry.RecordLLMCall(operation, err == nil, time.Since(start))
	}
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) send(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Stream:      false,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(b))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return out.Message.Content, nil
}
