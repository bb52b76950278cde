package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const systemPrompt = `You summarize social media comment batches for brand teams. ` +
	`Respond with a single JSON object: {"sentiment_split":{"positive":N,"negative":N,"neutral":N},"themes":["..."]}. ` +
	`Percentages must sum to 100. List at most five themes.`

// OpenAIConfig configures the chat-completions summarizer.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func (c OpenAIConfig) withDefaults() OpenAIConfig {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// OpenAIClient calls an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// NewOpenAIClient creates a summarizer client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("insight.openai.api_key is required")
	}
	cfg = cfg.withDefaults()
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize sends the comment batch to the model and decodes the JSON
// object from its reply.
func (c *OpenAIClient) Summarize(ctx context.Context, comments []string) (Summary, error) {
	if len(comments) == 0 {
		return Summary{}, fmt.Errorf("no comments to summarize")
	}

	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: strings.Join(comments, "\n")},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Summary{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Summary{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Summary{}, fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Summary{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Summary{}, fmt.Errorf("model returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Summary{}, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Summary{}, fmt.Errorf("model returned no choices")
	}
	return parseSummaryContent(parsed.Choices[0].Message.Content)
}

// parseSummaryContent extracts the JSON object from the model reply,
// tolerating prose or code fences around it.
func parseSummaryContent(content string) (Summary, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Summary{}, fmt.Errorf("no JSON object in model reply")
	}
	var summary Summary
	if err := json.Unmarshal([]byte(content[start:end+1]), &summary); err != nil {
		return Summary{}, fmt.Errorf("decode model summary: %w", err)
	}
	if len(summary.Themes) > 5 {
		summary.Themes = summary.Themes[:5]
	}
	return summary, nil
}
