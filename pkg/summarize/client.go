// Package summarize generates investment-focused article summaries through a
// local Ollama instance.
package summarize

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

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.1:8b"

	// maxPromptChars bounds the article text sent to the model; local
	// models run with small context windows.
	maxPromptChars = 8000

	generateTimeout = 120 * time.Second
)

const systemPrompt = `You are an expert financial analyst specializing in investment news summarization.
Your task is to analyze news articles and extract key investment insights.

For each article, provide a JSON response with the following structure:
{
    "summary": "A concise 2-3 sentence summary of the main points",
    "investment_implications": "Key implications for investors",
    "key_metrics": ["list", "of", "important", "financial", "metrics", "mentioned"],
    "companies_mentioned": ["list", "of", "companies", "or", "tickers"],
    "sectors_affected": ["list", "of", "market", "sectors"],
    "sentiment": "positive/negative/neutral",
    "risk_factors": ["potential", "risks", "mentioned"],
    "opportunities": ["investment", "opportunities", "identified"],
    "time_horizon": "short-term/medium-term/long-term",
    "confidence_score": 0.85
}

Focus on:
- Market impact and investment implications
- Financial metrics, earnings, revenue, growth rates
- Company performance and outlook
- Economic indicators and trends
- Risk factors and opportunities
- Regulatory changes affecting investments

Be objective and factual. Only return the JSON object, no additional text.`

// Client talks to an Ollama server.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: generateTimeout},
	}
}

// Model returns the model name summaries are generated with.
func (c *Client) Model() string {
	return c.model
}

// Ping verifies the Ollama server is reachable and has the configured model
// pulled.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Ollama at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to connect to Ollama, status code: %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("failed to decode model list: %w", err)
	}

	for _, m := range tags.Models {
		if m.Name == c.model {
			return nil
		}
	}
	return fmt.Errorf("model %s not available, run: ollama pull %s", c.model, c.model)
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Summarize sends the article text to the model and returns its raw
// response. The article is truncated at a sentence boundary when it exceeds
// the model's usable context.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"%s\n\nPlease analyze this financial news article:\n\n%s\n\nProvide only the JSON response:",
		systemPrompt, truncate(text, maxPromptChars))

	payload := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: 0.3,
			TopP:        0.9,
			NumPredict:  1000,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("Ollama API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return strings.TrimSpace(result.Response), nil
}

// truncate cuts text to maxChars, preferring the last sentence boundary when
// one falls in the final fifth of the window.
func truncate(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}

	cut := text[:maxChars]
	if last := strings.LastIndex(cut, "."); last > int(float64(maxChars)*0.8) {
		return cut[:last+1]
	}
	return cut + "..."
}
