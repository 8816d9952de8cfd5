/**
 * Typhoon API client
 *
 * Chat-completions client for the Typhoon LLM (OpenAI-compatible
 * envelope). The pipeline treats this as a black-box capability: one
 * system+user exchange in, one text reply out. A request that fails
 * once is terminal — retry policy, if any, belongs to the caller.
 */

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/parcelscan/parcel-ocr-worker/internal/logging"
)

// Sampling defaults tuned for deterministic field extraction.
const (
	defaultTemperature = 0.1
	defaultTopP        = 0.9
	defaultMaxTokens   = 512
)

// Client talks to the Typhoon chat-completions endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a Typhoon client. endpoint must be the full
// chat-completions URL. timeout bounds the whole request; an exceeded
// timeout is reported as a capability failure, never retried here.
func NewClient(endpoint, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(apiKey),
		model:    model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.NewLogger("TyphoonClient"),
	}
}

// Configured reports whether API credentials are present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

// Complete sends a system+user message pair and returns the raw text of
// choices[0].message.content. Provider-side error messages are surfaced
// verbatim when the status is non-2xx.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("Typhoon API key not configured")
	}

	body, err := json.Marshal(&chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: defaultTemperature,
		TopP:        defaultTopP,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request to Typhoon failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("Typhoon error (status %d): %s", resp.StatusCode, errorDetail(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse Typhoon response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("Typhoon operation failed: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("Typhoon response contained no choices")
	}

	content := chatResp.Choices[0].Message.Content
	c.logger.Debug("Completion received",
		"model", c.model,
		"finishReason", chatResp.Choices[0].FinishReason,
		"contentLength", len(content))

	return content, nil
}

// errorDetail pulls the provider error message out of a non-2xx body,
// falling back to the raw body when the envelope does not parse.
func errorDetail(body []byte) string {
	var envelope struct {
		Error apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(body))
}
