package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// APIKeyEnv is the environment variable holding the API key.
const APIKeyEnv = "CHATGPT_API_KEY"

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAIClient implements Completer against an OpenAI-compatible
// chat-completions endpoint.
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewOpenAIClient creates a client using the key from APIKeyEnv.
func NewOpenAIClient() *OpenAIClient {
	return &OpenAIClient{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    defaultBaseURL,
		apiKey:     os.Getenv(APIKeyEnv),
		model:      DefaultModel,
	}
}

// NewOpenAIClientWithOptions creates a client with an explicit endpoint,
// key and default model. Empty values fall back to defaults.
func NewOpenAIClientWithOptions(baseURL, apiKey, model string) *OpenAIClient {
	c := NewOpenAIClient()
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	if apiKey != "" {
		c.apiKey = apiKey
	}
	if model != "" {
		c.model = model
	}
	return c
}

// Name returns the completer name.
func (c *OpenAIClient) Name() string { return "openai" }

// Available reports whether an API key is configured.
func (c *OpenAIClient) Available() bool { return c.apiKey != "" }

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the messages and returns the completion text.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("openai completer not available: set %s", APIKeyEnv)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("timeout: completion took longer than %v", DefaultTimeout)
		}
		if ctx.Err() == context.Canceled {
			return "", fmt.Errorf("interrupted")
		}
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 16<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("failed to decode completion response (status %d): %w", httpResp.StatusCode, err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("completion API error: %s", resp.Error.Message)
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion API returned status %d", httpResp.StatusCode)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices (latency %v)", time.Since(start).Truncate(time.Millisecond))
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
