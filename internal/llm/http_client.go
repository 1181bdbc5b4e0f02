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

	"go.uber.org/zap"
)

// Config holds the connection settings for the completion service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient talks to the completion service over its REST API.
type HTTPClient struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func NewHTTPClient(cfg Config, logger *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type completionRequest struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxRetries  int     `json:"max_retries"`
	JSONMode    bool    `json:"json_mode,omitempty"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Complete implements CompletionService.
func (c *HTTPClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: no API key configured", ErrProviderUnavailable)
	}
	text, err := c.post(ctx, completionRequest{
		Prompt:      prompt,
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxRetries:  opts.MaxRetries,
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// CompleteStructured implements CompletionService. The provider is asked for
// JSON mode; anything that fails to decode is malformed output, which callers
// degrade on rather than propagate.
func (c *HTTPClient) CompleteStructured(ctx context.Context, prompt string, opts Options, out interface{}) error {
	if c.cfg.APIKey == "" {
		return fmt.Errorf("%w: no API key configured", ErrProviderUnavailable)
	}
	text, err := c.post(ctx, completionRequest{
		Prompt:      prompt,
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxRetries:  opts.MaxRetries,
		JSONMode:    true,
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(StripCodeFences(text)), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, req completionRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/complete"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("Completion service unreachable", zap.String("model", req.Model), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.logger.Warn("Completion service rejected credentials", zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("Completion request failed",
			zap.String("model", req.Model), zap.Int("status", resp.StatusCode))
		return "", fmt.Errorf("llm: completion service returned status %d: %s", resp.StatusCode, payload)
	}

	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if decoded.Text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrMalformedOutput)
	}
	return decoded.Text, nil
}

// StripCodeFences removes a surrounding ```json fence that providers often
// wrap structured output in.
func StripCodeFences(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "```json") {
		t = strings.TrimPrefix(t, "```json")
	} else if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```")
	} else {
		return t
	}
	if idx := strings.LastIndex(t, "```"); idx != -1 {
		t = t[:idx]
	}
	return strings.TrimSpace(t)
}
