package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds connection settings for the search service.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient talks to the search service over its REST API.
type HTTPClient struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

func NewHTTPClient(cfg Config, logger *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Summary string   `json:"summary"`
	Results []Source `json:"results"`
}

// Search implements Service.
func (c *HTTPClient) Search(ctx context.Context, query string) (Result, error) {
	if c.cfg.APIKey == "" {
		return Result{}, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}

	body, err := json.Marshal(searchRequest{Query: query})
	if err != nil {
		return Result{}, fmt.Errorf("search: marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/search"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("search: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("Search service unreachable", zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.logger.Warn("Search service rejected credentials", zap.Int("status", resp.StatusCode))
		return Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Search request failed",
			zap.String("query", query), zap.Int("status", resp.StatusCode))
		return Result{}, fmt.Errorf("search: service returned status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("search: decode response: %w", err)
	}
	if decoded.Summary == "" && len(decoded.Results) == 0 {
		return Result{}, fmt.Errorf("search: no usable result for %q", query)
	}
	return Result{Summary: decoded.Summary, Sources: decoded.Results}, nil
}
