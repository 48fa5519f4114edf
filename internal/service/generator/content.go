package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/draftline/draftline/internal/config"
)

// ContentClient talks to the external content-generation service over HTTP.
type ContentClient struct {
	config *config.GeneratorConfig
	client *http.Client
	logger *zap.Logger
}

func NewContentClient(cfg *config.GeneratorConfig, logger *zap.Logger) *ContentClient {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &ContentClient{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *ContentClient) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	var result GenerationResult
	if err := c.post(ctx, "/v1/generate", req, &result); err != nil {
		return nil, err
	}

	c.logger.Debug("Content generated",
		zap.String("topic", req.Topic),
		zap.Int("content_length", len(result.Content)))

	return &result, nil
}

func (c *ContentClient) Enhance(ctx context.Context, req EnhanceRequest) (string, error) {
	var result struct {
		Content string `json:"content"`
	}
	if err := c.post(ctx, "/v1/enhance", req, &result); err != nil {
		return "", err
	}
	return result.Content, nil
}

func (c *ContentClient) post(ctx context.Context, path string, payload, out any) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: generator returned status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("generator returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
