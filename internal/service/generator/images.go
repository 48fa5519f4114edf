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

// ImageClient talks to the external image-generation service. Callers bound
// each request with a context deadline; the workflow uses 30 seconds and
// treats expiry as a degraded empty result, not an error.
type ImageClient struct {
	config *config.ImageConfig
	client *http.Client
	logger *zap.Logger
}

func NewImageClient(cfg *config.ImageConfig, logger *zap.Logger) *ImageClient {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ImageClient{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (c *ImageClient) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if req.Style == "" {
		req.Style = c.config.Style
	}
	if req.AspectRatio == "" {
		req.AspectRatio = c.config.AspectRatio
	}

	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/images", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: image service returned status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var result ImageResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("Image generated",
		zap.Int("width", result.Width),
		zap.Int("height", result.Height),
		zap.Float64("quality_score", result.QualityScore))

	return &result, nil
}
