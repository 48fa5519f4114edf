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

// AssetClient pushes generated images to the asset/storage provider for
// durable hosting.
type AssetClient struct {
	config *config.AssetConfig
	client *http.Client
	logger *zap.Logger
}

func NewAssetClient(cfg *config.AssetConfig, logger *zap.Logger) *AssetClient {
	return &AssetClient{
		config: cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}
}

func (c *AssetClient) Store(ctx context.Context, upload AssetUpload) (string, error) {
	jsonBody, err := json.Marshal(upload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/assets", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("asset provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("Asset stored", zap.String("name", upload.Name), zap.String("url", result.URL))

	return result.URL, nil
}
