package generator

import (
	"context"
	"errors"
)

// ErrUnavailable marks a provider as unreachable or unhealthy. The content
// phase treats it as a critical failure; image and enhancement phases degrade.
var ErrUnavailable = errors.New("generation provider unavailable")

// GenerationRequest is the payload sent to the content-generation service.
type GenerationRequest struct {
	Topic              string   `json:"topic"`
	Keywords           []string `json:"keywords,omitempty"`
	TargetAudience     string   `json:"target_audience,omitempty"`
	Tone               string   `json:"tone,omitempty"`
	WordCount          int      `json:"word_count,omitempty"`
	QualityLevel       string   `json:"quality_level,omitempty"`
	TemplateType       string   `json:"template_type,omitempty"`
	CustomInstructions string   `json:"custom_instructions,omitempty"`
	BrandVoice         string   `json:"brand_voice,omitempty"`
	ContentGoalPrompt  string   `json:"content_goal_prompt,omitempty"`
}

// GenerationResult is the content service's response.
type GenerationResult struct {
	Content  string            `json:"content"`
	Title    string            `json:"title"`
	Excerpt  string            `json:"excerpt"`
	Metadata map[string]string `json:"metadata"`
}

// EnhanceRequest asks the provider to polish already-generated content.
type EnhanceRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ContentGenerator produces and refines article content. Generation is an
// opaque external call; both methods block until the provider answers or the
// context expires.
type ContentGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
	Enhance(ctx context.Context, req EnhanceRequest) (string, error)
}

// ImageRequest is the payload sent to the image-generation service.
type ImageRequest struct {
	Prompt      string `json:"prompt"`
	Style       string `json:"style,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// ImageResult is the image service's response. Either ImageURL or ImageData
// is set depending on the provider.
type ImageResult struct {
	ImageURL     string  `json:"image_url,omitempty"`
	ImageData    []byte  `json:"image_data,omitempty"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	QualityScore float64 `json:"quality_score"`
}

// ImageGenerator renders a header image for an article.
type ImageGenerator interface {
	Generate(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// AssetUpload is one generated image handed to the asset provider.
type AssetUpload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
	Data        []byte `json:"data,omitempty"`
}

// AssetStore durably hosts generated images and returns the hosted URL.
// Failures here are logged and non-fatal to the job.
type AssetStore interface {
	Store(ctx context.Context, upload AssetUpload) (string, error)
}
