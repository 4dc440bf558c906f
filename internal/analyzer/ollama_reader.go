package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/pkg/models"
)

type chatClient interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

// OllamaReader asks a local vision model to read the crop
type OllamaReader struct {
	client      chatClient
	model       string
	temperature float64
}

// NewOllamaReader connects to the Ollama server at ollamaURL
func NewOllamaReader(ollamaURL string, opts Options) (*OllamaReader, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, apperrors.NewValidationError("invalid Ollama URL: "+ollamaURL, err)
	}

	// Ignore any path such as /api/chat
	baseURL := &url.URL{Scheme: parsedURL.Scheme, Host: parsedURL.Host}

	return &OllamaReader{
		client:      api.NewClient(baseURL, http.DefaultClient),
		model:       opts.Model,
		temperature: opts.Temperature,
	}, nil
}

// ReadTag sends the crop with the price reader prompt
func (r *OllamaReader) ReadTag(ctx context.Context, crop image.Image) (*models.AnalysisResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return nil, apperrors.NewInternalError("failed to encode crop", err)
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: r.model,
		Messages: []api.Message{
			{Role: "system", Content: SystemPrompt},
			{
				Role:    "user",
				Content: UserPrompt,
				Images:  []api.ImageData{api.ImageData(buf.Bytes())},
			},
		},
		Stream:  &streamFalse,
		Options: map[string]any{"temperature": r.temperature},
	}

	var content strings.Builder
	err := r.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, apperrors.NewAnalysisError(fmt.Sprintf("ollama chat with %s failed", r.model), err)
	}
	if strings.TrimSpace(content.String()) == "" {
		return nil, apperrors.NewAnalysisError("empty response from ollama", nil)
	}

	return ParseTagReply(content.String()), nil
}

func (r *OllamaReader) Close() error {
	return nil
}
