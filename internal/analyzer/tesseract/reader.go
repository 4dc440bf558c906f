// Package tesseract reads price tags with the tesseract OCR engine. It is
// kept apart from package analyzer because it needs cgo and libtesseract.
package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"go-pricetag-viewer/internal/analyzer"
	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/pkg/models"
)

// Reader implements analyzer.TagReader. The underlying client is not safe
// for concurrent use, so calls are serialized.
type Reader struct {
	mu     sync.Mutex
	client *gosseract.Client
	opts   analyzer.Options
}

// NewReader creates a tesseract client for opts.Language
func NewReader(opts analyzer.Options) (*Reader, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(opts.Language); err != nil {
		client.Close()
		return nil, apperrors.NewValidationError("unsupported OCR language "+opts.Language, err)
	}
	return &Reader{client: client, opts: opts}, nil
}

// ReadTag preprocesses the crop, runs OCR and parses the text
func (r *Reader) ReadTag(ctx context.Context, crop image.Image) (*models.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewAnalysisError("analysis canceled", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, analyzer.PrepareForOCR(crop, r.opts)); err != nil {
		return nil, apperrors.NewInternalError("failed to encode crop", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, apperrors.NewAnalysisError("tesseract rejected the crop", err)
	}
	text, err := r.client.Text()
	if err != nil {
		return nil, apperrors.NewAnalysisError("tesseract failed", err)
	}
	return analyzer.ParsePriceText(text), nil
}

// Close frees the tesseract client
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}
