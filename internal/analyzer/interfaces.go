package analyzer

import (
	"context"
	"image"

	"go-pricetag-viewer/pkg/models"
)

// BoxAnalyzer reads the price tag inside one box of one image
type BoxAnalyzer interface {
	AnalyzeBox(ctx context.Context, req models.AnalyzeRequest) (*models.AnalysisResult, error)

	// Lifecycle management
	Close() error
}

// TagReader extracts prices from an already cropped price tag.
// The returned result has no box id and no debug entries.
type TagReader interface {
	ReadTag(ctx context.Context, crop image.Image) (*models.AnalysisResult, error)
	Close() error
}
