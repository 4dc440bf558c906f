package repository

import (
	"context"

	"go-pricetag-viewer/pkg/models"
)

// BoxRepository defines the interface for box set access
type BoxRepository interface {
	// ListBoxes returns the box set of the image whose filename stem is baseName.
	// An image without boxes yields an empty, non-nil slice.
	ListBoxes(ctx context.Context, baseName string) ([]models.Box, error)
}
