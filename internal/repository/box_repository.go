package repository

import (
	"context"
	"net/http"

	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/internal/storage"
	"go-pricetag-viewer/pkg/models"
)

// HTTPBoxRepository implements BoxRepository over GET /labels/{baseName}
type HTTPBoxRepository struct {
	client *storage.BackendClient
}

// NewHTTPBoxRepository creates a new HTTP-based box repository
func NewHTTPBoxRepository(client *storage.BackendClient) *HTTPBoxRepository {
	return &HTTPBoxRepository{
		client: client,
	}
}

// ListBoxes fetches the box set. A 404 or a null body means no boxes.
func (r *HTTPBoxRepository) ListBoxes(ctx context.Context, baseName string) ([]models.Box, error) {
	if baseName == "" {
		return nil, apperrors.NewValidationError(ErrEmptyBaseName.Error(), ErrEmptyBaseName)
	}

	var boxes []models.Box
	err := r.client.GetJSON(ctx, r.client.URL("labels", baseName), &boxes)
	if storage.IsStatus(err, http.StatusNotFound) {
		return []models.Box{}, nil
	}
	if err != nil {
		return nil, err
	}
	if boxes == nil {
		boxes = []models.Box{}
	}
	return boxes, nil
}
