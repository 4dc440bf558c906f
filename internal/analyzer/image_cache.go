package analyzer

import (
	"context"
	"image"

	lru "github.com/hashicorp/golang-lru/v2"

	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/internal/storage"
)

// ImageCache keeps recently decoded full images so that analyzing every box
// of one image decodes it once
type ImageCache struct {
	store storage.ImageStore
	cache *lru.Cache[string, image.Image]
}

// NewImageCache wraps store with an LRU of the given size
func NewImageCache(store storage.ImageStore, size int) (*ImageCache, error) {
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[string, image.Image](size)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create image cache", err)
	}
	return &ImageCache{store: store, cache: cache}, nil
}

// Get returns the decoded image, loading it on a miss
func (c *ImageCache) Get(ctx context.Context, filename string) (image.Image, error) {
	if img, ok := c.cache.Get(filename); ok {
		return img, nil
	}
	img, err := c.store.Open(ctx, filename)
	if err != nil {
		return nil, err
	}
	c.cache.Add(filename, img)
	return img, nil
}

// Len is the number of cached images
func (c *ImageCache) Len() int {
	return c.cache.Len()
}

// Purge drops every cached image
func (c *ImageCache) Purge() {
	c.cache.Purge()
}
