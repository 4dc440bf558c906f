package storage

import (
	"bytes"
	"context"
	"image"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	apperrors "go-pricetag-viewer/internal/errors"
)

// ImageStore lists and opens the images the viewer pages through
type ImageStore interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, filename string) (image.Image, error)
}

// RawImageStore also exposes encoded bytes, used by local analyzers
type RawImageStore interface {
	ImageStore
	ReadRaw(ctx context.Context, filename string) ([]byte, error)
}

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

// IsImageFile reports whether the name has a displayable image extension
func IsImageFile(name string) bool {
	return slices.Contains(imageExtensions, strings.ToLower(path.Ext(name)))
}

// Decode reads an image, applying its EXIF orientation. Errors are DecodeErrors.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.NewDecodeError("failed to decode image", err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, apperrors.NewDecodeError("image has no pixels", nil)
	}
	return img, nil
}

// DecodeBytes is Decode over an in-memory buffer
func DecodeBytes(data []byte) (image.Image, error) {
	return Decode(bytes.NewReader(data))
}
