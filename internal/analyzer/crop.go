package analyzer

import (
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"

	"github.com/disintegration/imaging"

	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/internal/geometry"
	"go-pricetag-viewer/pkg/models"
)

// CropBox cuts a normalized box out of img using the clamped pixel rectangle
func CropBox(img image.Image, box models.NormBox) (*image.NRGBA, error) {
	b := img.Bounds()
	r := geometry.PixelRect(box, b.Dx(), b.Dy()).Add(b.Min)
	if r.Empty() {
		return nil, apperrors.NewValidationError("box does not cover any pixel", nil).
			WithDetails(fmt.Sprintf("box %v on %dx%d image", box, b.Dx(), b.Dy()))
	}
	return imaging.Crop(img, r), nil
}

// CropName is the file name a box crop is stored under
func CropName(imageName string, boxID int) string {
	return fmt.Sprintf("%s_box%d.png", path.Base(models.Stem(imageName)), boxID)
}

// CropWriter saves crops to a directory served at urlPrefix
type CropWriter struct {
	dir       string
	urlPrefix string
}

// NewCropWriter creates the directory if needed
func NewCropWriter(dir, urlPrefix string) (*CropWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.NewInternalError("failed to create crops directory", err)
	}
	return &CropWriter{dir: dir, urlPrefix: urlPrefix}, nil
}

// Dir is where crops are written
func (w *CropWriter) Dir() string {
	return w.dir
}

// Save writes the crop as PNG and returns its server-relative path
func (w *CropWriter) Save(crop image.Image, imageName string, boxID int) (string, error) {
	name := CropName(imageName, boxID)
	if err := imaging.Save(crop, filepath.Join(w.dir, name)); err != nil {
		return "", apperrors.NewInternalError("failed to save crop "+name, err)
	}
	return path.Join("/", w.urlPrefix, name), nil
}
