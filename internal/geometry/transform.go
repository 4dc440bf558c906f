// Package geometry maps normalized, center-anchored boxes into canvas pixel space
// under an aspect-preserving fit-contain transform.
package geometry

import (
	"fmt"
	"image"
	"math"

	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/pkg/models"
)

// Rect is a top-left anchored rectangle in canvas pixels
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// DrawGeometry is the fit-contain mapping of one image onto one canvas.
// It is only valid for the image and canvas it was computed from.
type DrawGeometry struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	ImgW    int     `json:"img_w"`
	ImgH    int     `json:"img_h"`
	CanvasW int     `json:"canvas_w"`
	CanvasH int     `json:"canvas_h"`
}

// Fit computes the centered fit-contain geometry. Non-positive sizes are
// rejected with a validation error instead of yielding NaN or Inf.
func Fit(imgW, imgH, canvasW, canvasH int) (DrawGeometry, error) {
	if imgW <= 0 || imgH <= 0 {
		return DrawGeometry{}, apperrors.NewValidationError(
			fmt.Sprintf("image dimensions must be positive (got %dx%d)", imgW, imgH), nil)
	}
	if canvasW <= 0 || canvasH <= 0 {
		return DrawGeometry{}, apperrors.NewValidationError(
			fmt.Sprintf("canvas dimensions must be positive (got %dx%d)", canvasW, canvasH), nil)
	}

	scale := math.Min(float64(canvasW)/float64(imgW), float64(canvasH)/float64(imgH))
	drawW := float64(imgW) * scale
	drawH := float64(imgH) * scale

	return DrawGeometry{
		Scale:   scale,
		OffsetX: (float64(canvasW) - drawW) / 2,
		OffsetY: (float64(canvasH) - drawH) / 2,
		ImgW:    imgW,
		ImgH:    imgH,
		CanvasW: canvasW,
		CanvasH: canvasH,
	}, nil
}

// FitImage is Fit for the intrinsic bounds of a decoded image
func FitImage(img image.Image, canvasW, canvasH int) (DrawGeometry, error) {
	if img == nil {
		return DrawGeometry{}, apperrors.NewValidationError("image is nil", nil)
	}
	b := img.Bounds()
	return Fit(b.Dx(), b.Dy(), canvasW, canvasH)
}

// DrawWidth is the scaled image width on the canvas
func (g DrawGeometry) DrawWidth() float64 {
	return float64(g.ImgW) * g.Scale
}

// DrawHeight is the scaled image height on the canvas
func (g DrawGeometry) DrawHeight() float64 {
	return float64(g.ImgH) * g.Scale
}

// ImageRect is where the base image is drawn on the canvas
func (g DrawGeometry) ImageRect() Rect {
	return Rect{X: g.OffsetX, Y: g.OffsetY, W: g.DrawWidth(), H: g.DrawHeight()}
}

// Project converts a normalized center-anchored box to its canvas rectangle
func (g DrawGeometry) Project(b models.NormBox) Rect {
	imgW, imgH := float64(g.ImgW), float64(g.ImgH)

	wImg := b.W * imgW
	hImg := b.H * imgH
	xImg := b.X*imgW - wImg/2
	yImg := b.Y*imgH - hImg/2

	return Rect{
		X: g.OffsetX + xImg*g.Scale,
		Y: g.OffsetY + yImg*g.Scale,
		W: wImg * g.Scale,
		H: hImg * g.Scale,
	}
}

// PixelRect converts a normalized box to a clamped integer rectangle in image
// pixels, suitable for cropping. The origin is clamped into the image and the
// extent clipped at the right and bottom edges.
func PixelRect(b models.NormBox, imgW, imgH int) image.Rectangle {
	fw, fh := float64(imgW), float64(imgH)
	w := b.W * fw
	h := b.H * fh
	x := int(math.Round(b.X*fw - w/2))
	y := int(math.Round(b.Y*fh - h/2))
	wi := int(math.Round(w))
	hi := int(math.Round(h))

	x = max(0, min(imgW-1, x))
	y = max(0, min(imgH-1, y))
	if x+wi > imgW {
		wi = imgW - x
	}
	if y+hi > imgH {
		hi = imgH - y
	}
	return image.Rect(x, y, x+wi, y+hi)
}
