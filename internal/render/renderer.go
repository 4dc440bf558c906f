// Package render paints the overlay canvas: the fitted base image plus one
// outlined rectangle per box, colored by whether the box has a result.
package render

import (
	"errors"
	"image"
	"image/color"
	"strconv"

	"go-pricetag-viewer/internal/geometry"
	"go-pricetag-viewer/pkg/models"
)

var (
	// ErrFrameIncomplete is returned when the base image or its geometry is missing
	ErrFrameIncomplete = errors.New("frame has no image or geometry")
	// ErrStaleGeometry is returned when the geometry was computed for another image
	ErrStaleGeometry = errors.New("geometry does not match the frame image")
)

// Surface is the drawing target. RasterSurface draws into memory; tests use a recorder.
type Surface interface {
	Clear()
	DrawImage(img image.Image, dst geometry.Rect)
	StrokeRect(r geometry.Rect, c color.Color, lineWidth float64)
	DrawLabel(x, y float64, text string, c color.Color)
}

// Frame is everything a repaint depends on
type Frame struct {
	Image    image.Image
	Geometry geometry.DrawGeometry
	Boxes    []models.Box
	Results  []models.AnalysisResult
}

// Style holds the colors and stroke of the overlay
type Style struct {
	Resolved  color.Color
	Pending   color.Color
	LineWidth float64
	Labels    bool
}

var (
	LimeGreen = color.RGBA{R: 50, G: 205, B: 50, A: 255}
	Red       = color.RGBA{R: 255, A: 255}
)

// DefaultStyle matches the viewer page: limegreen when analyzed, red otherwise, 2px
func DefaultStyle() Style {
	return Style{Resolved: LimeGreen, Pending: Red, LineWidth: 2, Labels: true}
}

// IsResolved reports whether any result belongs to the box id
func IsResolved(boxID int, results []models.AnalysisResult) bool {
	for _, r := range results {
		if r.BoxID == boxID {
			return true
		}
	}
	return false
}

// Render performs a full repaint of the frame onto the surface.
// The output depends only on its arguments.
func Render(s Surface, f Frame, style Style) error {
	if f.Image == nil || f.Geometry.ImgW <= 0 || f.Geometry.ImgH <= 0 {
		return ErrFrameIncomplete
	}
	b := f.Image.Bounds()
	if b.Dx() != f.Geometry.ImgW || b.Dy() != f.Geometry.ImgH {
		return ErrStaleGeometry
	}

	s.Clear()
	s.DrawImage(f.Image, f.Geometry.ImageRect())

	for _, box := range f.Boxes {
		r := f.Geometry.Project(box.Box)
		col := style.Pending
		if IsResolved(box.ID, f.Results) {
			col = style.Resolved
		}
		s.StrokeRect(r, col, style.LineWidth)
		if style.Labels {
			s.DrawLabel(r.X, r.Y-style.LineWidth, strconv.Itoa(box.ID), col)
		}
	}
	return nil
}
