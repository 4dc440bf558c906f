package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"go-pricetag-viewer/internal/geometry"
)

// RasterSurface draws into an in-memory RGBA canvas
type RasterSurface struct {
	dst        *image.RGBA
	background color.Color
	scaler     xdraw.Scaler
}

// NewRasterSurface creates a canvas of the given size with a white background
func NewRasterSurface(width, height int) *RasterSurface {
	return &RasterSurface{
		dst:        image.NewRGBA(image.Rect(0, 0, width, height)),
		background: color.White,
		scaler:     xdraw.CatmullRom,
	}
}

// Image returns the canvas
func (s *RasterSurface) Image() *image.RGBA {
	return s.dst
}

func (s *RasterSurface) Clear() {
	draw.Draw(s.dst, s.dst.Bounds(), image.NewUniform(s.background), image.Point{}, draw.Src)
}

func (s *RasterSurface) DrawImage(img image.Image, dst geometry.Rect) {
	r := image.Rect(
		int(math.Round(dst.X)),
		int(math.Round(dst.Y)),
		int(math.Round(dst.X+dst.W)),
		int(math.Round(dst.Y+dst.H)),
	)
	s.scaler.Scale(s.dst, r, img, img.Bounds(), xdraw.Over, nil)
}

// StrokeRect outlines r with the stroke centered on its edges, like a 2D canvas
func (s *RasterSurface) StrokeRect(r geometry.Rect, c color.Color, lineWidth float64) {
	if lineWidth <= 0 {
		return
	}
	half := lineWidth / 2
	outer := image.Rect(
		int(math.Floor(r.X-half)),
		int(math.Floor(r.Y-half)),
		int(math.Ceil(r.X+r.W+half)),
		int(math.Ceil(r.Y+r.H+half)),
	)
	inner := image.Rect(
		int(math.Ceil(r.X+half)),
		int(math.Ceil(r.Y+half)),
		int(math.Floor(r.X+r.W-half)),
		int(math.Floor(r.Y+r.H-half)),
	)
	src := image.NewUniform(c)
	if inner.Empty() {
		draw.Draw(s.dst, outer.Intersect(s.dst.Bounds()), src, image.Point{}, draw.Over)
		return
	}

	bands := []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, inner.Min.Y), // top
		image.Rect(outer.Min.X, inner.Max.Y, outer.Max.X, outer.Max.Y), // bottom
		image.Rect(outer.Min.X, inner.Min.Y, inner.Min.X, inner.Max.Y), // left
		image.Rect(inner.Max.X, inner.Min.Y, outer.Max.X, inner.Max.Y), // right
	}
	for _, band := range bands {
		draw.Draw(s.dst, band.Intersect(s.dst.Bounds()), src, image.Point{}, draw.Over)
	}
}

// DrawLabel writes text with its baseline at (x, y)
func (s *RasterSurface) DrawLabel(x, y float64, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  s.dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(int(math.Round(x)), int(math.Round(y))),
	}
	d.DrawString(text)
}

// RenderImage paints the frame onto a fresh canvas of the geometry's size
func RenderImage(f Frame, style Style) (*image.RGBA, error) {
	surface := NewRasterSurface(f.Geometry.CanvasW, f.Geometry.CanvasH)
	if err := Render(surface, f, style); err != nil {
		return nil, err
	}
	return surface.Image(), nil
}
