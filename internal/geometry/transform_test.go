package geometry

import (
	"image"
	"math"
	"math/rand"
	"testing"

	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/pkg/models"
)

const eps = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestFit_LetterboxedLandscape(t *testing.T) {
	g, err := Fit(800, 600, 640, 360)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !near(g.Scale, 0.6) || !near(g.OffsetX, 80) || !near(g.OffsetY, 0) {
		t.Errorf("Expected scale=0.6 offset=(80,0), got %+v", g)
	}
	if !near(g.DrawWidth(), 480) || !near(g.DrawHeight(), 360) {
		t.Errorf("Expected draw size 480x360, got %vx%v", g.DrawWidth(), g.DrawHeight())
	}

	r := g.Project(models.NormBox{X: 0.5, Y: 0.5, W: 0.25, H: 0.2})
	if !near(r.X, 260) || !near(r.Y, 144) || !near(r.W, 120) || !near(r.H, 72) {
		t.Errorf("Expected rect (260,144,120,72), got %+v", r)
	}
}

func TestFit_PillarboxedAndExact(t *testing.T) {
	tests := []struct {
		name                         string
		imgW, imgH, canvasW, canvasH int
		scale, offX, offY            float64
	}{
		{"tall image", 600, 1200, 1280, 720, 0.6, 460, 0},
		{"wide image", 2000, 500, 1000, 600, 0.5, 0, 175},
		{"exact fit", 1280, 720, 1280, 720, 1, 0, 0},
		{"upscale", 320, 180, 640, 360, 2, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Fit(tt.imgW, tt.imgH, tt.canvasW, tt.canvasH)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !near(g.Scale, tt.scale) || !near(g.OffsetX, tt.offX) || !near(g.OffsetY, tt.offY) {
				t.Errorf("Expected scale=%v offset=(%v,%v), got %+v", tt.scale, tt.offX, tt.offY, g)
			}
			img := g.ImageRect()
			if img.X < -eps || img.Y < -eps ||
				img.X+img.W > float64(tt.canvasW)+eps || img.Y+img.H > float64(tt.canvasH)+eps {
				t.Errorf("Image rect %+v escapes canvas %dx%d", img, tt.canvasW, tt.canvasH)
			}
		})
	}
}

func TestFit_DegenerateInput(t *testing.T) {
	tests := []struct {
		name                         string
		imgW, imgH, canvasW, canvasH int
	}{
		{"zero image width", 0, 600, 640, 360},
		{"zero image height", 800, 0, 640, 360},
		{"negative image", -1, 600, 640, 360},
		{"zero canvas", 800, 600, 0, 360},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Fit(tt.imgW, tt.imgH, tt.canvasW, tt.canvasH)
			if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			if g != (DrawGeometry{}) {
				t.Errorf("Expected zero geometry on error, got %+v", g)
			}
		})
	}
}

func TestFitImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 800, 600))
	g, err := FitImage(img, 640, 360)
	if err != nil || g.ImgW != 800 || g.ImgH != 600 {
		t.Errorf("Unexpected geometry %+v err=%v", g, err)
	}
	if _, err := FitImage(nil, 640, 360); err == nil {
		t.Error("Expected error for nil image")
	}
	if _, err := FitImage(image.NewRGBA(image.Rect(0, 0, 0, 0)), 640, 360); err == nil {
		t.Error("Expected error for empty image")
	}
}

func TestProject_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		imgW, imgH := 1+rng.Intn(5000), 1+rng.Intn(5000)
		canvasW, canvasH := 1+rng.Intn(2000), 1+rng.Intn(2000)
		box := models.NormBox{X: rng.Float64(), Y: rng.Float64(), W: rng.Float64(), H: rng.Float64()}

		g1, err1 := Fit(imgW, imgH, canvasW, canvasH)
		g2, err2 := Fit(imgW, imgH, canvasW, canvasH)
		if err1 != nil || err2 != nil {
			t.Fatalf("Unexpected errors: %v %v", err1, err2)
		}
		if g1 != g2 {
			t.Fatalf("Geometry differs between calls: %+v vs %+v", g1, g2)
		}
		r1, r2 := g1.Project(box), g2.Project(box)
		if r1 != r2 {
			t.Fatalf("Projection differs between calls: %+v vs %+v", r1, r2)
		}
		for _, v := range []float64{g1.Scale, g1.OffsetX, g1.OffsetY, r1.X, r1.Y, r1.W, r1.H} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("Non-finite value in %+v / %+v", g1, r1)
			}
		}
	}
}

func TestProject_FullImageBoxCoversImageRect(t *testing.T) {
	g, err := Fit(1000, 400, 800, 450)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	r := g.Project(models.NormBox{X: 0.5, Y: 0.5, W: 1, H: 1})
	img := g.ImageRect()
	if !near(r.X, img.X) || !near(r.Y, img.Y) || !near(r.W, img.W) || !near(r.H, img.H) {
		t.Errorf("Expected full box %+v to match image rect %+v", r, img)
	}
}

func TestPixelRect(t *testing.T) {
	tests := []struct {
		name string
		box  models.NormBox
		want image.Rectangle
	}{
		{"centered", models.NormBox{X: 0.5, Y: 0.5, W: 0.25, H: 0.2}, image.Rect(300, 240, 500, 360)},
		{"overhang top-left", models.NormBox{X: 0, Y: 0, W: 0.1, H: 0.1}, image.Rect(0, 0, 80, 60)},
		{"overhang bottom-right", models.NormBox{X: 1, Y: 1, W: 0.1, H: 0.1}, image.Rect(760, 570, 800, 600)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PixelRect(tt.box, 800, 600)
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
			if !got.In(image.Rect(0, 0, 800, 600)) {
				t.Errorf("Rect %v escapes image", got)
			}
		})
	}
}
