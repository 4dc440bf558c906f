package analyzer

import (
	"image"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

// LaplacianVariance measures sharpness of the grayscale version of img.
// Low values mean a blurry crop.
func LaplacianVariance(img image.Image) float64 {
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return 0
	}

	at := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x*4])
	}

	// Laplacian kernel: [0, 1, 0; 1, -4, 1; 0, 1, 0]
	data := make([]float64, 0, (width-2)*(height-2))
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			laplacian := -4*at(x, y) + at(x, y-1) + at(x, y+1) + at(x-1, y) + at(x+1, y)
			data = append(data, laplacian)
		}
	}
	return stat.Variance(data, nil)
}

// PrepareForOCR converts a crop to grayscale, upscales short crops and
// sharpens blurry ones before contrast stretching.
func PrepareForOCR(crop image.Image, opts Options) *image.NRGBA {
	img := imaging.Grayscale(crop)

	if opts.MinOCRHeight > 0 && img.Bounds().Dy() < opts.MinOCRHeight {
		img = imaging.Resize(img, 0, opts.MinOCRHeight, imaging.Lanczos)
	}
	if opts.BlurThreshold > 0 && LaplacianVariance(img) < opts.BlurThreshold {
		img = imaging.Sharpen(img, 1.0)
	}
	if opts.Contrast != 0 {
		img = imaging.AdjustContrast(img, opts.Contrast)
	}
	return img
}
