package analyzer

// Options configures the local analysis backends
type Options struct {
	// Crop handling
	SaveCrops     bool
	CropsDir      string
	CropURLPrefix string

	// Vision model
	Model       string
	Temperature float64

	// OCR
	Language      string
	MinOCRHeight  int     // crops shorter than this are upscaled before OCR
	BlurThreshold float64 // Laplacian variance below which a crop is sharpened
	Contrast      float64 // percentage passed to imaging.AdjustContrast
}

// DefaultOptions returns default analysis options
func DefaultOptions() Options {
	return Options{
		SaveCrops:     true,
		CropsDir:      "./data/crops",
		CropURLPrefix: "/static/crops",
		Model:         "llava",
		Temperature:   0,
		Language:      "eng",
		MinOCRHeight:  64,
		BlurThreshold: 100.0,
		Contrast:      20,
	}
}

// OCROptions returns options tuned for tesseract
func OCROptions() Options {
	opts := DefaultOptions()
	opts.MinOCRHeight = 96
	opts.BlurThreshold = 300.0 // Stricter blur detection for OCR
	opts.Contrast = 30
	return opts
}

// VisionOptions returns options for a vision language model
func VisionOptions(model string) Options {
	opts := DefaultOptions()
	if model != "" {
		opts.Model = model
	}
	return opts
}

// WithCrops stores debug crops under dir
func (opts Options) WithCrops(dir string) Options {
	opts.SaveCrops = dir != ""
	opts.CropsDir = dir
	return opts
}

// WithoutCrops disables writing debug crops
func (opts Options) WithoutCrops() Options {
	opts.SaveCrops = false
	return opts
}

// WithLanguage sets the OCR language
func (opts Options) WithLanguage(lang string) Options {
	if lang != "" {
		opts.Language = lang
	}
	return opts
}
