package analyzer

import (
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.SaveCrops {
		t.Error("Expected SaveCrops to be true by default")
	}
	if opts.CropURLPrefix != "/static/crops" {
		t.Errorf("Expected crop prefix /static/crops, got %s", opts.CropURLPrefix)
	}
	if opts.Temperature != 0 {
		t.Errorf("Expected Temperature to be 0, got %f", opts.Temperature)
	}
	if opts.BlurThreshold != 100.0 {
		t.Errorf("Expected BlurThreshold to be 100.0, got %f", opts.BlurThreshold)
	}
	if opts.Language != "eng" {
		t.Errorf("Expected Language to be 'eng', got %s", opts.Language)
	}
}

func TestOCROptions(t *testing.T) {
	opts := OCROptions()

	if opts.BlurThreshold != 300.0 {
		t.Errorf("Expected BlurThreshold to be 300.0 for OCR, got %f", opts.BlurThreshold)
	}
	if opts.MinOCRHeight <= DefaultOptions().MinOCRHeight {
		t.Errorf("Expected OCR to upscale more aggressively, got %d", opts.MinOCRHeight)
	}
}

func TestVisionOptions(t *testing.T) {
	if got := VisionOptions("").Model; got != "llava" {
		t.Errorf("Expected default model llava, got %s", got)
	}
	if got := VisionOptions("qwen2.5vl").Model; got != "qwen2.5vl" {
		t.Errorf("Expected model qwen2.5vl, got %s", got)
	}
}

func TestOptionsBuilders(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		save     bool
		dir      string
		language string
	}{
		{"with crops", DefaultOptions().WithCrops("/tmp/crops"), true, "/tmp/crops", "eng"},
		{"empty crops dir disables saving", DefaultOptions().WithCrops(""), false, "", "eng"},
		{"without crops", DefaultOptions().WithoutCrops(), false, "./data/crops", "eng"},
		{"language", OCROptions().WithLanguage("vie"), true, "./data/crops", "vie"},
		{"empty language keeps default", OCROptions().WithLanguage(""), true, "./data/crops", "eng"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.opts.SaveCrops != tt.save {
				t.Errorf("Expected SaveCrops=%v, got %v", tt.save, tt.opts.SaveCrops)
			}
			if tt.opts.CropsDir != tt.dir {
				t.Errorf("Expected CropsDir=%q, got %q", tt.dir, tt.opts.CropsDir)
			}
			if tt.opts.Language != tt.language {
				t.Errorf("Expected Language=%q, got %q", tt.language, tt.opts.Language)
			}
		})
	}
}

func TestOptionsBuildersDoNotMutate(t *testing.T) {
	base := DefaultOptions()
	_ = base.WithoutCrops()
	_ = base.WithLanguage("vie")

	if !base.SaveCrops || base.Language != "eng" {
		t.Error("Expected builder methods to return copies")
	}
}
