package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ollama/ollama/api"

	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/internal/storage"
	"go-pricetag-viewer/pkg/models"
)

type fakeStore struct {
	mu     sync.Mutex
	images map[string]image.Image
	opens  int
}

func (s *fakeStore) List(ctx context.Context) ([]string, error) {
	var names []string
	for name := range s.images {
		names = append(names, name)
	}
	return names, nil
}

func (s *fakeStore) Open(ctx context.Context, filename string) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	img, ok := s.images[filename]
	if !ok {
		return nil, apperrors.NewFetchError("missing "+filename, nil)
	}
	return img, nil
}

type fakeReader struct {
	result *models.AnalysisResult
	err    error
	crops  []image.Rectangle
	closed bool
}

func (r *fakeReader) ReadTag(ctx context.Context, crop image.Image) (*models.AnalysisResult, error) {
	r.crops = append(r.crops, crop.Bounds())
	if r.err != nil {
		return nil, r.err
	}
	cp := *r.result
	return &cp, nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	return img
}

func TestParseTagReply(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		main     string
		discount string
		readings []string
		timeEnd  string
	}{
		{
			name:     "plain json",
			raw:      `{"main_price":"195.400đ","discount_price":null,"what_was_read":["195.400đ"]}`,
			main:     "195.400đ",
			readings: []string{"195.400đ"},
		},
		{
			name:     "fenced with json tag",
			raw:      "```json\n{\"main_price\":\"10.000\",\"discount_price\":\"8.000\",\"what_was_read\":[]}\n```",
			main:     "10.000",
			discount: "8.000",
			readings: []string{},
		},
		{
			name:     "numeric prices",
			raw:      `{"main_price":45000,"what_was_read":["45000", 12]}`,
			main:     "45000",
			readings: []string{"45000", "12"},
		},
		{
			name:     "time discount",
			raw:      `{"main_price":"99.000","time_discount":{"time_start":"18:00","time_end":"21:00"},"what_was_read":"99.000"}`,
			main:     "99.000",
			readings: []string{"99.000"},
			timeEnd:  "21:00",
		},
		{
			name:     "not json",
			raw:      "I can see a price of 12.000",
			readings: []string{"I can see a price of 12.000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseTagReply(tt.raw)
			if got := deref(r.MainPrice); got != tt.main {
				t.Errorf("Expected main price %q, got %q", tt.main, got)
			}
			if got := deref(r.DiscountPrice); got != tt.discount {
				t.Errorf("Expected discount price %q, got %q", tt.discount, got)
			}
			if strings.Join(r.WhatWasRead, "|") != strings.Join(tt.readings, "|") || r.WhatWasRead == nil {
				t.Errorf("Expected readings %v, got %v", tt.readings, r.WhatWasRead)
			}
			if tt.timeEnd != "" {
				if r.TimeDiscount == nil || deref(r.TimeDiscount.TimeEnd) != tt.timeEnd {
					t.Errorf("Expected time end %q, got %+v", tt.timeEnd, r.TimeDiscount)
				}
			} else if r.TimeDiscount != nil {
				t.Errorf("Expected no time discount, got %+v", r.TimeDiscount)
			}
		})
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func TestParsePriceText(t *testing.T) {
	text := "SUA TUOI VINAMILK\n\n  GIẢM GIÁ  \n32.500đ\n27.900đ\n"
	r := ParsePriceText(text)

	if got := deref(r.ProductName); got != "SUA TUOI VINAMILK" {
		t.Errorf("Expected product name, got %q", got)
	}
	if got := deref(r.MainPrice); got != "32.500" {
		t.Errorf("Expected main price 32.500, got %q", got)
	}
	if got := deref(r.DiscountPrice); got != "27.900" {
		t.Errorf("Expected discount price 27.900, got %q", got)
	}
	if got := deref(r.DiscountType); got != "sale" {
		t.Errorf("Expected discount type sale, got %q", got)
	}
	if len(r.WhatWasRead) != 4 {
		t.Errorf("Expected 4 non-empty lines, got %v", r.WhatWasRead)
	}
}

func TestParsePriceText_PercentAndTimes(t *testing.T) {
	r := ParsePriceText("FLASH SALE -20%\n18:00 - 21:00\n150.000")

	if got := deref(r.DiscountType); got != "percent_20" {
		t.Errorf("Expected percent_20, got %q", got)
	}
	if got := deref(r.MainPrice); got != "150.000" {
		t.Errorf("Expected main price 150.000, got %q", got)
	}
	if r.DiscountPrice != nil {
		t.Errorf("Expected no discount price, got %q", *r.DiscountPrice)
	}
	if r.TimeDiscount == nil || deref(r.TimeDiscount.TimeStart) != "18:00" || deref(r.TimeDiscount.TimeEnd) != "21:00" {
		t.Errorf("Expected 18:00-21:00, got %+v", r.TimeDiscount)
	}
}

func TestParsePriceText_Empty(t *testing.T) {
	r := ParsePriceText("   \n")
	if r.MainPrice != nil || r.DiscountType != nil || r.WhatWasRead == nil || len(r.WhatWasRead) != 0 {
		t.Errorf("Expected empty result, got %+v", r)
	}
}

func TestMatchDiscountKeyword(t *testing.T) {
	tests := map[string]string{
		"DISC0UNT":      "", // digits split the word
		"DISCOUMT 10k":  "sale",
		"khuyến mãi":    "promotion",
		"khuyen":        "promotion",
		"Combo 2 hộp":   "bundle",
		"hàng mới":      "",
		"giờ vàng":      "time",
		"nothing here":  "",
		"promo!":        "promotion",
		"prom0":         "promotion", // "prom" is one edit from "promo"
		"FLASH":         "flash",
		"flasb":         "flash",
		"sale":          "sale",
		"sole":          "",
		"giảm 50k":      "sale",
		"":              "",
		"tang kem ly":   "bundle",
		"free shipping": "bundle",
	}
	for text, want := range tests {
		if got := MatchDiscountKeyword(text); got != want {
			t.Errorf("MatchDiscountKeyword(%q) = %q, want %q", text, got, want)
		}
	}
}

func TestPriceValue(t *testing.T) {
	tests := map[string]float64{
		"195.400":   195400,
		"1,299,000": 1299000,
		"12.99":     12.99,
		"45000":     45000,
		"2 100":     2100,
	}
	for in, want := range tests {
		got, ok := priceValue(in)
		if !ok || got != want {
			t.Errorf("priceValue(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}
}

func TestCropBox(t *testing.T) {
	img := solid(800, 600)

	crop, err := CropBox(img, models.NormBox{X: 0.5, Y: 0.5, W: 0.25, H: 0.2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if crop.Bounds().Dx() != 200 || crop.Bounds().Dy() != 120 {
		t.Errorf("Expected 200x120 crop, got %v", crop.Bounds())
	}

	edge, err := CropBox(img, models.NormBox{X: 1, Y: 1, W: 0.1, H: 0.1})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if edge.Bounds().Dx() != 40 || edge.Bounds().Dy() != 30 {
		t.Errorf("Expected clipped 40x30 crop, got %v", edge.Bounds())
	}

	if _, err := CropBox(img, models.NormBox{X: 0.5, Y: 0.5, W: 0, H: 0}); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error for empty box, got %v", err)
	}
}

func TestCropWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crops")
	w, err := NewCropWriter(dir, "/static/crops")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	link, err := w.Save(solid(10, 10), "shelf/IMG_01.jpg", 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if link != "/static/crops/IMG_01_box3.png" {
		t.Errorf("Unexpected link %s", link)
	}
	if _, err := os.Stat(filepath.Join(dir, "IMG_01_box3.png")); err != nil {
		t.Errorf("Expected crop file on disk: %v", err)
	}
}

func TestImageCache(t *testing.T) {
	store := &fakeStore{images: map[string]image.Image{
		"a.jpg": solid(4, 4),
		"b.jpg": solid(4, 4),
		"c.jpg": solid(4, 4),
	}}
	cache, err := NewImageCache(store, 2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ctx := context.Background()

	for _, name := range []string{"a.jpg", "a.jpg", "b.jpg", "a.jpg"} {
		if _, err := cache.Get(ctx, name); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if store.opens != 2 {
		t.Errorf("Expected 2 store opens, got %d", store.opens)
	}

	// c evicts b, the least recently used
	cache.Get(ctx, "c.jpg")
	cache.Get(ctx, "b.jpg")
	if store.opens != 4 {
		t.Errorf("Expected 4 store opens after eviction, got %d", store.opens)
	}

	if _, err := cache.Get(ctx, "missing.jpg"); !apperrors.IsType(err, apperrors.ErrorTypeFetch) {
		t.Errorf("Expected fetch error, got %v", err)
	}
	if cache.Len() != 2 {
		t.Errorf("Expected 2 cached images, got %d", cache.Len())
	}
	cache.Purge()
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache after purge, got %d", cache.Len())
	}
}

func TestLocalAnalyzer(t *testing.T) {
	store := &fakeStore{images: map[string]image.Image{"IMG_7.jpg": solid(800, 600)}}
	cache, _ := NewImageCache(store, 4)
	crops, err := NewCropWriter(t.TempDir(), "/static/crops")
	if err != nil {
		t.Fatal(err)
	}
	reader := &fakeReader{result: &models.AnalysisResult{
		MainPrice:   models.StringPtr("10.000"),
		WhatWasRead: []string{"10.000"},
	}}
	a := NewLocalAnalyzer(cache, reader, crops)

	result, err := a.AnalyzeBox(context.Background(), models.AnalyzeRequest{
		Image: "IMG_7.jpg",
		Box:   models.NormBox{X: 0.5, Y: 0.5, W: 0.25, H: 0.2},
		BoxID: 4,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.BoxID != 4 {
		t.Errorf("Expected box id 4, got %d", result.BoxID)
	}
	want := []string{"debug_crop: /static/crops/IMG_7_box4.png", "10.000"}
	if strings.Join(result.WhatWasRead, "|") != strings.Join(want, "|") {
		t.Errorf("Expected %v, got %v", want, result.WhatWasRead)
	}
	if len(reader.crops) != 1 || reader.crops[0].Dx() != 200 || reader.crops[0].Dy() != 120 {
		t.Errorf("Unexpected crops %v", reader.crops)
	}

	if err := a.Close(); err != nil || !reader.closed {
		t.Errorf("Expected reader to be closed, err=%v", err)
	}
}

func TestLocalAnalyzer_Errors(t *testing.T) {
	store := &fakeStore{images: map[string]image.Image{"a.jpg": solid(100, 100)}}
	cache, _ := NewImageCache(store, 4)
	box := models.NormBox{X: 0.5, Y: 0.5, W: 0.5, H: 0.5}

	failing := NewLocalAnalyzer(cache, &fakeReader{err: errors.New("model offline")}, nil)
	_, err := failing.AnalyzeBox(context.Background(), models.AnalyzeRequest{Image: "a.jpg", Box: box, BoxID: 1})
	if !apperrors.IsType(err, apperrors.ErrorTypeAnalysis) {
		t.Errorf("Expected analysis error, got %v", err)
	}

	ok := NewLocalAnalyzer(cache, &fakeReader{result: &models.AnalysisResult{}}, nil)
	if _, err := ok.AnalyzeBox(context.Background(), models.AnalyzeRequest{Box: box}); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error for missing image, got %v", err)
	}
	if _, err := ok.AnalyzeBox(context.Background(), models.AnalyzeRequest{Image: "nope.jpg", Box: box}); !apperrors.IsType(err, apperrors.ErrorTypeFetch) {
		t.Errorf("Expected fetch error for missing image, got %v", err)
	}

	result, err := ok.AnalyzeBox(context.Background(), models.AnalyzeRequest{Image: "a.jpg", Box: box, BoxID: 9})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.WhatWasRead == nil || len(result.WhatWasRead) != 0 {
		t.Errorf("Expected empty readings without crops, got %v", result.WhatWasRead)
	}
}

func TestRemoteAnalyzer(t *testing.T) {
	var got models.AnalyzeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze-price-tag" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"box_id":2,"main_price":"9.900","what_was_read":null}`))
	}))
	defer server.Close()

	a := NewRemoteAnalyzer(storage.NewBackendClient(server.URL))
	result, err := a.AnalyzeBox(context.Background(), models.AnalyzeRequest{
		Image: "x.jpg",
		Box:   models.NormBox{X: 0.1, Y: 0.2, W: 0.3, H: 0.4},
		BoxID: 2,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got.Image != "x.jpg" || got.BoxID != 2 || got.Box.W != 0.3 {
		t.Errorf("Unexpected request body %+v", got)
	}
	if result.BoxID != 2 || deref(result.MainPrice) != "9.900" || result.WhatWasRead == nil {
		t.Errorf("Unexpected result %+v", result)
	}
}

func TestRemoteAnalyzer_MismatchedBoxID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"box_id":0,"what_was_read":["x"]}`))
	}))
	defer server.Close()

	a := NewRemoteAnalyzer(storage.NewBackendClient(server.URL))
	result, err := a.AnalyzeBox(context.Background(), models.AnalyzeRequest{Image: "x.jpg", BoxID: 5})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.BoxID != 5 {
		t.Errorf("Expected requested box id 5, got %d", result.BoxID)
	}
}

type fakeChat struct {
	req     *api.ChatRequest
	replies []string
	err     error
}

func (c *fakeChat) Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	c.req = req
	if c.err != nil {
		return c.err
	}
	for _, reply := range c.replies {
		if err := fn(api.ChatResponse{Message: api.Message{Role: "assistant", Content: reply}}); err != nil {
			return err
		}
	}
	return nil
}

func TestOllamaReader(t *testing.T) {
	chat := &fakeChat{replies: []string{"```json\n{\"main_price\":", "\"19.000\",\"what_was_read\":[\"19.000\"]}\n```"}}
	r := &OllamaReader{client: chat, model: "llava"}

	result, err := r.ReadTag(context.Background(), solid(20, 10))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if deref(result.MainPrice) != "19.000" {
		t.Errorf("Expected main price 19.000, got %+v", result)
	}

	if chat.req.Model != "llava" || len(chat.req.Messages) != 2 {
		t.Fatalf("Unexpected request %+v", chat.req)
	}
	if chat.req.Messages[0].Role != "system" || chat.req.Messages[0].Content != SystemPrompt {
		t.Error("Expected system prompt first")
	}
	if len(chat.req.Messages[1].Images) != 1 {
		t.Error("Expected the crop to be attached")
	}
	if chat.req.Stream == nil || *chat.req.Stream {
		t.Error("Expected non-streaming request")
	}
}

func TestOllamaReader_Errors(t *testing.T) {
	r := &OllamaReader{client: &fakeChat{err: errors.New("connection refused")}, model: "llava"}
	if _, err := r.ReadTag(context.Background(), solid(4, 4)); !apperrors.IsType(err, apperrors.ErrorTypeAnalysis) {
		t.Errorf("Expected analysis error, got %v", err)
	}

	empty := &OllamaReader{client: &fakeChat{replies: []string{"  "}}, model: "llava"}
	if _, err := empty.ReadTag(context.Background(), solid(4, 4)); !apperrors.IsType(err, apperrors.ErrorTypeAnalysis) {
		t.Errorf("Expected analysis error for empty reply, got %v", err)
	}

	if _, err := NewOllamaReader("not a url", DefaultOptions()); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if _, err := NewOllamaReader("http://localhost:11434/api/chat", DefaultOptions()); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLaplacianVariance(t *testing.T) {
	flat := solid(32, 32)
	if v := LaplacianVariance(flat); v != 0 {
		t.Errorf("Expected zero variance for a flat image, got %f", v)
	}

	checker := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if (x+y)%2 == 0 {
				checker.Set(x, y, color.White)
			} else {
				checker.Set(x, y, color.Black)
			}
		}
	}
	if v := LaplacianVariance(checker); v <= 0 {
		t.Errorf("Expected positive variance for a checkerboard, got %f", v)
	}

	if v := LaplacianVariance(solid(2, 2)); v != 0 {
		t.Errorf("Expected zero for a tiny image, got %f", v)
	}
}

func TestPrepareForOCR(t *testing.T) {
	opts := OCROptions()
	out := PrepareForOCR(solid(50, 20), opts)
	if out.Bounds().Dy() != opts.MinOCRHeight {
		t.Errorf("Expected upscale to %d, got %d", opts.MinOCRHeight, out.Bounds().Dy())
	}
	if out.Bounds().Dx() != 240 {
		t.Errorf("Expected width to keep aspect ratio (240), got %d", out.Bounds().Dx())
	}

	tall := PrepareForOCR(solid(50, 200), opts)
	if tall.Bounds().Dy() != 200 {
		t.Errorf("Expected no resize for tall crops, got %d", tall.Bounds().Dy())
	}
}
