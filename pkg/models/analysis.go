package models

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// DebugCropPrefix marks a what_was_read entry that points at a debug crop asset
const DebugCropPrefix = "debug_crop: "

// NormBox is a bounding box normalized to the image's intrinsic size.
// X and Y are the box center, W and H the width and height fractions.
// On the wire it is the array [xn, yn, wn, hn].
type NormBox struct {
	X float64
	Y float64
	W float64
	H float64
}

// MarshalJSON encodes the box as [xn, yn, wn, hn]
func (b NormBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X, b.Y, b.W, b.H})
}

// UnmarshalJSON decodes the [xn, yn, wn, hn] array form
func (b *NormBox) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("box must be an array of numbers: %w", err)
	}
	if len(raw) != 4 {
		return fmt.Errorf("box must have 4 values, got %d", len(raw))
	}
	b.X, b.Y, b.W, b.H = raw[0], raw[1], raw[2], raw[3]
	return nil
}

// Box is one detection box of an image's box set
type Box struct {
	ID    int     `json:"id"`
	Box   NormBox `json:"box"`
	Label string  `json:"label,omitempty"`
}

// TimeDiscount is the validity window of a time-limited discount
type TimeDiscount struct {
	TimeStart *string `json:"time_start"`
	TimeEnd   *string `json:"time_end"`
}

// AnalysisResult is the structured reading of one price tag box
type AnalysisResult struct {
	BoxID         int           `json:"box_id"`
	ProductName   *string       `json:"product_name"`
	MainPrice     *string       `json:"main_price"`
	DiscountPrice *string       `json:"discount_price"`
	DiscountType  *string       `json:"discount_type"`
	TimeDiscount  *TimeDiscount `json:"time_discount,omitempty"`
	WhatWasRead   []string      `json:"what_was_read"`
}

// AnalyzeRequest is the body of a per-box analysis call
type AnalyzeRequest struct {
	Image string  `json:"image"`
	Box   NormBox `json:"box"`
	BoxID int     `json:"box_id"`
}

// ReadItemKind distinguishes literal readings from debug crop links
type ReadItemKind string

const (
	ReadItemText ReadItemKind = "text"
	ReadItemLink ReadItemKind = "link"
)

// ReadItem is a what_was_read entry prepared for display
type ReadItem struct {
	Kind ReadItemKind `json:"kind"`
	Text string       `json:"text,omitempty"`
	Href string       `json:"href,omitempty"`
}

// ParseReadItem turns a raw what_was_read string into a text item or,
// for debug_crop entries, a link resolved against baseURL.
func ParseReadItem(s, baseURL string) ReadItem {
	if rest, ok := strings.CutPrefix(s, DebugCropPrefix); ok {
		return ReadItem{Kind: ReadItemLink, Href: strings.TrimRight(baseURL, "/") + rest}
	}
	return ReadItem{Kind: ReadItemText, Text: s}
}

// ReadItems resolves every what_was_read entry of the result
func (r AnalysisResult) ReadItems(baseURL string) []ReadItem {
	items := make([]ReadItem, 0, len(r.WhatWasRead))
	for _, s := range r.WhatWasRead {
		items = append(items, ParseReadItem(s, baseURL))
	}
	return items
}

// Readings returns what_was_read without debug crop entries
func (r AnalysisResult) Readings() []string {
	out := make([]string, 0, len(r.WhatWasRead))
	for _, s := range r.WhatWasRead {
		if !strings.HasPrefix(s, DebugCropPrefix) {
			out = append(out, s)
		}
	}
	return out
}

// Stem returns the filename without its extension; box sets are keyed by it.
func Stem(filename string) string {
	return strings.TrimSuffix(filename, path.Ext(filename))
}

// StringPtr is a convenience for optional string fields
func StringPtr(s string) *string {
	return &s
}
