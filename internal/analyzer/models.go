package analyzer

import (
	"encoding/json"
	"strconv"
	"strings"

	"go-pricetag-viewer/pkg/models"
)

// SystemPrompt is sent to vision models ahead of every crop
const SystemPrompt = "You are a price reader. Extract prices and time discount from a price tag image. " +
	"Return strict JSON with fields: product_name (string or null), main_price (string or null), " +
	"discount_price (string or null), discount_type (string or null), " +
	"time_discount (object or null with fields: time_start (string or null), time_end (string or null)), " +
	"and what_was_read (array of strings). " +
	"Note that: Sometimes, when displaying prices, the digits in the thousands place are shown larger in size, " +
	"while the digits in the hundreds, tens, and ones places are shown smaller. " +
	"Do NOT include any other text."

// UserPrompt accompanies the crop image
const UserPrompt = "Read prices and time discount from this price tag. JSON only. Example: main price: 195.400đ"

// tagReply is the JSON a vision model is asked to return. Prices are
// sometimes emitted as numbers, so scalar fields are decoded loosely.
type tagReply struct {
	ProductName   any             `json:"product_name"`
	MainPrice     any             `json:"main_price"`
	DiscountPrice any             `json:"discount_price"`
	DiscountType  any             `json:"discount_type"`
	TimeDiscount  *timeDiscount   `json:"time_discount"`
	WhatWasRead   json.RawMessage `json:"what_was_read"`
}

type timeDiscount struct {
	TimeStart any `json:"time_start"`
	TimeEnd   any `json:"time_end"`
}

// ParseTagReply converts raw model output into a result. Code fences and a
// leading "json" tag are stripped; anything that is still not a JSON object
// is kept verbatim as the only reading.
func ParseTagReply(raw string) *models.AnalysisResult {
	text := strings.TrimSpace(raw)
	text = strings.Trim(text, "`")
	if strings.HasPrefix(strings.ToLower(text), "json") {
		text = strings.TrimSpace(text[4:])
	}

	var reply tagReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return &models.AnalysisResult{WhatWasRead: []string{text}}
	}

	result := &models.AnalysisResult{
		ProductName:   looseString(reply.ProductName),
		MainPrice:     looseString(reply.MainPrice),
		DiscountPrice: looseString(reply.DiscountPrice),
		DiscountType:  looseString(reply.DiscountType),
		WhatWasRead:   readings(reply.WhatWasRead),
	}
	if td := reply.TimeDiscount; td != nil {
		start, end := looseString(td.TimeStart), looseString(td.TimeEnd)
		if start != nil || end != nil {
			result.TimeDiscount = &models.TimeDiscount{TimeStart: start, TimeEnd: end}
		}
	}
	return result
}

func looseString(v any) *string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return &s
		}
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(t)
		return &s
	}
	return nil
}

// readings accepts an array of strings, an array of mixed scalars or a single string
func readings(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}

	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if s := looseString(item); s != nil {
				out = append(out, *s)
			}
		}
		return out
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && strings.TrimSpace(single) != "" {
		out = append(out, strings.TrimSpace(single))
	}
	return out
}
