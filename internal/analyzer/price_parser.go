package analyzer

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/arbovm/levenshtein"

	"go-pricetag-viewer/pkg/models"
)

var (
	// 195.400đ, 1,299,000 VND, 45000, 12.99
	priceRe   = regexp.MustCompile(`\d{1,3}(?:[.,\s]\d{3})+(?:[.,]\d{1,2})?|\d{3,}(?:[.,]\d{1,2})?|\d{1,2}[.,]\d{2}`)
	percentRe = regexp.MustCompile(`(\d{1,2})\s*%`)
	timeRe    = regexp.MustCompile(`\b\d{1,2}[:hH]\d{2}\b|\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`)
)

// discountKeywords maps OCR tokens to the discount type they announce
var discountKeywords = map[string]string{
	"sale":     "sale",
	"discount": "sale",
	"giam":     "sale",
	"khuyen":   "promotion",
	"promo":    "promotion",
	"deal":     "promotion",
	"combo":    "bundle",
	"tang":     "bundle",
	"free":     "bundle",
	"flash":    "flash",
	"gio":      "time",
	"vang":     "time",
}

// ParsePriceText turns raw OCR text into a result. Prices are ranked by
// value: the largest is the main price, the smallest other one the
// discounted price. OCR noise in keywords is tolerated by edit distance.
func ParsePriceText(text string) *models.AnalysisResult {
	result := &models.AnalysisResult{WhatWasRead: []string{}}

	var prices []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		result.WhatWasRead = append(result.WhatWasRead, line)

		withoutTimes := timeRe.ReplaceAllString(line, " ")
		found := priceRe.FindAllString(withoutTimes, -1)
		prices = append(prices, found...)
		if result.ProductName == nil && len(found) == 0 && letterCount(line) >= 3 {
			result.ProductName = models.StringPtr(line)
		}
	}

	ranked := rankPrices(prices)
	if len(ranked) > 0 {
		result.MainPrice = models.StringPtr(ranked[0])
	}
	if len(ranked) > 1 {
		result.DiscountPrice = models.StringPtr(ranked[len(ranked)-1])
	}

	if m := percentRe.FindStringSubmatch(text); m != nil {
		result.DiscountType = models.StringPtr("percent_" + m[1])
	} else if kind := MatchDiscountKeyword(text); kind != "" {
		result.DiscountType = models.StringPtr(kind)
	} else if result.DiscountPrice != nil {
		result.DiscountType = models.StringPtr("sale")
	}

	if times := timeRe.FindAllString(text, 2); len(times) > 0 {
		td := &models.TimeDiscount{TimeStart: models.StringPtr(times[0])}
		if len(times) > 1 {
			td.TimeEnd = models.StringPtr(times[1])
		}
		result.TimeDiscount = td
	}
	return result
}

// keywordOrder fixes the match order so results are stable
var keywordOrder = func() []string {
	keys := make([]string, 0, len(discountKeywords))
	for k := range discountKeywords {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}()

// MatchDiscountKeyword returns the discount type of the first word that is
// within edit distance of a known keyword, or "".
func MatchDiscountKeyword(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, word := range words {
		word = foldVietnamese(word)
		if len(word) < 3 {
			continue
		}
		for _, keyword := range keywordOrder {
			if levenshtein.Distance(word, keyword) <= maxEdits(keyword) {
				return discountKeywords[keyword]
			}
		}
	}
	return ""
}

// maxEdits keeps short keywords exact
func maxEdits(keyword string) int {
	switch {
	case len(keyword) >= 8:
		return 2
	case len(keyword) >= 5:
		return 1
	default:
		return 0
	}
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// rankPrices dedupes prices and sorts them by numeric value, largest first
func rankPrices(prices []string) []string {
	type priced struct {
		text  string
		value float64
	}
	seen := map[float64]bool{}
	var list []priced
	for _, p := range prices {
		v, ok := priceValue(p)
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		list = append(list, priced{text: strings.TrimSpace(p), value: v})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].value > list[j].value })

	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.text
	}
	return out
}

// priceValue reads "195.400" as 195400 and "12.99" as 12.99
func priceValue(p string) (float64, bool) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, p)

	if i := strings.LastIndexAny(digits, ".,"); i >= 0 && len(digits)-i-1 <= 2 {
		whole := strings.NewReplacer(".", "", ",", "").Replace(digits[:i])
		v, err := strconv.ParseFloat(whole+"."+digits[i+1:], 64)
		return v, err == nil
	}
	v, err := strconv.ParseFloat(strings.NewReplacer(".", "", ",", "").Replace(digits), 64)
	return v, err == nil
}

var vietnameseFold = strings.NewReplacer(
	"á", "a", "à", "a", "ả", "a", "ã", "a", "ạ", "a",
	"ă", "a", "ắ", "a", "ằ", "a", "ẳ", "a", "ẵ", "a", "ặ", "a",
	"â", "a", "ấ", "a", "ầ", "a", "ẩ", "a", "ẫ", "a", "ậ", "a",
	"é", "e", "è", "e", "ẻ", "e", "ẽ", "e", "ẹ", "e",
	"ê", "e", "ế", "e", "ề", "e", "ể", "e", "ễ", "e", "ệ", "e",
	"í", "i", "ì", "i", "ỉ", "i", "ĩ", "i", "ị", "i",
	"ó", "o", "ò", "o", "ỏ", "o", "õ", "o", "ọ", "o",
	"ô", "o", "ố", "o", "ồ", "o", "ổ", "o", "ỗ", "o", "ộ", "o",
	"ơ", "o", "ớ", "o", "ờ", "o", "ở", "o", "ỡ", "o", "ợ", "o",
	"ú", "u", "ù", "u", "ủ", "u", "ũ", "u", "ụ", "u",
	"ư", "u", "ứ", "u", "ừ", "u", "ử", "u", "ữ", "u", "ự", "u",
	"ý", "y", "ỳ", "y", "ỷ", "y", "ỹ", "y", "ỵ", "y",
	"đ", "d",
)

// foldVietnamese strips tone marks so "giảm" matches "giam"
func foldVietnamese(s string) string {
	return vietnameseFold.Replace(s)
}
