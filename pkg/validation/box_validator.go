package validation

import (
	"fmt"
	"math"

	apperrors "go-pricetag-viewer/internal/errors"
	"go-pricetag-viewer/pkg/models"
)

// BoxThresholds defines the accepted range of a normalized box
type BoxThresholds struct {
	// Smallest width or height fraction accepted
	MinExtent float64
	// Largest width or height fraction accepted
	MaxExtent float64
}

// DefaultBoxThresholds returns the default box thresholds
func DefaultBoxThresholds() BoxThresholds {
	return BoxThresholds{
		MinExtent: 1e-6,
		MaxExtent: 1.0,
	}
}

// BoxValidator checks boxes received from the label source
type BoxValidator struct {
	thresholds BoxThresholds
}

// NewBoxValidator creates a box validator with default thresholds
func NewBoxValidator() *BoxValidator {
	return &BoxValidator{thresholds: DefaultBoxThresholds()}
}

// NewBoxValidatorWithThresholds creates a box validator with custom thresholds
func NewBoxValidatorWithThresholds(thresholds BoxThresholds) *BoxValidator {
	return &BoxValidator{thresholds: thresholds}
}

// BoxIssue describes why a box was rejected
type BoxIssue struct {
	BoxID   int    `json:"box_id"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i BoxIssue) String() string {
	return fmt.Sprintf("box %d: %s %s", i.BoxID, i.Field, i.Message)
}

// ValidateBox returns the issues of a single box; nil means the box is usable.
func (v *BoxValidator) ValidateBox(box models.Box) []BoxIssue {
	var issues []BoxIssue
	check := func(field string, value, lo, hi float64) {
		switch {
		case math.IsNaN(value) || math.IsInf(value, 0):
			issues = append(issues, BoxIssue{BoxID: box.ID, Field: field, Message: "is not finite"})
		case value < lo || value > hi:
			issues = append(issues, BoxIssue{
				BoxID:   box.ID,
				Field:   field,
				Message: fmt.Sprintf("%.6g outside [%g, %g]", value, lo, hi),
			})
		}
	}

	check("xn", box.Box.X, 0, 1)
	check("yn", box.Box.Y, 0, 1)
	check("wn", box.Box.W, v.thresholds.MinExtent, v.thresholds.MaxExtent)
	check("hn", box.Box.H, v.thresholds.MinExtent, v.thresholds.MaxExtent)
	return issues
}

// ValidateBoxSet filters out malformed boxes, keeping set order.
// Duplicate ids make the whole set unusable and return a validation error.
func (v *BoxValidator) ValidateBoxSet(boxes []models.Box) ([]models.Box, []BoxIssue, error) {
	seen := make(map[int]struct{}, len(boxes))
	valid := make([]models.Box, 0, len(boxes))
	var rejected []BoxIssue

	for _, box := range boxes {
		if _, dup := seen[box.ID]; dup {
			return nil, nil, apperrors.NewValidationError(fmt.Sprintf("duplicate box id %d", box.ID), nil)
		}
		seen[box.ID] = struct{}{}

		if issues := v.ValidateBox(box); len(issues) > 0 {
			rejected = append(rejected, issues...)
			continue
		}
		valid = append(valid, box)
	}
	return valid, rejected, nil
}
