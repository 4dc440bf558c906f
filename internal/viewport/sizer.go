// Package viewport maps a viewport width onto a discrete canvas resolution tier.
package viewport

import (
	"fmt"
	"math"
	"sync"

	apperrors "go-pricetag-viewer/internal/errors"
)

// Unbounded is the MaxWidth of the catch-all last tier
const Unbounded = math.MaxInt

// Tier is one row of the breakpoint table
type Tier struct {
	MaxWidth     int `json:"max_width"`
	CanvasWidth  int `json:"canvas_width"`
	CanvasHeight int `json:"canvas_height"`
}

// DefaultTiers covers phones up to large monitors, all 16:9
var DefaultTiers = []Tier{
	{MaxWidth: 800, CanvasWidth: 640, CanvasHeight: 360},
	{MaxWidth: 1200, CanvasWidth: 800, CanvasHeight: 450},
	{MaxWidth: 1600, CanvasWidth: 1024, CanvasHeight: 576},
	{MaxWidth: Unbounded, CanvasWidth: 1280, CanvasHeight: 720},
}

// Select returns the first tier whose MaxWidth is >= width, or the last
// tier when none is. An empty table yields the zero Tier.
func Select(tiers []Tier, width int) Tier {
	if len(tiers) == 0 {
		return Tier{}
	}
	for _, t := range tiers {
		if width <= t.MaxWidth {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// ValidateTiers checks ascending breakpoints, positive canvas sizes and an unbounded last tier
func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return apperrors.NewValidationError("tier table is empty", nil)
	}
	for i, t := range tiers {
		if t.CanvasWidth <= 0 || t.CanvasHeight <= 0 {
			return apperrors.NewValidationError(fmt.Sprintf("tier %d has non-positive canvas size", i), nil)
		}
		if i > 0 && t.MaxWidth <= tiers[i-1].MaxWidth {
			return apperrors.NewValidationError(fmt.Sprintf("tier %d breakpoint is not ascending", i), nil)
		}
	}
	if tiers[len(tiers)-1].MaxWidth != Unbounded {
		return apperrors.NewValidationError("last tier must be unbounded", nil)
	}
	return nil
}

// Listener is told about tier changes
type Listener func(prev, next Tier)

// Sizer tracks the viewport width and re-selects the tier on every resize.
type Sizer struct {
	mu        sync.RWMutex
	tiers     []Tier
	width     int
	current   Tier
	listeners []Listener
}

// NewSizer validates the table and selects the tier for the initial width
func NewSizer(tiers []Tier, width int) (*Sizer, error) {
	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}
	owned := append([]Tier(nil), tiers...)
	return &Sizer{tiers: owned, width: width, current: Select(owned, width)}, nil
}

// OnChange registers a listener for tier changes
func (s *Sizer) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Current returns the active tier
func (s *Sizer) Current() Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Width returns the last reported viewport width
func (s *Sizer) Width() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width
}

// Resize records a new viewport width. It returns the active tier and
// whether it changed; listeners run outside the lock only on a change.
func (s *Sizer) Resize(width int) (Tier, bool) {
	s.mu.Lock()
	prev := s.current
	s.width = width
	s.current = Select(s.tiers, width)
	next := s.current
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	if next == prev {
		return next, false
	}
	for _, l := range listeners {
		l(prev, next)
	}
	return next, true
}
