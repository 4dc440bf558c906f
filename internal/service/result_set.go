package service

import (
	"sort"
	"strings"
	"sync"

	"github.com/codycollier/wer"

	"go-pricetag-viewer/pkg/models"
)

// MergeOutcome describes what a merge did to the set
type MergeOutcome struct {
	// Replaced is true when a result for the same box existed
	Replaced bool `json:"replaced"`
	// Drift is the word error rate of the new readings against the replaced
	// ones; 0 when nothing was replaced
	Drift float64 `json:"drift"`
}

// ResultSet holds at most one analysis result per box id
type ResultSet struct {
	mu      sync.RWMutex
	results []models.AnalysisResult
}

// NewResultSet creates an empty set
func NewResultSet() *ResultSet {
	return &ResultSet{results: make([]models.AnalysisResult, 0)}
}

// Merge removes any result with the same box id, then inserts r
func (s *ResultSet) Merge(r models.AnalysisResult) MergeOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	var outcome MergeOutcome
	for i, existing := range s.results {
		if existing.BoxID == r.BoxID {
			outcome.Replaced = true
			outcome.Drift = ReadingDrift(existing, r)
			s.results = append(s.results[:i], s.results[i+1:]...)
			break
		}
	}
	s.results = append(s.results, r)
	return outcome
}

// Has reports whether the box has a result
func (s *ResultSet) Has(boxID int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.BoxID == boxID {
			return true
		}
	}
	return false
}

// Get returns the result of a box
func (s *ResultSet) Get(boxID int) (models.AnalysisResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.BoxID == boxID {
			return r, true
		}
	}
	return models.AnalysisResult{}, false
}

// Snapshot returns a copy ordered by box id
func (s *ResultSet) Snapshot() []models.AnalysisResult {
	s.mu.RLock()
	out := append([]models.AnalysisResult(nil), s.results...)
	s.mu.RUnlock()

	if out == nil {
		out = []models.AnalysisResult{}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BoxID < out[j].BoxID })
	return out
}

// Clear empties the set
func (s *ResultSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = s.results[:0:0]
}

// Len is the number of results
func (s *ResultSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// ReadingDrift compares the textual readings of two results of the same box.
// Debug crop links are ignored.
func ReadingDrift(previous, next models.AnalysisResult) float64 {
	ref := readingWords(previous)
	cand := readingWords(next)
	if len(ref) == 0 {
		if len(cand) == 0 {
			return 0
		}
		return 1
	}
	rate, _ := wer.WER(ref, cand)
	return rate
}

func readingWords(r models.AnalysisResult) []string {
	var words []string
	for _, line := range r.Readings() {
		words = append(words, strings.Fields(strings.ToLower(line))...)
	}
	return words
}
