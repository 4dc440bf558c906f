package service

import (
	"sync"
	"testing"

	"go-pricetag-viewer/pkg/models"
)

func result(id int, read ...string) models.AnalysisResult {
	return models.AnalysisResult{BoxID: id, WhatWasRead: read}
}

func TestResultSet_MergeLastWriteWins(t *testing.T) {
	s := NewResultSet()

	if out := s.Merge(result(2, "milk 1l")); out.Replaced {
		t.Error("Expected first merge not to replace")
	}
	s.Merge(result(1, "bread"))
	out := s.Merge(result(2, "milk 2l"))

	if !out.Replaced {
		t.Error("Expected second merge for box 2 to replace")
	}
	if out.Drift != 0.5 {
		t.Errorf("Expected drift 0.5, got %v", out.Drift)
	}
	if s.Len() != 2 {
		t.Fatalf("Expected 2 results, got %d", s.Len())
	}

	got, ok := s.Get(2)
	if !ok || got.WhatWasRead[0] != "milk 2l" {
		t.Errorf("Expected latest result for box 2, got %+v", got)
	}
}

func TestResultSet_SnapshotSorted(t *testing.T) {
	s := NewResultSet()
	for _, id := range []int{5, 1, 3} {
		s.Merge(result(id))
	}

	snap := s.Snapshot()
	for i, want := range []int{1, 3, 5} {
		if snap[i].BoxID != want {
			t.Errorf("Index %d: expected box %d, got %d", i, want, snap[i].BoxID)
		}
	}

	snap[0].BoxID = 42
	if s.Has(42) {
		t.Error("Expected snapshot to be a copy")
	}
}

func TestResultSet_ClearAndEmpty(t *testing.T) {
	s := NewResultSet()
	s.Merge(result(1))
	s.Clear()

	if s.Len() != 0 || s.Has(1) {
		t.Error("Expected empty set after Clear")
	}
	if snap := s.Snapshot(); snap == nil || len(snap) != 0 {
		t.Errorf("Expected empty non-nil snapshot, got %#v", snap)
	}
}

func TestReadingDrift(t *testing.T) {
	tests := []struct {
		name string
		old  []string
		new  []string
		want float64
	}{
		{"identical", []string{"Milk 1L", "29.900"}, []string{"milk 1l", "29.900"}, 0},
		{"both empty", nil, nil, 0},
		{"from nothing", nil, []string{"milk"}, 1},
		{"crop links ignored", []string{"debug_crop: /static/crops/a_box1.png", "milk"}, []string{"milk"}, 0},
		{"one of two words changed", []string{"milk 1l"}, []string{"milk 2l"}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReadingDrift(result(1, tt.old...), result(1, tt.new...))
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestResultSet_ConcurrentMerge(t *testing.T) {
	s := NewResultSet()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.Merge(result(id % 10))
		}(i)
	}
	wg.Wait()

	if s.Len() != 10 {
		t.Errorf("Expected one result per box id, got %d", s.Len())
	}
}
