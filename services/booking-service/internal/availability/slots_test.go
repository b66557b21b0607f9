package availability

import (
	"testing"
	"time"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC) // a Monday
}

func TestCandidatesFullDay(t *testing.T) {
	// 09:00-17:00, 30 min service: starts every 15 min from 09:00 to 16:30.
	slots := Candidates([]Interval{{Start: at(9, 0), End: at(17, 0)}}, 30*time.Minute)

	if len(slots) != 31 {
		t.Fatalf("got %d slots, want 31", len(slots))
	}
	if !slots[0].Start.Equal(at(9, 0)) {
		t.Errorf("first slot starts %v", slots[0].Start)
	}
	last := slots[len(slots)-1]
	if !last.Start.Equal(at(16, 30)) || !last.End.Equal(at(17, 0)) {
		t.Errorf("last slot %v-%v, want 16:30-17:00", last.Start, last.End)
	}
}

func TestCandidatesGridAlignmentAndDuration(t *testing.T) {
	duration := 45 * time.Minute
	start := at(9, 0)
	slots := Candidates([]Interval{{Start: start, End: at(12, 0)}}, duration)

	for _, s := range slots {
		if off := s.Start.Sub(start) % GridStep; off != 0 {
			t.Errorf("slot %v not on grid (offset %v)", s.Start, off)
		}
		if s.End.Sub(s.Start) != duration {
			t.Errorf("slot %v-%v has wrong duration", s.Start, s.End)
		}
		if s.End.After(at(12, 0)) {
			t.Errorf("slot %v-%v spills past interval end", s.Start, s.End)
		}
	}
}

func TestCandidatesNoFit(t *testing.T) {
	// 45 min service in a 50 min interval: no cursor position fits.
	slots := Candidates([]Interval{{Start: at(9, 0), End: at(9, 50)}}, 45*time.Minute)
	if len(slots) != 1 {
		// Only 09:00-09:45 fits; 09:15 would end 10:00 past 09:50.
		t.Fatalf("got %d slots, want 1", len(slots))
	}

	slots = Candidates([]Interval{{Start: at(9, 0), End: at(9, 40)}}, 45*time.Minute)
	if len(slots) != 0 {
		t.Fatalf("got %d slots, want 0", len(slots))
	}
}

func TestCandidatesMultipleIntervals(t *testing.T) {
	slots := Candidates([]Interval{
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(14, 0), End: at(15, 0)},
	}, 30*time.Minute)

	want := []time.Time{at(9, 0), at(9, 15), at(9, 30), at(14, 0), at(14, 15), at(14, 30)}
	if len(slots) != len(want) {
		t.Fatalf("got %d slots, want %d", len(slots), len(want))
	}
	for i, s := range slots {
		if !s.Start.Equal(want[i]) {
			t.Errorf("slot %d starts %v, want %v", i, s.Start, want[i])
		}
	}
}

func TestCandidatesDedupeOverlappingIntervals(t *testing.T) {
	slots := Candidates([]Interval{
		{Start: at(9, 0), End: at(11, 0)},
		{Start: at(9, 0), End: at(10, 0)},
	}, 30*time.Minute)

	seen := map[time.Time]bool{}
	for _, s := range slots {
		if seen[s.Start] {
			t.Fatalf("duplicate slot start %v", s.Start)
		}
		seen[s.Start] = true
	}
	if len(slots) != 7 {
		t.Fatalf("got %d slots, want 7", len(slots))
	}
}

func TestCandidatesZeroDuration(t *testing.T) {
	if got := Candidates([]Interval{{Start: at(9, 0), End: at(10, 0)}}, 0); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestConflictsBufferedOverlap(t *testing.T) {
	// Existing booking 10:00-10:30 with 15 min buffer blocks 09:45-10:30
	// starts; 09:30 and 10:45 stay open.
	busy := []Interval{{Start: at(10, 0), End: at(10, 30)}}
	buffer := 15 * time.Minute
	duration := 30 * time.Minute

	tests := []struct {
		start time.Time
		want  bool
	}{
		{at(9, 30), false},
		{at(9, 45), true},
		{at(10, 0), true},
		{at(10, 15), true},
		{at(10, 30), true},
		{at(10, 45), false},
	}
	for _, tt := range tests {
		slot := Slot{Start: tt.start, End: tt.start.Add(duration)}
		if got := Conflicts(slot, busy, buffer); got != tt.want {
			t.Errorf("Conflicts(start=%s) = %v, want %v", tt.start.Format("15:04"), got, tt.want)
		}
	}
}

func TestConflictsBackToBackNoBuffer(t *testing.T) {
	busy := []Interval{{Start: at(10, 0), End: at(10, 30)}}
	slot := Slot{Start: at(10, 30), End: at(11, 0)}
	if Conflicts(slot, busy, 0) {
		t.Fatal("back-to-back slot should not conflict without buffer")
	}
	slot = Slot{Start: at(9, 30), End: at(10, 0)}
	if Conflicts(slot, busy, 0) {
		t.Fatal("slot ending at busy start should not conflict")
	}
}
