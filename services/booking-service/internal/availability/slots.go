package availability

import (
	"sort"
	"time"
)

// GridStep is the fixed candidate grid. Slot starts always fall on a
// 15-minute boundary relative to the working-interval start.
const GridStep = 15 * time.Minute

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Slot is a bookable candidate of exactly the service duration.
type Slot struct {
	Start time.Time
	End   time.Time
}

// Candidates walks each working interval on the fixed grid and emits every
// slot that fits entirely inside it. A slot whose end would spill past the
// interval end is not emitted (no truncation). Results from overlapping
// intervals are deduplicated by start time and ordered ascending.
func Candidates(intervals []Interval, duration time.Duration) []Slot {
	if duration <= 0 {
		return nil
	}

	var slots []Slot
	for _, iv := range intervals {
		if !iv.End.After(iv.Start) {
			continue
		}
		for cursor := iv.Start; cursor.Before(iv.End); cursor = cursor.Add(GridStep) {
			end := cursor.Add(duration)
			if end.After(iv.End) {
				break
			}
			slots = append(slots, Slot{Start: cursor, End: end})
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return dedupeByStart(slots)
}

// Conflicts reports whether the slot overlaps any busy interval, with each
// busy interval extended on its end by buffer. Half-open semantics: a slot
// starting exactly at a buffered busy end does not conflict.
func Conflicts(slot Slot, busy []Interval, buffer time.Duration) bool {
	for _, b := range busy {
		if slot.Start.Before(b.End.Add(buffer)) && b.Start.Before(slot.End) {
			return true
		}
	}
	return false
}

func dedupeByStart(slots []Slot) []Slot {
	if len(slots) < 2 {
		return slots
	}
	out := slots[:1]
	for _, s := range slots[1:] {
		if !s.Start.Equal(out[len(out)-1].Start) {
			out = append(out, s)
		}
	}
	return out
}
