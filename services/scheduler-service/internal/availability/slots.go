package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
)

// FreeSlots cuts window into consecutive slots of length duration, starting at
// window.Start, and returns those that overlap none of booked.
//
// The grid is fixed by the window start: a booking removes exactly the slots
// it overlaps and never shifts its neighbours. A trailing remainder shorter
// than duration is dropped.
func FreeSlots(window model.Interval, duration time.Duration, booked []model.Interval) []model.Interval {
	if duration <= 0 {
		return nil
	}
	if !window.End.After(window.Start) {
		return nil
	}

	var slots []model.Interval
	for start := window.Start; !start.Add(duration).After(window.End); start = start.Add(duration) {
		slot := model.Interval{Start: start, End: start.Add(duration)}
		if !slot.OverlapsAny(booked) {
			slots = append(slots, slot)
		}
	}
	return slots
}

// FreeSlotsForWindows runs FreeSlots over each window in start order and
// concatenates the results. Overlapping windows are not merged.
func FreeSlotsForWindows(windows []model.Interval, duration time.Duration, booked []model.Interval) []model.Interval {
	ordered := make([]model.Interval, len(windows))
	copy(ordered, windows)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start.Before(ordered[j].Start)
	})

	var out []model.Interval
	for _, w := range ordered {
		out = append(out, FreeSlots(w, duration, booked)...)
	}
	return out
}
