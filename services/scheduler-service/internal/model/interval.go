package model

import (
	"fmt"
	"time"
)

// Interval is the half-open range [Start, End). Use NewInterval to build one
// from untrusted input.
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start, end time.Time) (Interval, error) {
	if start.IsZero() || end.IsZero() {
		return Interval{}, fmt.Errorf("%w: start and end are required", ErrValidation)
	}
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: start time must be before end time", ErrValidation)
	}
	return Interval{Start: start.UTC(), End: end.UTC()}, nil
}

// Overlaps uses half-open semantics: an interval ending exactly when another
// begins does not overlap it.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}

// Contains reports whether other lies entirely within i.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) Equal(other Interval) bool {
	return i.Start.Equal(other.Start) && i.End.Equal(other.End)
}

func (i Interval) String() string {
	return "[" + i.Start.Format(time.RFC3339) + ", " + i.End.Format(time.RFC3339) + ")"
}

// OverlapsAny reports whether i overlaps any of others.
func (i Interval) OverlapsAny(others []Interval) bool {
	for _, o := range others {
		if i.Overlaps(o) {
			return true
		}
	}
	return false
}
