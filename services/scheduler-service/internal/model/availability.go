package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Availability is an owner-published window during which an event type may be booked.
type Availability struct {
	ID          string
	EventTypeID string
	Interval    Interval
	CreatedAt   time.Time
}

func NewAvailability(eventTypeID string, interval Interval) (Availability, error) {
	eventTypeID = strings.TrimSpace(eventTypeID)
	if eventTypeID == "" {
		return Availability{}, fmt.Errorf("%w: event type id is required", ErrValidation)
	}
	interval, err := NewInterval(interval.Start, interval.End)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		ID:          uuid.NewString(),
		EventTypeID: eventTypeID,
		Interval:    interval,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func RestoreAvailability(id, eventTypeID string, start, end, createdAt time.Time) Availability {
	return Availability{
		ID:          id,
		EventTypeID: eventTypeID,
		Interval:    Interval{Start: start.UTC(), End: end.UTC()},
		CreatedAt:   createdAt.UTC(),
	}
}

// AvailabilityIntervals projects availabilities onto their windows.
func AvailabilityIntervals(items []Availability) []Interval {
	out := make([]Interval, 0, len(items))
	for _, a := range items {
		out = append(out, a.Interval)
	}
	return out
}
