package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Booking is a committed reservation of an interval by a booker.
type Booking struct {
	ID          string
	BookerID    string
	EventTypeID string
	Interval    Interval
	CreatedAt   time.Time
}

func NewBooking(bookerID, eventTypeID string, interval Interval) (Booking, error) {
	bookerID = strings.TrimSpace(bookerID)
	eventTypeID = strings.TrimSpace(eventTypeID)
	switch {
	case bookerID == "":
		return Booking{}, fmt.Errorf("%w: booker id is required", ErrValidation)
	case eventTypeID == "":
		return Booking{}, fmt.Errorf("%w: event type id is required", ErrValidation)
	}
	interval, err := NewInterval(interval.Start, interval.End)
	if err != nil {
		return Booking{}, err
	}
	return Booking{
		ID:          uuid.NewString(),
		BookerID:    bookerID,
		EventTypeID: eventTypeID,
		Interval:    interval,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func RestoreBooking(id, bookerID, eventTypeID string, start, end, createdAt time.Time) Booking {
	return Booking{
		ID:          id,
		BookerID:    bookerID,
		EventTypeID: eventTypeID,
		Interval:    Interval{Start: start.UTC(), End: end.UTC()},
		CreatedAt:   createdAt.UTC(),
	}
}

func BookingIntervals(items []Booking) []Interval {
	out := make([]Interval, 0, len(items))
	for _, b := range items {
		out = append(out, b.Interval)
	}
	return out
}
