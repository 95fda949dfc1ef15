package booking

import (
	"time"

	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/outbox"
)

type eventTypeCreatedPayload struct {
	EventTypeID     string `json:"event_type_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	OwnerID         string `json:"owner_id"`
	CreatedAt       string `json:"created_at"`
}

type availabilityCreatedPayload struct {
	AvailabilityID string `json:"availability_id"`
	EventTypeID    string `json:"event_type_id"`
	OwnerID        string `json:"owner_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
}

type bookingCreatedPayload struct {
	BookingID   string `json:"booking_id"`
	EventTypeID string `json:"event_type_id"`
	OwnerID     string `json:"owner_id"`
	BookerID    string `json:"booker_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

func eventTypeCreated(et model.EventType) (outbox.Event, error) {
	return outbox.NewEvent("event_type", et.ID, outbox.EventTypeCreated, eventTypeCreatedPayload{
		EventTypeID:     et.ID,
		Name:            et.Name,
		DurationMinutes: et.DurationMinutes,
		OwnerID:         et.OwnerID,
		CreatedAt:       et.CreatedAt.Format(time.RFC3339),
	})
}

func availabilityCreated(av model.Availability, ownerID string) (outbox.Event, error) {
	return outbox.NewEvent("availability", av.ID, outbox.AvailabilityCreated, availabilityCreatedPayload{
		AvailabilityID: av.ID,
		EventTypeID:    av.EventTypeID,
		OwnerID:        ownerID,
		StartTime:      av.Interval.Start.Format(time.RFC3339),
		EndTime:        av.Interval.End.Format(time.RFC3339),
	})
}

func bookingCreated(b model.Booking, ownerID string) (outbox.Event, error) {
	return outbox.NewEvent("booking", b.ID, outbox.BookingCreated, bookingCreatedPayload{
		BookingID:   b.ID,
		EventTypeID: b.EventTypeID,
		OwnerID:     ownerID,
		BookerID:    b.BookerID,
		StartTime:   b.Interval.Start.Format(time.RFC3339),
		EndTime:     b.Interval.End.Format(time.RFC3339),
	})
}
