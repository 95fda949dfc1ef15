package sqlite

import (
	"time"

	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
)

type eventTypeRow struct {
	ID              string `gorm:"primaryKey"`
	OwnerID         string `gorm:"not null;uniqueIndex:idx_event_types_owner_name,priority:1"`
	Name            string `gorm:"not null;uniqueIndex:idx_event_types_owner_name,priority:2"`
	DurationMinutes int    `gorm:"not null"`
	CreatedAt       time.Time
}

func (eventTypeRow) TableName() string { return "event_types" }

func (r eventTypeRow) model() model.EventType {
	return model.RestoreEventType(r.ID, r.Name, r.DurationMinutes, r.OwnerID, r.CreatedAt)
}

type availabilityRow struct {
	ID          string    `gorm:"primaryKey"`
	EventTypeID string    `gorm:"not null;index:idx_availabilities_event_type_start,priority:1"`
	StartTime   time.Time `gorm:"not null;index:idx_availabilities_event_type_start,priority:2"`
	EndTime     time.Time `gorm:"not null"`
	CreatedAt   time.Time
}

func (availabilityRow) TableName() string { return "availabilities" }

func (r availabilityRow) model() model.Availability {
	return model.RestoreAvailability(r.ID, r.EventTypeID, r.StartTime, r.EndTime, r.CreatedAt)
}

type bookingRow struct {
	ID          string    `gorm:"primaryKey"`
	BookerID    string    `gorm:"not null;index"`
	EventTypeID string    `gorm:"not null;uniqueIndex:idx_bookings_slot,priority:1"`
	StartTime   time.Time `gorm:"not null;uniqueIndex:idx_bookings_slot,priority:2"`
	EndTime     time.Time `gorm:"not null"`
	CreatedAt   time.Time
}

func (bookingRow) TableName() string { return "bookings" }

func (r bookingRow) model() model.Booking {
	return model.RestoreBooking(r.ID, r.BookerID, r.EventTypeID, r.StartTime, r.EndTime, r.CreatedAt)
}

type outboxRow struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	EventID       string `gorm:"not null;uniqueIndex"`
	AggregateType string `gorm:"not null"`
	AggregateID   string `gorm:"not null"`
	EventType     string `gorm:"not null"`
	Payload       []byte `gorm:"not null"`
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
	PublishedAt   *time.Time `gorm:"index"`
}

func (outboxRow) TableName() string { return "outbox_events" }

func toModels[R interface{ model() M }, M any](rows []R) []M {
	out := make([]M, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}
