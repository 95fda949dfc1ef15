package booking

import (
	"context"

	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/outbox"
)

// Reader is the query side of the repository contract. Every finder returns
// an empty slice, never an error, when nothing matches; FindEventType returns
// model.ErrNotFound for an unknown id.
type Reader interface {
	FindEventType(ctx context.Context, id string) (model.EventType, error)
	FindAvailabilitiesByOwner(ctx context.Context, ownerID string) ([]model.Availability, error)
	FindAvailabilitiesByEventType(ctx context.Context, eventTypeID string) ([]model.Availability, error)
	FindBookingsByEventType(ctx context.Context, eventTypeID string) ([]model.Booking, error)
	FindBookingsByBooker(ctx context.Context, bookerID string) ([]model.Booking, error)
	// FindBookingsByOwner returns bookings against any event type owned by ownerID.
	FindBookingsByOwner(ctx context.Context, ownerID string) ([]model.Booking, error)
}

// Tx is one unit of work. Reads through a Tx observe its own writes.
type Tx interface {
	Reader
	// Lock serializes the caller against every other transaction locking any
	// of the same keys until this one ends. Callers pass keys sorted.
	Lock(ctx context.Context, keys ...string) error
	CreateEventType(ctx context.Context, et model.EventType) error
	CreateAvailability(ctx context.Context, av model.Availability) error
	CreateBooking(ctx context.Context, b model.Booking) error
	AppendEvent(ctx context.Context, evt outbox.Event) error
}

type Store interface {
	Reader
	// WithTx commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	ListEventTypes(ctx context.Context) ([]model.EventType, error)
	ListEventTypesByOwner(ctx context.Context, ownerID string) ([]model.EventType, error)
}

func ownerKey(ownerID string) string { return "owner:" + ownerID }

func bookerKey(bookerID string) string { return "booker:" + bookerID }
