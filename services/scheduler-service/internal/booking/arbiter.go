package booking

import (
	"context"
	"fmt"
	"sort"

	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
)

// Request asks for Interval of EventTypeID on behalf of BookerID.
type Request struct {
	BookerID    string
	EventTypeID string
	Interval    model.Interval
}

// Evaluate runs the booking checks inside tx, in order, stopping at the first
// failure. On success the owner and booker keys are held by tx until it ends,
// so a CreateBooking in the same tx cannot race a conflicting request.
func Evaluate(ctx context.Context, tx Tx, req Request) (model.EventType, error) {
	et, err := tx.FindEventType(ctx, req.EventTypeID)
	if err != nil {
		return model.EventType{}, err
	}
	if req.BookerID == et.OwnerID {
		return model.EventType{}, model.ErrSelfBooking
	}

	keys := []string{ownerKey(et.OwnerID), bookerKey(req.BookerID)}
	sort.Strings(keys)
	if err := tx.Lock(ctx, keys...); err != nil {
		return model.EventType{}, fmt.Errorf("lock: %w", err)
	}

	avs, err := tx.FindAvailabilitiesByEventType(ctx, et.ID)
	if err != nil {
		return model.EventType{}, err
	}
	if !containedInAny(req.Interval, model.AvailabilityIntervals(avs)) {
		return model.EventType{}, model.ErrOutsideAvailability
	}

	byBooker, err := tx.FindBookingsByBooker(ctx, req.BookerID)
	if err != nil {
		return model.EventType{}, err
	}
	if req.Interval.OverlapsAny(model.BookingIntervals(byBooker)) {
		return model.EventType{}, model.ErrBookerConflict
	}

	byOwner, err := tx.FindBookingsByOwner(ctx, et.OwnerID)
	if err != nil {
		return model.EventType{}, err
	}
	if req.Interval.OverlapsAny(model.BookingIntervals(byOwner)) {
		return model.EventType{}, model.ErrOwnerConflict
	}

	byEventType, err := tx.FindBookingsByEventType(ctx, et.ID)
	if err != nil {
		return model.EventType{}, err
	}
	if req.Interval.OverlapsAny(model.BookingIntervals(byEventType)) {
		return model.EventType{}, model.ErrSlotTaken
	}
	return et, nil
}

func containedInAny(iv model.Interval, windows []model.Interval) bool {
	for _, w := range windows {
		if w.Contains(iv) {
			return true
		}
	}
	return false
}

// Arbiter decides booking requests. Each Propose is one transaction that
// either commits the booking with its outbox event or rejects with a
// model sentinel; it never retries.
type Arbiter struct {
	store Store
}

func NewArbiter(store Store) *Arbiter {
	return &Arbiter{store: store}
}

func (a *Arbiter) Propose(ctx context.Context, req Request) (model.Booking, error) {
	b, err := model.NewBooking(req.BookerID, req.EventTypeID, req.Interval)
	if err != nil {
		return model.Booking{}, err
	}
	req.BookerID, req.EventTypeID, req.Interval = b.BookerID, b.EventTypeID, b.Interval

	err = a.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		et, err := Evaluate(ctx, tx, req)
		if err != nil {
			return err
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return err
		}
		evt, err := bookingCreated(b, et.OwnerID)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	if err != nil {
		return model.Booking{}, err
	}
	return b, nil
}
