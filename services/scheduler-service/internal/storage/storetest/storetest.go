// Package storetest is the behavioural contract every booking.Store backend
// must satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/booking"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. Stores that also implement outbox.Source
// get the outbox cases.
type Factory func(t *testing.T) booking.Store

var base = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func span(t *testing.T, h1, m1, h2, m2 int) model.Interval {
	t.Helper()
	iv, err := model.NewInterval(at(h1, m1), at(h2, m2))
	require.NoError(t, err)
	return iv
}

func Run(t *testing.T, newStore Factory) {
	t.Run("EventTypes", func(t *testing.T) { testEventTypes(t, newStore(t)) })
	t.Run("DuplicateEventType", func(t *testing.T) { testDuplicateEventType(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("AvailabilityQueries", func(t *testing.T) { testAvailabilityQueries(t, newStore(t)) })
	t.Run("BookingQueries", func(t *testing.T) { testBookingQueries(t, newStore(t)) })
	t.Run("SlotUniqueness", func(t *testing.T) { testSlotUniqueness(t, newStore(t)) })
	t.Run("Outbox", func(t *testing.T) { testOutbox(t, newStore(t)) })
	t.Run("ConcurrentProposals", func(t *testing.T) { testConcurrentProposals(t, newStore(t)) })
	t.Run("ConcurrentAvailability", func(t *testing.T) { testConcurrentAvailability(t, newStore(t)) })
	t.Run("ConcurrentBookerAcrossOwners", func(t *testing.T) { testConcurrentBookerAcrossOwners(t, newStore(t)) })
}

func createEventType(t *testing.T, s booking.Store, name, owner string, minutes int) model.EventType {
	t.Helper()
	et, err := model.NewEventType(name, minutes, owner)
	require.NoError(t, err)
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		return tx.CreateEventType(ctx, et)
	}))
	return et
}

func createAvailability(t *testing.T, s booking.Store, etID string, iv model.Interval) model.Availability {
	t.Helper()
	av, err := model.NewAvailability(etID, iv)
	require.NoError(t, err)
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		return tx.CreateAvailability(ctx, av)
	}))
	return av
}

func createBooking(t *testing.T, s booking.Store, booker, etID string, iv model.Interval) model.Booking {
	t.Helper()
	b, err := model.NewBooking(booker, etID, iv)
	require.NoError(t, err)
	require.NoError(t, s.WithTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		return tx.CreateBooking(ctx, b)
	}))
	return b
}

func testEventTypes(t *testing.T, s booking.Store) {
	ctx := context.Background()

	_, err := s.FindEventType(ctx, "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, model.ErrNotFound)

	zeta := createEventType(t, s, "Zeta", "owner-a", 30)
	alpha := createEventType(t, s, "Alpha", "owner-a", 15)
	other := createEventType(t, s, "Mid", "owner-b", 60)

	got, err := s.FindEventType(ctx, zeta.ID)
	require.NoError(t, err)
	assert.Equal(t, "Zeta", got.Name)
	assert.Equal(t, 30, got.DurationMinutes)
	assert.Equal(t, "owner-a", got.OwnerID)

	all, err := s.ListEventTypes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{alpha.ID, other.ID, zeta.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	mine, err := s.ListEventTypesByOwner(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "Alpha", mine[0].Name)

	none, err := s.ListEventTypesByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testDuplicateEventType(t *testing.T, s booking.Store) {
	createEventType(t, s, "Intro call", "owner-a", 30)
	createEventType(t, s, "Intro call", "owner-b", 30)

	dup, err := model.NewEventType("Intro call", 45, "owner-a")
	require.NoError(t, err)
	err = s.WithTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		return tx.CreateEventType(ctx, dup)
	})
	require.ErrorIs(t, err, model.ErrDuplicateEventType)
}

func testRollback(t *testing.T, s booking.Store) {
	ctx := context.Background()
	et, err := model.NewEventType("Rolled back", 30, "owner-a")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		if err := tx.CreateEventType(ctx, et); err != nil {
			return err
		}
		if _, err := tx.FindEventType(ctx, et.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.FindEventType(ctx, et.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func testAvailabilityQueries(t *testing.T, s booking.Store) {
	ctx := context.Background()
	a := createEventType(t, s, "A", "owner-a", 30)
	b := createEventType(t, s, "B", "owner-a", 30)
	c := createEventType(t, s, "C", "owner-c", 30)

	late := createAvailability(t, s, a.ID, span(t, 14, 0, 15, 0))
	early := createAvailability(t, s, a.ID, span(t, 9, 0, 10, 0))
	createAvailability(t, s, b.ID, span(t, 11, 0, 12, 0))
	createAvailability(t, s, c.ID, span(t, 9, 0, 17, 0))

	byET, err := s.FindAvailabilitiesByEventType(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, byET, 2)
	assert.Equal(t, early.ID, byET[0].ID)
	assert.Equal(t, late.ID, byET[1].ID)
	assert.True(t, byET[0].Interval.Equal(span(t, 9, 0, 10, 0)))

	byOwner, err := s.FindAvailabilitiesByOwner(ctx, "owner-a")
	require.NoError(t, err)
	assert.Len(t, byOwner, 3)

	empty, err := s.FindAvailabilitiesByEventType(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testBookingQueries(t *testing.T, s booking.Store) {
	ctx := context.Background()
	a := createEventType(t, s, "A", "owner-a", 30)
	b := createEventType(t, s, "B", "owner-a", 30)
	c := createEventType(t, s, "C", "owner-c", 30)

	createBooking(t, s, "booker-1", a.ID, span(t, 10, 30, 11, 0))
	createBooking(t, s, "booker-1", c.ID, span(t, 9, 0, 9, 30))
	createBooking(t, s, "booker-2", b.ID, span(t, 12, 0, 12, 30))

	byBooker, err := s.FindBookingsByBooker(ctx, "booker-1")
	require.NoError(t, err)
	require.Len(t, byBooker, 2)
	assert.Equal(t, c.ID, byBooker[0].EventTypeID)

	byOwner, err := s.FindBookingsByOwner(ctx, "owner-a")
	require.NoError(t, err)
	assert.Len(t, byOwner, 2)

	byET, err := s.FindBookingsByEventType(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, byET, 1)
	assert.Equal(t, "booker-2", byET[0].BookerID)
	assert.True(t, byET[0].Interval.Equal(span(t, 12, 0, 12, 30)))
}

func testSlotUniqueness(t *testing.T, s booking.Store) {
	et := createEventType(t, s, "A", "owner-a", 30)
	createBooking(t, s, "booker-1", et.ID, span(t, 10, 0, 10, 30))

	again, err := model.NewBooking("booker-2", et.ID, span(t, 10, 0, 10, 30))
	require.NoError(t, err)
	err = s.WithTx(context.Background(), func(ctx context.Context, tx booking.Tx) error {
		return tx.CreateBooking(ctx, again)
	})
	require.ErrorIs(t, err, model.ErrSlotTaken)
}

func testOutbox(t *testing.T, s booking.Store) {
	src, ok := s.(outbox.Source)
	if !ok {
		t.Skip("store does not expose an outbox source")
	}
	ctx := context.Background()
	evt, err := outbox.NewEvent("booking", "bk-1", outbox.BookingCreated, map[string]string{"booking_id": "bk-1"})
	require.NoError(t, err)
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		return tx.AppendEvent(ctx, evt)
	}))

	failed := errors.New("sink down")
	_, err = src.Drain(ctx, 10, func(context.Context, []outbox.Record) error { return failed })
	require.ErrorIs(t, err, failed)

	var got []outbox.Record
	n, err := src.Drain(ctx, 10, func(_ context.Context, recs []outbox.Record) error {
		got = append(got, recs...)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, outbox.BookingCreated, got[0].EventType)
	assert.Equal(t, "bk-1", got[0].AggregateID)
	assert.NotEmpty(t, got[0].EventID)
	assert.JSONEq(t, `{"booking_id":"bk-1"}`, string(got[0].Payload))

	n, err = src.Drain(ctx, 10, func(context.Context, []outbox.Record) error { return nil })
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testConcurrentProposals(t *testing.T, s booking.Store) {
	svc := booking.NewService(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	et, err := svc.CreateEventType(ctx, "Consult", 30, "owner-a")
	require.NoError(t, err)
	_, err = svc.ProposeAvailability(ctx, et.ID, span(t, 10, 0, 11, 0))
	require.NoError(t, err)

	const workers = 8
	want := span(t, 10, 0, 10, 30)
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.ProposeBooking(ctx, booking.Request{
				BookerID:    "booker-" + string(rune('a'+i)),
				EventTypeID: et.ID,
				Interval:    want,
			})
		}(i)
	}
	close(start)
	wg.Wait()

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
			continue
		}
		assert.True(t, errors.Is(err, model.ErrSlotTaken) || errors.Is(err, model.ErrOwnerConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, committed)

	slots, err := svc.GenerateFreeSlots(ctx, et.ID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Equal(span(t, 10, 30, 11, 0)))
}

// race starts n calls at once and returns their errors by index.
func race(n int, call func(i int) error) []error {
	var wg sync.WaitGroup
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = call(i)
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func testConcurrentAvailability(t *testing.T, s booking.Store) {
	svc := booking.NewService(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	first, err := svc.CreateEventType(ctx, "Consult", 30, "owner-a")
	require.NoError(t, err)
	second, err := svc.CreateEventType(ctx, "Review", 15, "owner-a")
	require.NoError(t, err)
	targets := []string{first.ID, second.ID}
	window := span(t, 10, 0, 11, 0)

	errs := race(8, func(i int) error {
		_, err := svc.ProposeAvailability(ctx, targets[i%2], window)
		return err
	})

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
			continue
		}
		assert.ErrorIs(t, err, model.ErrAvailabilityOverlap)
	}
	assert.Equal(t, 1, committed)

	stored, err := s.FindAvailabilitiesByOwner(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Interval.Equal(window))
}

func testConcurrentBookerAcrossOwners(t *testing.T, s booking.Store) {
	svc := booking.NewService(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	var targets []string
	for _, owner := range []string{"owner-a", "owner-b"} {
		et, err := svc.CreateEventType(ctx, "Consult", 30, owner)
		require.NoError(t, err)
		_, err = svc.ProposeAvailability(ctx, et.ID, span(t, 10, 0, 11, 0))
		require.NoError(t, err)
		targets = append(targets, et.ID)
	}
	want := span(t, 10, 0, 10, 30)

	errs := race(8, func(i int) error {
		_, err := svc.ProposeBooking(ctx, booking.Request{
			BookerID:    "booker-x",
			EventTypeID: targets[i%2],
			Interval:    want,
		})
		return err
	})

	committed := 0
	for _, err := range errs {
		if err == nil {
			committed++
			continue
		}
		assert.ErrorIs(t, err, model.ErrBookerConflict)
	}
	assert.Equal(t, 1, committed)

	mine, err := s.FindBookingsByBooker(ctx, "booker-x")
	require.NoError(t, err)
	require.Len(t, mine, 1)
}
