package booking_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/booking"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/outbox"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC)

func iv(t *testing.T, h1, m1, h2, m2 int) model.Interval {
	t.Helper()
	out, err := model.NewInterval(
		day.Add(time.Duration(h1)*time.Hour+time.Duration(m1)*time.Minute),
		day.Add(time.Duration(h2)*time.Hour+time.Duration(m2)*time.Minute),
	)
	require.NoError(t, err)
	return out
}

type recordingObserver struct {
	mu        sync.Mutex
	decisions []string
	slotRuns  int
}

func (o *recordingObserver) Decision(kind, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, kind+":"+outcome)
}

func (o *recordingObserver) SlotsGenerated(time.Duration, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.slotRuns++
}

type fixture struct {
	svc   *booking.Service
	store *memory.Store
	obs   *recordingObserver
	et    model.EventType
}

// newFixture creates owner-1's 30 minute event type available 10:00-11:00.
func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	obs := &recordingObserver{}
	svc := booking.NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)), booking.WithObserver(obs))
	ctx := context.Background()

	et, err := svc.CreateEventType(ctx, "Consultation", 30, "owner-1")
	require.NoError(t, err)
	_, err = svc.ProposeAvailability(ctx, et.ID, iv(t, 10, 0, 11, 0))
	require.NoError(t, err)
	return fixture{svc: svc, store: store, obs: obs, et: et}
}

func TestGenerateFreeSlotsSplitsWindow(t *testing.T) {
	f := newFixture(t)
	slots, err := f.svc.GenerateFreeSlots(context.Background(), f.et.ID)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].Equal(iv(t, 10, 0, 10, 30)))
	assert.True(t, slots[1].Equal(iv(t, 10, 30, 11, 0)))
	assert.Equal(t, 1, f.obs.slotRuns)
}

func TestBookingRemovesExactlyThatSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ProposeBooking(ctx, booking.Request{BookerID: "booker-1", EventTypeID: f.et.ID, Interval: iv(t, 10, 0, 10, 30)})
	require.NoError(t, err)

	slots, err := f.svc.GenerateFreeSlots(ctx, f.et.ID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Equal(iv(t, 10, 30, 11, 0)))
}

func TestGenerateFreeSlotsUnknownEventType(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GenerateFreeSlots(context.Background(), "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestGenerateFreeSlotsConcatenatesWindowsInStartOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ProposeAvailability(ctx, f.et.ID, iv(t, 8, 0, 9, 0))
	require.NoError(t, err)

	slots, err := f.svc.GenerateFreeSlots(ctx, f.et.ID)
	require.NoError(t, err)
	require.Len(t, slots, 4)
	assert.True(t, slots[0].Start.Equal(day.Add(8*time.Hour)))
	assert.True(t, slots[3].End.Equal(day.Add(11*time.Hour)))
}

func TestProposeBookingRejections(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T, f fixture)
		req   func(t *testing.T, f fixture) booking.Request
		want  error
	}{
		{
			name: "unknown event type",
			req: func(t *testing.T, f fixture) booking.Request {
				return booking.Request{BookerID: "booker-1", EventTypeID: "missing", Interval: iv(t, 10, 0, 10, 30)}
			},
			want: model.ErrNotFound,
		},
		{
			name: "owner books own event type",
			req: func(t *testing.T, f fixture) booking.Request {
				return booking.Request{BookerID: "owner-1", EventTypeID: f.et.ID, Interval: iv(t, 10, 0, 10, 30)}
			},
			want: model.ErrSelfBooking,
		},
		{
			name: "outside availability",
			req: func(t *testing.T, f fixture) booking.Request {
				return booking.Request{BookerID: "booker-1", EventTypeID: f.et.ID, Interval: iv(t, 9, 0, 9, 30)}
			},
			want: model.ErrOutsideAvailability,
		},
		{
			name: "straddles window end",
			req: func(t *testing.T, f fixture) booking.Request {
				return booking.Request{BookerID: "booker-1", EventTypeID: f.et.ID, Interval: iv(t, 10, 45, 11, 15)}
			},
			want: model.ErrOutsideAvailability,
		},
		{
			name: "booker already busy elsewhere",
			setup: func(t *testing.T, f fixture) {
				ctx := context.Background()
				other, err := f.svc.CreateEventType(ctx, "Other", 30, "owner-2")
				require.NoError(t, err)
				_, err = f.svc.ProposeAvailability(ctx, other.ID, iv(t, 10, 0, 11, 0))
				require.NoError(t, err)
				_, err = f.svc.ProposeBooking(ctx, booking.Request{BookerID: "booker-1", EventTypeID: other.ID, Interval: iv(t, 10, 15, 10, 45)})
				require.NoError(t, err)
			},
			req: func(t *testing.T, f fixture) booking.Request {
				return booking.Request{BookerID: "booker-1", EventTypeID: f.et.ID, Interval: iv(t, 10, 30, 11, 0)}
			},
			want: model.ErrBookerConflict,
		},
		{
			name: "slot already booked by someone else",
			setup: func(t *testing.T, f fixture) {
				_, err := f.svc.ProposeBooking(context.Background(), booking.Request{BookerID: "booker-8", EventTypeID: f.et.ID, Interval: iv(t, 10, 0, 10, 30)})
				require.NoError(t, err)
			},
			req: func(t *testing.T, f fixture) booking.Request {
				return booking.Request{BookerID: "booker-1", EventTypeID: f.et.ID, Interval: iv(t, 10, 0, 10, 30)}
			},
			want: model.ErrOwnerConflict,
		},
		{
			name: "blank booker",
			req: func(t *testing.T, f fixture) booking.Request {
				return booking.Request{BookerID: "  ", EventTypeID: f.et.ID, Interval: iv(t, 10, 0, 10, 30)}
			},
			want: model.ErrValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.setup != nil {
				tc.setup(t, f)
			}
			before := len(f.store.Events())
			_, err := f.svc.ProposeBooking(context.Background(), tc.req(t, f))
			require.ErrorIs(t, err, tc.want)
			assert.Len(t, f.store.Events(), before, "rejected proposals must not emit events")
		})
	}
}

func TestProposeBookingTouchingIntervalsDoNotConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.ProposeBooking(ctx, booking.Request{BookerID: "booker-1", EventTypeID: f.et.ID, Interval: iv(t, 10, 0, 10, 30)})
	require.NoError(t, err)
	_, err = f.svc.ProposeBooking(ctx, booking.Request{BookerID: "booker-1", EventTypeID: f.et.ID, Interval: iv(t, 10, 30, 11, 0)})
	require.NoError(t, err)
}

func TestProposeBookingEmitsOutboxEvent(t *testing.T) {
	f := newFixture(t)
	b, err := f.svc.ProposeBooking(context.Background(), booking.Request{BookerID: "booker-1", EventTypeID: f.et.ID, Interval: iv(t, 10, 0, 10, 30)})
	require.NoError(t, err)

	events := f.store.Events()
	last := events[len(events)-1]
	assert.Equal(t, outbox.BookingCreated, last.EventType)
	assert.Equal(t, b.ID, last.AggregateID)
	assert.JSONEq(t, `{
		"booking_id": "`+b.ID+`",
		"event_type_id": "`+f.et.ID+`",
		"owner_id": "owner-1",
		"booker_id": "booker-1",
		"start_time": "2025-10-10T10:00:00Z",
		"end_time": "2025-10-10T10:30:00Z"
	}`, string(last.Payload))
	assert.Contains(t, f.obs.decisions, "booking:committed")
}

func TestProposeAvailabilityOwnerWideOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sibling, err := f.svc.CreateEventType(ctx, "Sibling", 15, "owner-1")
	require.NoError(t, err)

	_, err = f.svc.ProposeAvailability(ctx, sibling.ID, iv(t, 10, 45, 12, 0))
	require.ErrorIs(t, err, model.ErrAvailabilityOverlap)
	assert.Contains(t, f.obs.decisions, "availability:availability_overlap")

	_, err = f.svc.ProposeAvailability(ctx, sibling.ID, iv(t, 11, 0, 12, 0))
	require.NoError(t, err)

	// Another owner's windows are independent.
	stranger, err := f.svc.CreateEventType(ctx, "Stranger", 30, "owner-2")
	require.NoError(t, err)
	_, err = f.svc.ProposeAvailability(ctx, stranger.ID, iv(t, 10, 0, 11, 0))
	require.NoError(t, err)
}

func TestProposeAvailabilityRejectsUnvalidatedIntervals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hour := func(h int) time.Time { return day.Add(time.Duration(h) * time.Hour) }

	bad := []model.Interval{
		{Start: hour(13), End: hour(12)},
		{Start: hour(12), End: hour(12)},
		{},
	}
	for _, in := range bad {
		_, err := f.svc.ProposeAvailability(ctx, f.et.ID, in)
		require.ErrorIs(t, err, model.ErrValidation, "interval %v", in)

		_, err = f.svc.ProposeBooking(ctx, booking.Request{BookerID: "booker-1", EventTypeID: f.et.ID, Interval: in})
		require.ErrorIs(t, err, model.ErrValidation, "interval %v", in)
	}

	avs, err := f.svc.ListAvailabilities(ctx, f.et.ID)
	require.NoError(t, err)
	require.Len(t, avs, 1)

	// Nothing invalid was stored, so a wide valid window is only blocked by
	// the fixture's own 10:00-11:00 window.
	_, err = f.svc.ProposeAvailability(ctx, f.et.ID, iv(t, 12, 0, 15, 0))
	require.NoError(t, err)
}

func TestProposeAvailabilityUnknownEventType(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ProposeAvailability(context.Background(), "missing", iv(t, 12, 0, 13, 0))
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestCreateEventTypeValidationAndDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateEventType(ctx, "", 30, "owner-1")
	require.ErrorIs(t, err, model.ErrValidation)
	_, err = f.svc.CreateEventType(ctx, "Zero", 0, "owner-1")
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.CreateEventType(ctx, "Consultation", 45, "owner-1")
	require.ErrorIs(t, err, model.ErrDuplicateEventType)
	assert.True(t, model.IsConflict(err))

	_, err = f.svc.CreateEventType(ctx, "Consultation", 45, "owner-2")
	require.NoError(t, err)
}

func TestListEventTypesOrderedByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateEventType(ctx, "Audit", 60, "owner-2")
	require.NoError(t, err)
	_, err = f.svc.CreateEventType(ctx, "Workshop", 90, "owner-1")
	require.NoError(t, err)

	all, err := f.svc.ListEventTypes(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Audit", "Consultation", "Workshop"}, []string{all[0].Name, all[1].Name, all[2].Name})

	mine, err := f.svc.ListEventTypesByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "Consultation", mine[0].Name)
}

func TestListAvailabilities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	items, err := f.svc.ListAvailabilities(ctx, f.et.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Interval.Equal(iv(t, 10, 0, 11, 0)))

	_, err = f.svc.ListAvailabilities(ctx, "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestListUserBookingsAsBookerAndOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	theirs, err := f.svc.CreateEventType(ctx, "Theirs", 30, "booker-1")
	require.NoError(t, err)
	_, err = f.svc.ProposeAvailability(ctx, theirs.ID, iv(t, 8, 0, 9, 0))
	require.NoError(t, err)

	late, err := f.svc.ProposeBooking(ctx, booking.Request{BookerID: "booker-1", EventTypeID: f.et.ID, Interval: iv(t, 10, 30, 11, 0)})
	require.NoError(t, err)
	early, err := f.svc.ProposeBooking(ctx, booking.Request{BookerID: "owner-1", EventTypeID: theirs.ID, Interval: iv(t, 8, 0, 8, 30)})
	require.NoError(t, err)

	got, err := f.svc.ListUserBookings(ctx, "booker-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, late.ID, got[1].ID)

	none, err := f.svc.ListUserBookings(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}
