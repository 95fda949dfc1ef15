// Package memory is a process-local booking.Store for tests and ephemeral
// development. A single mutex is held for the whole of every unit of work.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/bookslot/libs/otel"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/booking"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/outbox"
)

type Store struct {
	mu             sync.Mutex
	eventTypes     map[string]model.EventType
	availabilities []model.Availability
	bookings       []model.Booking
	events         []outbox.Record
	published      map[int64]bool
	nextEventID    int64

	drainMu sync.Mutex
}

var (
	_ booking.Store = (*Store)(nil)
	_ outbox.Source = (*Store)(nil)
)

func New() *Store {
	return &Store{
		eventTypes: make(map[string]model.EventType),
		published:  make(map[int64]bool),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &tx{s: s, mark: s.snapshot()}
	defer func() {
		if r := recover(); r != nil {
			s.rollback(tx)
			panic(r)
		}
	}()
	if err := fn(ctx, tx); err != nil {
		s.rollback(tx)
		return err
	}
	return nil
}

type mark struct {
	availabilities int
	bookings       int
	events         int
	nextEventID    int64
}

func (s *Store) snapshot() mark {
	return mark{
		availabilities: len(s.availabilities),
		bookings:       len(s.bookings),
		events:         len(s.events),
		nextEventID:    s.nextEventID,
	}
}

func (s *Store) rollback(t *tx) {
	for _, id := range t.createdEventTypes {
		delete(s.eventTypes, id)
	}
	s.availabilities = s.availabilities[:t.mark.availabilities]
	s.bookings = s.bookings[:t.mark.bookings]
	s.events = s.events[:t.mark.events]
	s.nextEventID = t.mark.nextEventID
}

func (s *Store) FindEventType(_ context.Context, id string) (model.EventType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findEventType(id)
}

func (s *Store) FindAvailabilitiesByOwner(_ context.Context, ownerID string) ([]model.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availabilitiesWhere(func(av model.Availability) bool {
		return s.eventTypes[av.EventTypeID].OwnerID == ownerID
	}), nil
}

func (s *Store) FindAvailabilitiesByEventType(_ context.Context, eventTypeID string) ([]model.Availability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availabilitiesWhere(func(av model.Availability) bool {
		return av.EventTypeID == eventTypeID
	}), nil
}

func (s *Store) FindBookingsByEventType(_ context.Context, eventTypeID string) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookingsWhere(func(b model.Booking) bool { return b.EventTypeID == eventTypeID }), nil
}

func (s *Store) FindBookingsByBooker(_ context.Context, bookerID string) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookingsWhere(func(b model.Booking) bool { return b.BookerID == bookerID }), nil
}

func (s *Store) FindBookingsByOwner(_ context.Context, ownerID string) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookingsWhere(func(b model.Booking) bool {
		return s.eventTypes[b.EventTypeID].OwnerID == ownerID
	}), nil
}

func (s *Store) ListEventTypes(_ context.Context) ([]model.EventType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventTypesWhere(func(model.EventType) bool { return true }), nil
}

func (s *Store) ListEventTypesByOwner(_ context.Context, ownerID string) ([]model.EventType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventTypesWhere(func(et model.EventType) bool { return et.OwnerID == ownerID }), nil
}

// Events returns a copy of every outbox record, published or not.
func (s *Store) Events() []outbox.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Record, len(s.events))
	copy(out, s.events)
	return out
}

// Drain implements outbox.Source.
func (s *Store) Drain(ctx context.Context, limit int, publish func(context.Context, []outbox.Record) error) (int, error) {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	s.mu.Lock()
	var batch []outbox.Record
	for _, rec := range s.events {
		if len(batch) == limit {
			break
		}
		if !s.published[rec.ID] {
			batch = append(batch, rec)
		}
	}
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}

	s.mu.Lock()
	for _, rec := range batch {
		s.published[rec.ID] = true
	}
	s.mu.Unlock()
	return len(batch), nil
}

func (s *Store) findEventType(id string) (model.EventType, error) {
	et, ok := s.eventTypes[id]
	if !ok {
		return model.EventType{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return et, nil
}

func (s *Store) availabilitiesWhere(keep func(model.Availability) bool) []model.Availability {
	out := []model.Availability{}
	for _, av := range s.availabilities {
		if keep(av) {
			out = append(out, av)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Interval.Start.Before(out[j].Interval.Start) })
	return out
}

func (s *Store) bookingsWhere(keep func(model.Booking) bool) []model.Booking {
	out := []model.Booking{}
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Interval.Start.Before(out[j].Interval.Start) })
	return out
}

func (s *Store) eventTypesWhere(keep func(model.EventType) bool) []model.EventType {
	out := []model.EventType{}
	for _, et := range s.eventTypes {
		if keep(et) {
			out = append(out, et)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// tx runs with Store.mu held, so it reads and writes the maps directly.
type tx struct {
	s                 *Store
	mark              mark
	createdEventTypes []string
}

func (t *tx) FindEventType(_ context.Context, id string) (model.EventType, error) {
	return t.s.findEventType(id)
}

func (t *tx) FindAvailabilitiesByOwner(_ context.Context, ownerID string) ([]model.Availability, error) {
	return t.s.availabilitiesWhere(func(av model.Availability) bool {
		return t.s.eventTypes[av.EventTypeID].OwnerID == ownerID
	}), nil
}

func (t *tx) FindAvailabilitiesByEventType(_ context.Context, eventTypeID string) ([]model.Availability, error) {
	return t.s.availabilitiesWhere(func(av model.Availability) bool { return av.EventTypeID == eventTypeID }), nil
}

func (t *tx) FindBookingsByEventType(_ context.Context, eventTypeID string) ([]model.Booking, error) {
	return t.s.bookingsWhere(func(b model.Booking) bool { return b.EventTypeID == eventTypeID }), nil
}

func (t *tx) FindBookingsByBooker(_ context.Context, bookerID string) ([]model.Booking, error) {
	return t.s.bookingsWhere(func(b model.Booking) bool { return b.BookerID == bookerID }), nil
}

func (t *tx) FindBookingsByOwner(_ context.Context, ownerID string) ([]model.Booking, error) {
	return t.s.bookingsWhere(func(b model.Booking) bool {
		return t.s.eventTypes[b.EventTypeID].OwnerID == ownerID
	}), nil
}

// Lock is satisfied by the store mutex WithTx already holds.
func (t *tx) Lock(ctx context.Context, _ ...string) error {
	return ctx.Err()
}

func (t *tx) CreateEventType(_ context.Context, et model.EventType) error {
	for _, existing := range t.s.eventTypes {
		if existing.OwnerID == et.OwnerID && existing.Name == et.Name {
			return model.ErrDuplicateEventType
		}
	}
	t.s.eventTypes[et.ID] = et
	t.createdEventTypes = append(t.createdEventTypes, et.ID)
	return nil
}

func (t *tx) CreateAvailability(_ context.Context, av model.Availability) error {
	if _, err := t.s.findEventType(av.EventTypeID); err != nil {
		return err
	}
	t.s.availabilities = append(t.s.availabilities, av)
	return nil
}

func (t *tx) CreateBooking(_ context.Context, b model.Booking) error {
	if _, err := t.s.findEventType(b.EventTypeID); err != nil {
		return err
	}
	for _, existing := range t.s.bookings {
		if existing.EventTypeID == b.EventTypeID && existing.Interval.Start.Equal(b.Interval.Start) {
			return model.ErrSlotTaken
		}
	}
	t.s.bookings = append(t.s.bookings, b)
	return nil
}

func (t *tx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	t.s.nextEventID++
	t.s.events = append(t.s.events, outbox.Record{
		ID:            t.s.nextEventID,
		EventID:       uuid.NewString(),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       evt.Payload,
		Traceparent:   traceparent,
		Tracestate:    tracestate,
		CreatedAt:     time.Now().UTC(),
	})
	return nil
}
