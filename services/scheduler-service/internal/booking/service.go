package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	otelx "github.com/md-rashed-zaman/bookslot/libs/otel"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/availability"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	KindBooking      = "booking"
	KindAvailability = "availability"
	KindEventType    = "event_type"

	OutcomeCommitted = "committed"
	OutcomeError     = "error"
)

// Observer receives decision outcomes and slot generation timings.
type Observer interface {
	Decision(kind, outcome string)
	SlotsGenerated(elapsed time.Duration, count int)
}

type nopObserver struct{}

func (nopObserver) Decision(string, string)           {}
func (nopObserver) SlotsGenerated(time.Duration, int) {}

type Option func(*Service)

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// Service exposes the scheduling operations over a Store.
type Service struct {
	store    Store
	arbiter  *Arbiter
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
}

func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		arbiter:  NewArbiter(store),
		logger:   logger,
		observer: nopObserver{},
		tracer:   otelx.Tracer("scheduler-service/booking"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateFreeSlots returns the free slots of the event type across all of
// its availability windows, in window start order.
func (s *Service) GenerateFreeSlots(ctx context.Context, eventTypeID string) ([]model.Interval, error) {
	const op = "booking.GenerateFreeSlots"
	started := time.Now()

	et, err := s.store.FindEventType(ctx, eventTypeID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	avs, err := s.store.FindAvailabilitiesByEventType(ctx, et.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	booked, err := s.store.FindBookingsByEventType(ctx, et.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	slots := availability.FreeSlotsForWindows(
		model.AvailabilityIntervals(avs),
		et.Duration(),
		model.BookingIntervals(booked),
	)
	s.observer.SlotsGenerated(time.Since(started), len(slots))
	return slots, nil
}

func (s *Service) ProposeBooking(ctx context.Context, req Request) (model.Booking, error) {
	const op = "booking.ProposeBooking"
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	b, err := s.arbiter.Propose(ctx, req)
	s.decided(ctx, span, op, KindBooking, err)
	if err != nil {
		return model.Booking{}, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.InfoContext(ctx, "booking committed", "op", op,
		"booking_id", b.ID, "event_type_id", b.EventTypeID, "booker_id", b.BookerID,
		"start", b.Interval.Start, "end", b.Interval.End)
	return b, nil
}

// ProposeAvailability publishes a window for the event type. Windows may not
// overlap any other window of the same owner, whichever event type it
// belongs to.
func (s *Service) ProposeAvailability(ctx context.Context, eventTypeID string, interval model.Interval) (model.Availability, error) {
	const op = "booking.ProposeAvailability"
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	var av model.Availability
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		et, err := tx.FindEventType(ctx, eventTypeID)
		if err != nil {
			return err
		}
		av, err = model.NewAvailability(et.ID, interval)
		if err != nil {
			return err
		}
		if err := tx.Lock(ctx, ownerKey(et.OwnerID)); err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		existing, err := tx.FindAvailabilitiesByOwner(ctx, et.OwnerID)
		if err != nil {
			return err
		}
		if av.Interval.OverlapsAny(model.AvailabilityIntervals(existing)) {
			return model.ErrAvailabilityOverlap
		}
		if err := tx.CreateAvailability(ctx, av); err != nil {
			return err
		}
		evt, err := availabilityCreated(av, et.OwnerID)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	s.decided(ctx, span, op, KindAvailability, err)
	if err != nil {
		return model.Availability{}, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.InfoContext(ctx, "availability created", "op", op,
		"availability_id", av.ID, "event_type_id", av.EventTypeID,
		"start", av.Interval.Start, "end", av.Interval.End)
	return av, nil
}

// CreateEventType registers a new event type. Names are unique per owner.
func (s *Service) CreateEventType(ctx context.Context, name string, durationMinutes int, ownerID string) (model.EventType, error) {
	const op = "booking.CreateEventType"
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	et, err := model.NewEventType(name, durationMinutes, ownerID)
	if err == nil {
		err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Lock(ctx, ownerKey(et.OwnerID)); err != nil {
				return fmt.Errorf("lock: %w", err)
			}
			if err := tx.CreateEventType(ctx, et); err != nil {
				return err
			}
			evt, err := eventTypeCreated(et)
			if err != nil {
				return err
			}
			return tx.AppendEvent(ctx, evt)
		})
	}
	s.decided(ctx, span, op, KindEventType, err)
	if err != nil {
		return model.EventType{}, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.InfoContext(ctx, "event type created", "op", op,
		"event_type_id", et.ID, "owner_id", et.OwnerID, "name", et.Name)
	return et, nil
}

func (s *Service) GetEventType(ctx context.Context, id string) (model.EventType, error) {
	const op = "booking.GetEventType"
	et, err := s.store.FindEventType(ctx, id)
	if err != nil {
		return model.EventType{}, fmt.Errorf("%s: %w", op, err)
	}
	return et, nil
}

// ListEventTypes returns every event type ordered by name.
func (s *Service) ListEventTypes(ctx context.Context) ([]model.EventType, error) {
	const op = "booking.ListEventTypes"
	items, err := s.store.ListEventTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

// ListEventTypesByOwner returns the owner's event types ordered by name.
func (s *Service) ListEventTypesByOwner(ctx context.Context, ownerID string) ([]model.EventType, error) {
	const op = "booking.ListEventTypesByOwner"
	items, err := s.store.ListEventTypesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

func (s *Service) ListAvailabilities(ctx context.Context, eventTypeID string) ([]model.Availability, error) {
	const op = "booking.ListAvailabilities"
	et, err := s.store.FindEventType(ctx, eventTypeID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items, err := s.store.FindAvailabilitiesByEventType(ctx, et.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return items, nil
}

// ListUserBookings returns bookings the user made plus bookings against the
// user's own event types, ordered by start.
func (s *Service) ListUserBookings(ctx context.Context, userID string) ([]model.Booking, error) {
	const op = "booking.ListUserBookings"
	asBooker, err := s.store.FindBookingsByBooker(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	asOwner, err := s.store.FindBookingsByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	seen := make(map[string]struct{}, len(asBooker)+len(asOwner))
	out := make([]model.Booking, 0, len(asBooker)+len(asOwner))
	for _, b := range append(asBooker, asOwner...) {
		if _, ok := seen[b.ID]; ok {
			continue
		}
		seen[b.ID] = struct{}{}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Interval.Start.Equal(out[j].Interval.Start) {
			return out[i].Interval.Start.Before(out[j].Interval.Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Service) decided(ctx context.Context, span trace.Span, op, kind string, err error) {
	switch {
	case err == nil:
		s.observer.Decision(kind, OutcomeCommitted)
	case model.IsRejection(err):
		reason := model.Reason(err)
		s.observer.Decision(kind, reason)
		span.SetAttributes(attribute.String("bookslot.rejection_reason", reason))
		s.logger.InfoContext(ctx, "request rejected", "op", op, "reason", reason, "err", err)
	default:
		s.observer.Decision(kind, OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, "request failed", "op", op, "err", err)
	}
}
