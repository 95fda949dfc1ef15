// Package seed loads YAML fixtures and applies them through the service, so
// every seeded row passes the same checks and emits the same outbox events
// as an API call.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/booking"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
	"gopkg.in/yaml.v3"
)

type Fixture struct {
	EventTypes []EventType `yaml:"event_types"`
	Bookings   []Booking   `yaml:"bookings"`
}

// EventType is keyed so bookings can refer to it before its id exists.
type EventType struct {
	Key             string   `yaml:"key"`
	Name            string   `yaml:"name"`
	DurationMinutes int      `yaml:"duration_minutes"`
	OwnerID         string   `yaml:"owner_id"`
	Availability    []Window `yaml:"availability"`
}

type Window struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type Booking struct {
	EventType string `yaml:"event_type"`
	BookerID  string `yaml:"booker_id"`
	Start     string `yaml:"start"`
	End       string `yaml:"end"`
}

type Result struct {
	EventTypes     int
	Availabilities int
	Bookings       int
	Skipped        int
}

func Load(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	keys := make(map[string]struct{}, len(f.EventTypes))
	for i, et := range f.EventTypes {
		if et.Key == "" {
			return Fixture{}, fmt.Errorf("event_types[%d]: key is required", i)
		}
		if _, dup := keys[et.Key]; dup {
			return Fixture{}, fmt.Errorf("event_types[%d]: duplicate key %q", i, et.Key)
		}
		keys[et.Key] = struct{}{}
	}
	for i, b := range f.Bookings {
		if _, ok := keys[b.EventType]; !ok {
			return Fixture{}, fmt.Errorf("bookings[%d]: unknown event_type %q", i, b.EventType)
		}
	}
	return f, nil
}

func LoadFile(path string) (Fixture, error) {
	file, err := os.Open(path)
	if err != nil {
		return Fixture{}, err
	}
	defer file.Close()
	return Load(file)
}

// Apply creates everything in f. Rows rejected as conflicts (already seeded,
// overlapping) are logged and counted as skipped so a fixture can be applied
// repeatedly; any other error aborts.
func Apply(ctx context.Context, svc *booking.Service, f Fixture, logger *slog.Logger) (Result, error) {
	var res Result
	ids := make(map[string]string, len(f.EventTypes))

	for _, fx := range f.EventTypes {
		et, err := svc.CreateEventType(ctx, fx.Name, fx.DurationMinutes, fx.OwnerID)
		switch {
		case errors.Is(err, model.ErrDuplicateEventType):
			et, err = findByName(ctx, svc, fx.OwnerID, fx.Name)
			if err != nil {
				return res, err
			}
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("event type %q: %w", fx.Key, err)
		default:
			res.EventTypes++
		}
		ids[fx.Key] = et.ID

		for _, w := range fx.Availability {
			iv, err := parseWindow(w.Start, w.End)
			if err != nil {
				return res, fmt.Errorf("event type %q availability: %w", fx.Key, err)
			}
			if _, err := svc.ProposeAvailability(ctx, et.ID, iv); err != nil {
				if !model.IsConflict(err) {
					return res, fmt.Errorf("event type %q availability: %w", fx.Key, err)
				}
				logger.Info("seed availability skipped", "event_type", fx.Key, "reason", model.Reason(err))
				res.Skipped++
				continue
			}
			res.Availabilities++
		}
	}

	for _, fx := range f.Bookings {
		iv, err := parseWindow(fx.Start, fx.End)
		if err != nil {
			return res, fmt.Errorf("booking for %q: %w", fx.BookerID, err)
		}
		_, err = svc.ProposeBooking(ctx, booking.Request{BookerID: fx.BookerID, EventTypeID: ids[fx.EventType], Interval: iv})
		if err != nil {
			if !model.IsConflict(err) {
				return res, fmt.Errorf("booking for %q: %w", fx.BookerID, err)
			}
			logger.Info("seed booking skipped", "event_type", fx.EventType, "booker_id", fx.BookerID, "reason", model.Reason(err))
			res.Skipped++
			continue
		}
		res.Bookings++
	}
	return res, nil
}

func findByName(ctx context.Context, svc *booking.Service, ownerID, name string) (model.EventType, error) {
	items, err := svc.ListEventTypesByOwner(ctx, ownerID)
	if err != nil {
		return model.EventType{}, err
	}
	for _, et := range items {
		if et.Name == name {
			return et, nil
		}
	}
	return model.EventType{}, fmt.Errorf("%w: event type %q of %q", model.ErrNotFound, name, ownerID)
}

func parseWindow(start, end string) (model.Interval, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return model.Interval{}, fmt.Errorf("%w: start %q", model.ErrValidation, start)
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return model.Interval{}, fmt.Errorf("%w: end %q", model.ErrValidation, end)
	}
	return model.NewInterval(s, e)
}
