// Package sqlite is a single-node durable booking.Store on gorm and SQLite.
// The pool is limited to one connection, so transactions are serialized and
// a Tx must only ever use its own handle.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/bookslot/libs/otel"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/booking"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/outbox"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the SQLite database at dsn.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	return db, nil
}

// Close releases database resources.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&eventTypeRow{}, &availabilityRow{}, &bookingRow{}, &outboxRow{})
}

// ReadyCheck pings the underlying connection.
func ReadyCheck(db *gorm.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

type Store struct {
	db *gorm.DB
	reader
}

var (
	_ booking.Store = (*Store)(nil)
	_ outbox.Source = (*Store)(nil)
)

func New(db *gorm.DB) *Store {
	return &Store{db: db, reader: reader{db: db}}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormTx{reader: reader{db: tx}})
	})
}

func (s *Store) ListEventTypes(ctx context.Context) ([]model.EventType, error) {
	var rows []eventTypeRow
	if err := s.db.WithContext(ctx).Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite.ListEventTypes: %w", err)
	}
	return toModels[eventTypeRow, model.EventType](rows), nil
}

func (s *Store) ListEventTypesByOwner(ctx context.Context, ownerID string) ([]model.EventType, error) {
	var rows []eventTypeRow
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite.ListEventTypesByOwner: %w", err)
	}
	return toModels[eventTypeRow, model.EventType](rows), nil
}

// Drain implements outbox.Source. The batch is read and marked in separate
// statements so the single connection is free while the sink publishes; run
// one relay per database.
func (s *Store) Drain(ctx context.Context, limit int, publish func(context.Context, []outbox.Record) error) (int, error) {
	var rows []outboxRow
	if err := s.db.WithContext(ctx).Where("published_at IS NULL").Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("sqlite.Drain: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	records := make([]outbox.Record, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		records = append(records, outbox.Record{
			ID:            r.ID,
			EventID:       r.EventID,
			AggregateType: r.AggregateType,
			AggregateID:   r.AggregateID,
			EventType:     r.EventType,
			Payload:       r.Payload,
			Traceparent:   r.Traceparent,
			Tracestate:    r.Tracestate,
			CreatedAt:     r.CreatedAt,
		})
		ids = append(ids, r.ID)
	}
	if err := publish(ctx, records); err != nil {
		return 0, err
	}
	if err := s.db.WithContext(ctx).Model(&outboxRow{}).Where("id IN ?", ids).Update("published_at", time.Now().UTC()).Error; err != nil {
		return 0, fmt.Errorf("sqlite.Drain: %w", err)
	}
	return len(records), nil
}

type reader struct {
	db *gorm.DB
}

func (r reader) FindEventType(ctx context.Context, id string) (model.EventType, error) {
	var row eventTypeRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.EventType{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.EventType{}, fmt.Errorf("sqlite.FindEventType: %w", err)
	}
	return row.model(), nil
}

func (r reader) FindAvailabilitiesByOwner(ctx context.Context, ownerID string) ([]model.Availability, error) {
	var rows []availabilityRow
	err := r.db.WithContext(ctx).
		Joins("JOIN event_types ON event_types.id = availabilities.event_type_id").
		Where("event_types.owner_id = ?", ownerID).
		Order("availabilities.start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite.FindAvailabilitiesByOwner: %w", err)
	}
	return toModels[availabilityRow, model.Availability](rows), nil
}

func (r reader) FindAvailabilitiesByEventType(ctx context.Context, eventTypeID string) ([]model.Availability, error) {
	var rows []availabilityRow
	if err := r.db.WithContext(ctx).Where("event_type_id = ?", eventTypeID).Order("start_time ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite.FindAvailabilitiesByEventType: %w", err)
	}
	return toModels[availabilityRow, model.Availability](rows), nil
}

func (r reader) FindBookingsByEventType(ctx context.Context, eventTypeID string) ([]model.Booking, error) {
	var rows []bookingRow
	if err := r.db.WithContext(ctx).Where("event_type_id = ?", eventTypeID).Order("start_time ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite.FindBookingsByEventType: %w", err)
	}
	return toModels[bookingRow, model.Booking](rows), nil
}

func (r reader) FindBookingsByBooker(ctx context.Context, bookerID string) ([]model.Booking, error) {
	var rows []bookingRow
	if err := r.db.WithContext(ctx).Where("booker_id = ?", bookerID).Order("start_time ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite.FindBookingsByBooker: %w", err)
	}
	return toModels[bookingRow, model.Booking](rows), nil
}

func (r reader) FindBookingsByOwner(ctx context.Context, ownerID string) ([]model.Booking, error) {
	var rows []bookingRow
	err := r.db.WithContext(ctx).
		Joins("JOIN event_types ON event_types.id = bookings.event_type_id").
		Where("event_types.owner_id = ?", ownerID).
		Order("bookings.start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite.FindBookingsByOwner: %w", err)
	}
	return toModels[bookingRow, model.Booking](rows), nil
}

type gormTx struct {
	reader
}

// Lock is satisfied by the single connection: only one transaction can be
// open at a time.
func (t *gormTx) Lock(ctx context.Context, _ ...string) error {
	return ctx.Err()
}

func (t *gormTx) CreateEventType(ctx context.Context, et model.EventType) error {
	err := t.db.WithContext(ctx).Create(&eventTypeRow{
		ID:              et.ID,
		OwnerID:         et.OwnerID,
		Name:            et.Name,
		DurationMinutes: et.DurationMinutes,
		CreatedAt:       et.CreatedAt,
	}).Error
	if isDuplicate(err) {
		return model.ErrDuplicateEventType
	}
	if err != nil {
		return fmt.Errorf("sqlite.CreateEventType: %w", err)
	}
	return nil
}

func (t *gormTx) CreateAvailability(ctx context.Context, av model.Availability) error {
	if _, err := t.FindEventType(ctx, av.EventTypeID); err != nil {
		return err
	}
	err := t.db.WithContext(ctx).Create(&availabilityRow{
		ID:          av.ID,
		EventTypeID: av.EventTypeID,
		StartTime:   av.Interval.Start,
		EndTime:     av.Interval.End,
		CreatedAt:   av.CreatedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("sqlite.CreateAvailability: %w", err)
	}
	return nil
}

func (t *gormTx) CreateBooking(ctx context.Context, b model.Booking) error {
	if _, err := t.FindEventType(ctx, b.EventTypeID); err != nil {
		return err
	}
	err := t.db.WithContext(ctx).Create(&bookingRow{
		ID:          b.ID,
		BookerID:    b.BookerID,
		EventTypeID: b.EventTypeID,
		StartTime:   b.Interval.Start,
		EndTime:     b.Interval.End,
		CreatedAt:   b.CreatedAt,
	}).Error
	if isDuplicate(err) {
		return model.ErrSlotTaken
	}
	if err != nil {
		return fmt.Errorf("sqlite.CreateBooking: %w", err)
	}
	return nil
}

func (t *gormTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	err := t.db.WithContext(ctx).Create(&outboxRow{
		EventID:       uuid.NewString(),
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		EventType:     evt.EventType,
		Payload:       evt.Payload,
		Traceparent:   traceparent,
		Tracestate:    tracestate,
		CreatedAt:     time.Now().UTC(),
	}).Error
	if err != nil {
		return fmt.Errorf("sqlite.AppendEvent: %w", err)
	}
	return nil
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
