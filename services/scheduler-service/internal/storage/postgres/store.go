// Package postgres is the production booking.Store. Conflicting transactions
// are serialized with transaction-scoped advisory locks; the bookings table
// additionally carries a unique slot key and an exclusion constraint.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/bookslot/libs/db"
	otelx "github.com/md-rashed-zaman/bookslot/libs/otel"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/booking"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/model"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/outbox"
)

//go:embed schema.sql
var Schema string

// Migrate applies the idempotent schema.
func Migrate(ctx context.Context, pool *db.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}
	return nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *db.Pool
	reader
}

var (
	_ booking.Store = (*Store)(nil)
	_ outbox.Source = (*Store)(nil)
)

func New(pool *db.Pool) *Store {
	return &Store{pool: pool, reader: reader{q: pool}}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	return s.pool.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{reader: reader{q: tx}, tx: tx})
	})
}

const eventTypeColumns = `id::text, name, duration_minutes, owner_id, created_at`

func (s *Store) ListEventTypes(ctx context.Context) ([]model.EventType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres.ListEventTypes: %w", err)
	}
	return collectEventTypes(rows)
}

func (s *Store) ListEventTypesByOwner(ctx context.Context, ownerID string) ([]model.EventType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE owner_id = $1
		ORDER BY name ASC, id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres.ListEventTypesByOwner: %w", err)
	}
	return collectEventTypes(rows)
}

// Drain implements outbox.Source. Rows are claimed with FOR UPDATE SKIP
// LOCKED so several relays can share one table.
func (s *Store) Drain(ctx context.Context, limit int, publish func(context.Context, []outbox.Record) error) (int, error) {
	var n int
	err := s.pool.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		records, err := fetchUnpublished(ctx, tx, limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		if err := publish(ctx, records); err != nil {
			return err
		}
		ids := make([]int64, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ID)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox_events
			SET published_at = now()
			WHERE id = ANY($1)
		`, ids); err != nil {
			return err
		}
		n = len(records)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func fetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]outbox.Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []outbox.Record
	for rows.Next() {
		var r outbox.Record
		if err := rows.Scan(&r.ID, &r.EventID, &r.AggregateType, &r.AggregateID, &r.EventType, &r.Payload, &r.Traceparent, &r.Tracestate, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

type reader struct {
	q querier
}

func (r reader) FindEventType(ctx context.Context, id string) (model.EventType, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.EventType{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	et, err := scanEventType(r.q.QueryRow(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE id = $1
	`, id))
	if db.IsNotFound(err) {
		return model.EventType{}, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	if err != nil {
		return model.EventType{}, fmt.Errorf("postgres.FindEventType: %w", err)
	}
	return et, nil
}

func (r reader) FindAvailabilitiesByOwner(ctx context.Context, ownerID string) ([]model.Availability, error) {
	rows, err := r.q.Query(ctx, `
		SELECT a.id::text, a.event_type_id::text, a.start_time, a.end_time, a.created_at
		FROM availabilities a
		JOIN event_types e ON e.id = a.event_type_id
		WHERE e.owner_id = $1
		ORDER BY a.start_time ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres.FindAvailabilitiesByOwner: %w", err)
	}
	return collectAvailabilities(rows)
}

func (r reader) FindAvailabilitiesByEventType(ctx context.Context, eventTypeID string) ([]model.Availability, error) {
	if _, err := uuid.Parse(eventTypeID); err != nil {
		return []model.Availability{}, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT id::text, event_type_id::text, start_time, end_time, created_at
		FROM availabilities
		WHERE event_type_id = $1
		ORDER BY start_time ASC
	`, eventTypeID)
	if err != nil {
		return nil, fmt.Errorf("postgres.FindAvailabilitiesByEventType: %w", err)
	}
	return collectAvailabilities(rows)
}

func (r reader) FindBookingsByEventType(ctx context.Context, eventTypeID string) ([]model.Booking, error) {
	if _, err := uuid.Parse(eventTypeID); err != nil {
		return []model.Booking{}, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT id::text, booker_id, event_type_id::text, start_time, end_time, created_at
		FROM bookings
		WHERE event_type_id = $1
		ORDER BY start_time ASC
	`, eventTypeID)
	if err != nil {
		return nil, fmt.Errorf("postgres.FindBookingsByEventType: %w", err)
	}
	return collectBookings(rows)
}

func (r reader) FindBookingsByBooker(ctx context.Context, bookerID string) ([]model.Booking, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id::text, booker_id, event_type_id::text, start_time, end_time, created_at
		FROM bookings
		WHERE booker_id = $1
		ORDER BY start_time ASC
	`, bookerID)
	if err != nil {
		return nil, fmt.Errorf("postgres.FindBookingsByBooker: %w", err)
	}
	return collectBookings(rows)
}

func (r reader) FindBookingsByOwner(ctx context.Context, ownerID string) ([]model.Booking, error) {
	rows, err := r.q.Query(ctx, `
		SELECT b.id::text, b.booker_id, b.event_type_id::text, b.start_time, b.end_time, b.created_at
		FROM bookings b
		JOIN event_types e ON e.id = b.event_type_id
		WHERE e.owner_id = $1
		ORDER BY b.start_time ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres.FindBookingsByOwner: %w", err)
	}
	return collectBookings(rows)
}

type pgTx struct {
	reader
	tx pgx.Tx
}

// Lock takes one transaction-scoped advisory lock per key, in the order given.
func (t *pgTx) Lock(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("postgres.Lock %s: %w", key, err)
		}
	}
	return nil
}

func (t *pgTx) CreateEventType(ctx context.Context, et model.EventType) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO event_types (id, name, duration_minutes, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, et.ID, et.Name, et.DurationMinutes, et.OwnerID, et.CreatedAt)
	if db.IsUniqueViolation(err) {
		return model.ErrDuplicateEventType
	}
	if err != nil {
		return fmt.Errorf("postgres.CreateEventType: %w", err)
	}
	return nil
}

func (t *pgTx) CreateAvailability(ctx context.Context, av model.Availability) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO availabilities (id, event_type_id, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, av.ID, av.EventTypeID, av.Interval.Start, av.Interval.End, av.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, av.EventTypeID)
	}
	if err != nil {
		return fmt.Errorf("postgres.CreateAvailability: %w", err)
	}
	return nil
}

func (t *pgTx) CreateBooking(ctx context.Context, b model.Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings (id, booker_id, event_type_id, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.BookerID, b.EventTypeID, b.Interval.Start, b.Interval.End, b.CreatedAt)
	switch {
	case db.IsUniqueViolation(err), db.IsExclusionViolation(err):
		return model.ErrSlotTaken
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %s", model.ErrNotFound, b.EventTypeID)
	case err != nil:
		return fmt.Errorf("postgres.CreateBooking: %w", err)
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	if err != nil {
		return fmt.Errorf("postgres.AppendEvent: %w", err)
	}
	return nil
}

func scanEventType(row pgx.Row) (model.EventType, error) {
	var (
		id, name, owner string
		minutes         int
		createdAt       time.Time
	)
	if err := row.Scan(&id, &name, &minutes, &owner, &createdAt); err != nil {
		return model.EventType{}, err
	}
	return model.RestoreEventType(id, name, minutes, owner, createdAt), nil
}

func collectEventTypes(rows pgx.Rows) ([]model.EventType, error) {
	defer rows.Close()
	out := []model.EventType{}
	for rows.Next() {
		et, err := scanEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

func collectAvailabilities(rows pgx.Rows) ([]model.Availability, error) {
	defer rows.Close()
	out := []model.Availability{}
	for rows.Next() {
		var (
			id, etID              string
			start, end, createdAt time.Time
		)
		if err := rows.Scan(&id, &etID, &start, &end, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, model.RestoreAvailability(id, etID, start, end, createdAt))
	}
	return out, rows.Err()
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		var (
			id, bookerID, etID    string
			start, end, createdAt time.Time
		)
		if err := rows.Scan(&id, &bookerID, &etID, &start, &end, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, model.RestoreBooking(id, bookerID, etID, start, end, createdAt))
	}
	return out, rows.Err()
}
