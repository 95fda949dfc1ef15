// Package inbox remembers which outbox events a consumer has already
// handled so redeliveries are processed once.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/md-rashed-zaman/bookslot/libs/db"
	"github.com/redis/go-redis/v9"
)

var ErrMissingEventID = errors.New("inbox: event id is required")

// Inbox records an event id. Record reports false when the id was seen
// before; Forget removes an id so a later delivery is handled again.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Memory struct {
	mu   sync.Mutex
	seen map[string]string
}

func NewMemory() *Memory {
	return &Memory{seen: make(map[string]string)}
}

func (m *Memory) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if eventID == "" {
		return false, ErrMissingEventID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[eventID]; ok {
		return false, nil
	}
	m.seen[eventID] = eventType
	return true, nil
}

func (m *Memory) Forget(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}

// Redis keeps ids for ttl; consumers sharing a prefix share the inbox.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return false, ErrMissingEventID
	}
	ok, err := r.rdb.SetNX(ctx, r.prefix+":"+eventID, eventType, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("inbox: redis setnx: %w", err)
	}
	return ok, nil
}

func (r *Redis) Forget(ctx context.Context, eventID string) error {
	if err := r.rdb.Del(ctx, r.prefix+":"+eventID).Err(); err != nil {
		return fmt.Errorf("inbox: redis del: %w", err)
	}
	return nil
}

const Schema = `
CREATE TABLE IF NOT EXISTS inbox_events (
  event_id    text PRIMARY KEY,
  event_type  text NOT NULL,
  received_at timestamptz NOT NULL DEFAULT now()
);
`

type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("inbox: migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	if eventID == "" {
		return false, ErrMissingEventID
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, fmt.Errorf("inbox: insert: %w", err)
}

func (p *Postgres) Forget(ctx context.Context, eventID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("inbox: delete: %w", err)
	}
	return nil
}
