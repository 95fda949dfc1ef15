package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Source hands out unpublished records. Drain passes at most limit records to
// publish and marks them published only when publish returns nil; records of
// a failed batch are offered again on the next call.
type Source interface {
	Drain(ctx context.Context, limit int, publish func(context.Context, []Record) error) (int, error)
}

// Sink delivers records to a broker.
type Sink interface {
	Publish(ctx context.Context, records []Record) error
	Close() error
}

type RelayConfig struct {
	PollEvery time.Duration
	BatchSize int
}

// Relay polls a Source and forwards batches to a Sink.
type Relay struct {
	source    Source
	sink      Sink
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
}

func NewRelay(source Source, sink Sink, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Relay{
		source:    source,
		sink:      sink,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
}

// Run polls until ctx is done, then closes the sink.
func (r *Relay) Run(ctx context.Context) {
	defer func() {
		if err := r.sink.Close(); err != nil {
			r.logger.Warn("outbox sink close failed", "err", err)
		}
	}()

	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.Error("outbox publish failed", "err", err)
				continue
			}
			if n > 0 {
				r.logger.Debug("outbox batch published", "count", n)
			}
		}
	}
}

// RunOnce publishes a single batch and returns how many records it carried.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	return r.source.Drain(ctx, r.batchSize, r.sink.Publish)
}

// DiscardSink drops every record. It is used when no broker is configured so
// the outbox still drains.
type DiscardSink struct {
	Logger *slog.Logger
}

func (s DiscardSink) Publish(_ context.Context, records []Record) error {
	if s.Logger != nil {
		for _, rec := range records {
			s.Logger.Debug("outbox event discarded", "event_type", rec.EventType, "aggregate_id", rec.AggregateID)
		}
	}
	return nil
}

func (DiscardSink) Close() error { return nil }
