// Package consumer reads outbox events back from Kafka, drops redeliveries
// through an inbox and hands each new event to a Handler.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/bookslot/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookslot/libs/otel"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Delivery is one decoded event.
type Delivery struct {
	EventID     string
	EventType   string
	AggregateID string
	Payload     json.RawMessage
	Topic       string
	Offset      int64
}

// Handler processes one event. A failing call is retried in place up to
// maxAttempts times; after that the event is logged, removed from the inbox
// so an offset replay handles it again, and consumption moves on. Delivery is
// therefore at most once per consumer-group offset.
type Handler func(ctx context.Context, d Delivery) error

const maxAttempts = 3

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

type Consumer struct {
	reader     MessageReader
	logger     *slog.Logger
	inbox      inbox.Inbox
	handler    Handler
	retryDelay time.Duration
}

func New(logger *slog.Logger, in inbox.Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return NewWithReader(logger, in, reader, handler)
}

func NewWithReader(logger *slog.Logger, in inbox.Inbox, reader MessageReader, handler Handler) *Consumer {
	return &Consumer{
		reader:     reader,
		logger:     logger,
		inbox:      in,
		handler:    handler,
		retryDelay: time.Second,
	}
}

// Run blocks until ctx is cancelled, then closes the reader.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	msgCtx := kafkax.ExtractTraceContext(ctx, msg)
	spanCtx, span := otelx.Tracer("scheduler-service/consumer").Start(msgCtx, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)

	fresh, err := c.inbox.Record(spanCtx, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbox")
		return
	}
	if !fresh {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return
	}

	d := Delivery{
		EventID:     meta.EventID,
		EventType:   meta.EventType,
		AggregateID: string(msg.Key),
		Payload:     json.RawMessage(msg.Value),
		Topic:       msg.Topic,
		Offset:      msg.Offset,
	}
	err = c.runHandler(spanCtx, d)
	if err == nil {
		return
	}
	c.logger.Error("handler failed, event dropped", "err", err, "event_id", meta.EventID, "attempts", maxAttempts)
	span.RecordError(err)
	span.SetStatus(codes.Error, "handler")
	if ferr := c.inbox.Forget(spanCtx, meta.EventID); ferr != nil {
		c.logger.Error("inbox forget failed", "err", ferr, "event_id", meta.EventID)
	}
}

func (c *Consumer) runHandler(ctx context.Context, d Delivery) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = c.handler(ctx, d); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		c.logger.Warn("handler error, retrying", "err", err, "event_id", d.EventID, "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return err
}

// LogHandler writes every delivery to logger with its decoded payload.
func LogHandler(logger *slog.Logger) Handler {
	return func(_ context.Context, d Delivery) error {
		var payload map[string]any
		if err := json.Unmarshal(d.Payload, &payload); err != nil {
			return err
		}
		logger.Info("event received",
			"event_id", d.EventID,
			"event_type", d.EventType,
			"aggregate_id", d.AggregateID,
			"payload", payload,
		)
		return nil
	}
}
