package outbox

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/bookslot/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookslot/libs/otel"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const SubjectPrefix = "bookslot."

// MsgPublisher is the subset of *nats.Conn the sink needs.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSSink publishes each record on subject "bookslot.<event type>".
type NATSSink struct {
	conn MsgPublisher
}

func NewNATSSink(url string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("scheduler-service outbox"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return NewNATSSinkWithConn(nc), nil
}

func NewNATSSinkWithConn(conn MsgPublisher) *NATSSink {
	return &NATSSink{conn: conn}
}

func (s *NATSSink) Publish(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := s.conn.PublishMsg(natsMessage(ctx, r)); err != nil {
			return fmt.Errorf("publish %s: %w", r.EventType, err)
		}
	}
	return s.conn.FlushWithContext(ctx)
}

func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}

func natsMessage(ctx context.Context, r Record) *nats.Msg {
	msg := nats.NewMsg(SubjectPrefix + r.EventType)
	msg.Data = r.Payload
	msg.Header.Set(kafkax.HeaderEventID, r.EventID)
	msg.Header.Set(kafkax.HeaderEventType, r.EventType)
	msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
	otel.GetTextMapPropagator().Inject(msgCtx, propagation.HeaderCarrier(msg.Header))
	return msg
}
