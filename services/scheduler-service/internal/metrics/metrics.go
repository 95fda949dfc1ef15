package metrics

import (
	"context"
	"net/http"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

const namespace = "bookslot"

// Metrics owns a private registry. It implements booking.Observer.
type Metrics struct {
	reg        *prometheus.Registry
	decisions  *prometheus.CounterVec
	slotsTime  prometheus.Histogram
	slotsCount prometheus.Histogram
	grpc       *grpcprom.ServerMetrics
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srvMetrics := grpcprom.NewServerMetrics(
		grpcprom.WithServerHandlingTimeHistogram(
			grpcprom.WithHistogramBuckets([]float64{0.001, 0.01, 0.1, 0.3, 0.6, 1, 3}),
		),
	)
	reg.MustRegister(srvMetrics)

	return &Metrics{
		reg:  reg,
		grpc: srvMetrics,
		decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Write decisions by kind (booking, availability, event_type) and outcome.",
		}, []string{"kind", "outcome"}),
		slotsTime: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_generation_seconds",
			Help:      "Time spent computing free slots for one event type.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		slotsCount: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slots_returned",
			Help:      "Number of free slots returned per computation.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 250},
		}),
	}
}

func (m *Metrics) Decision(kind, outcome string) {
	m.decisions.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SlotsGenerated(elapsed time.Duration, count int) {
	m.slotsTime.Observe(elapsed.Seconds())
	m.slotsCount.Observe(float64(count))
}

// Handler serves the registry in OpenMetrics format when the scraper asks for it.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// GRPCServerOption adds per-method gRPC counters and latency histograms,
// with the sampled trace id as exemplar.
func (m *Metrics) GRPCServerOption() grpc.ServerOption {
	exemplarFromContext := func(ctx context.Context) prometheus.Labels {
		if span := trace.SpanContextFromContext(ctx); span.IsSampled() {
			return prometheus.Labels{"traceID": span.TraceID().String()}
		}
		return nil
	}
	return grpc.ChainUnaryInterceptor(m.grpc.UnaryServerInterceptor(grpcprom.WithExemplarFromContext(exemplarFromContext)))
}

// InitializeGRPC pre-populates zero series for every registered service method.
func (m *Metrics) InitializeGRPC(srv *grpc.Server) {
	m.grpc.InitializeMetrics(srv)
}
