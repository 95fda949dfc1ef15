package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/md-rashed-zaman/bookslot/libs/httpx"
	"github.com/md-rashed-zaman/bookslot/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	Service        string
	Logger         *slog.Logger
	Metrics        http.Handler
	ReadyChecks    []runtime.ReadyCheck
	CORS           httpx.CORSPolicy
	RequestTimeout time.Duration
	BodyLimitBytes int64
	// WriteLimiter is applied to POST requests only. Nil disables it.
	WriteLimiter httpx.Middleware
}

// NewRouter assembles probes, metrics and the API behind the shared
// middleware chain and wraps the result for tracing.
func NewRouter(h *SchedulerHandler, cfg RouterConfig) http.Handler {
	if cfg.BodyLimitBytes <= 0 {
		cfg.BodyLimitBytes = 1 << 20
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		httpx.WithRequestID,
		middleware.Recoverer,
		httpx.WithAccessLog(cfg.Logger),
		httpx.WithCORS(cfg.CORS),
	)

	runtime.MountProbes(r, cfg.ReadyChecks...)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(
			httpx.WithBodyLimit(cfg.BodyLimitBytes),
			httpx.WithTimeout(cfg.RequestTimeout),
		)
		if cfg.WriteLimiter != nil {
			r.Use(httpx.OnlyMethods(cfg.WriteLimiter, http.MethodPost))
		}
		h.Mount(r)
	})

	return otelhttp.NewHandler(r, cfg.Service,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
