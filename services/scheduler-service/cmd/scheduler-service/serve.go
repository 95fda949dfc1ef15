package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/bookslot/libs/config"
	"github.com/md-rashed-zaman/bookslot/libs/grpcx"
	"github.com/md-rashed-zaman/bookslot/libs/httpx"
	"github.com/md-rashed-zaman/bookslot/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookslot/libs/otel"
	"github.com/md-rashed-zaman/bookslot/libs/runtime"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/booking"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/handlers"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/metrics"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/outbox"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the gRPC health endpoint and the outbox relay",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "HTTP port (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply the storage schema before serving")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	ctx, stop := runtime.SignalContext(cmd.Context())
	defer stop()

	otelCfg, err := otelx.ConfigFromEnv(cfg.ServiceName)
	if err != nil {
		return err
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()
	if serveMigrate || cfg.StorageDriver == driverSQLite {
		if err := be.migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	m := metrics.New()
	svc := booking.NewService(be.store, logger, booking.WithObserver(m))
	checks := be.checks

	sink, sinkChecks, err := openSink(cfg, logger)
	if err != nil {
		return err
	}
	checks = append(checks, sinkChecks...)
	relay := outbox.NewRelay(be.source, sink, logger, outbox.RelayConfig{
		PollEvery: cfg.OutboxPollEvery,
		BatchSize: cfg.OutboxBatchSize,
	})
	waitRelay := startRelay(ctx, relay)
	// Runs before be.close: the relay must not drain a closed store.
	defer func() {
		stop()
		waitRelay()
	}()

	limiter, limiterChecks, closeLimiter := writeLimiter(cfg, logger)
	defer closeLimiter()
	checks = append(checks, limiterChecks...)

	router := handlers.NewRouter(handlers.NewSchedulerHandler(svc, logger), handlers.RouterConfig{
		Service:        cfg.ServiceName,
		Logger:         logger,
		Metrics:        m.Handler(),
		ReadyChecks:    checks,
		RequestTimeout: cfg.RequestTimeout,
		WriteLimiter:   limiter,
		CORS: httpx.CORSPolicy{
			AllowedOrigins: config.SplitList(cfg.CORSAllowedOrigins),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		},
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger, m.GRPCServerOption())
	m.InitializeGRPC(grpcSrv)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcx.MarkServing(health, cfg.ServiceName)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	grpcx.Stop(grpcSrv, health, 10*time.Second)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("servers stopped")
	return nil
}

// openSink prefers Kafka, then NATS, and otherwise drains the outbox into
// the log.
func openSink(cfg Config, logger *slog.Logger) (outbox.Sink, []runtime.ReadyCheck, error) {
	switch {
	case len(kafkax.SplitBrokers(cfg.KafkaBrokers)) > 0:
		logger.Info("outbox relay publishing to kafka", "brokers", cfg.KafkaBrokers)
		return outbox.NewKafkaSink(cfg.KafkaBrokers),
			[]runtime.ReadyCheck{{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)}}, nil
	case cfg.NATSURL != "":
		sink, err := outbox.NewNATSSink(cfg.NATSURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("outbox relay publishing to nats", "url", cfg.NATSURL)
		return sink, nil, nil
	default:
		logger.Warn("outbox relay has no broker configured; events are discarded after logging")
		return outbox.DiscardSink{Logger: logger}, nil, nil
	}
}

// startRelay runs the relay in the background. The returned func blocks
// until Run has returned, which happens once ctx is cancelled.
func startRelay(ctx context.Context, relay *outbox.Relay) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(ctx)
	}()
	return func() { <-done }
}

// writeLimiter shares limits across replicas through Redis when REDIS_ADDR
// is set and falls back to a process-local window otherwise. The returned
// func releases the Redis client.
func writeLimiter(cfg Config, logger *slog.Logger) (httpx.Middleware, []runtime.ReadyCheck, func()) {
	noop := func() {}
	if cfg.RateLimitPerMinute <= 0 {
		return nil, nil, noop
	}
	if cfg.RedisAddr == "" {
		return httpx.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute, httpx.ClientIP).Middleware(), nil, noop
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	rl := httpx.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, cfg.ServiceName+":writes", httpx.ClientIP)
	closeClient := func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("redis close failed", "err", err)
		}
	}
	return rl.Middleware(logger, true), []runtime.ReadyCheck{{Name: "redis", Check: httpx.RedisReadyCheck(rdb)}}, closeClient
}
