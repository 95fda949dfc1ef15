package main

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/bookslot/libs/db"
	"github.com/md-rashed-zaman/bookslot/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookslot/libs/otel"
	"github.com/md-rashed-zaman/bookslot/libs/runtime"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/consumer"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/inbox"
	"github.com/md-rashed-zaman/bookslot/services/scheduler-service/internal/outbox"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var watchGroup string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Consume published scheduling events from Kafka and log them once each",
	Long: `watch joins a Kafka consumer group on the event type, availability and
booking topics. Redeliveries are dropped through an inbox kept in Redis
(REDIS_ADDR), Postgres (STORAGE_DRIVER=postgres) or memory.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchGroup, "group", "bookslot-watch", "kafka consumer group id")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(kafkax.SplitBrokers(cfg.KafkaBrokers)) == 0 {
		return errors.New("KAFKA_BROKERS is required for watch")
	}
	logger := runtime.NewLogger(cfg.ServiceName + "-watch")

	ctx, stop := runtime.SignalContext(cmd.Context())
	defer stop()

	otelCfg, err := otelx.ConfigFromEnv(cfg.ServiceName + "-watch")
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

	var in inbox.Inbox
	switch {
	case cfg.RedisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		in = inbox.NewRedis(rdb, "bookslot:inbox:"+watchGroup, 0)
	case cfg.StorageDriver == driverPostgres:
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: 2})
		if err != nil {
			return err
		}
		defer pool.Close()
		pg := inbox.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		in = pg
	default:
		logger.Warn("inbox kept in memory; restarts may reprocess events")
		in = inbox.NewMemory()
	}

	c := consumer.New(logger, in, consumer.Config{
		Brokers: cfg.KafkaBrokers,
		GroupID: watchGroup,
		Topics:  []string{outbox.EventTypeCreated, outbox.AvailabilityCreated, outbox.BookingCreated},
	}, consumer.LogHandler(logger))

	logger.Info("watching events", "group", watchGroup, "brokers", cfg.KafkaBrokers)
	c.Run(ctx)
	return nil
}
