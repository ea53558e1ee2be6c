package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/streamware/chat-relay/internal/config"
	"github.com/streamware/chat-relay/internal/delivery"
	"github.com/streamware/chat-relay/internal/handler"
	"github.com/streamware/chat-relay/internal/infra/postgresql"
	"github.com/streamware/chat-relay/internal/infra/postgresql/migrations"
	infraredis "github.com/streamware/chat-relay/internal/infra/redis"
	"github.com/streamware/chat-relay/internal/ingest"
	"github.com/streamware/chat-relay/internal/journal"
	"github.com/streamware/chat-relay/internal/observability"
	"github.com/streamware/chat-relay/internal/ratelimit"
	"github.com/streamware/chat-relay/internal/scheduler"
	"github.com/streamware/chat-relay/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *goredis.Client
	var store ratelimit.HistoryStore
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis initialization failed", zap.Error(err))
		}
		defer rdb.Close()

		store, err = infraredis.NewHistoryStore(rdb, "chat")
		if err != nil {
			logger.Fatal("history store initialization failed", zap.Error(err))
		}
		logger.Info("using redis-backed admission history")
	} else {
		store = ratelimit.NewMemoryHistory()
		logger.Info("using in-memory admission history")
	}

	limiter, err := ratelimit.NewLimiter(cfg.LimiterConfig(), store, logger)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}
	defer limiter.Close()

	webhook, err := delivery.NewWebhook(cfg.ChatWebhookURL)
	if err != nil {
		logger.Fatal("webhook initialization failed", zap.Error(err))
	}

	sched, err := scheduler.NewScheduler(cfg.SchedulerConfig(), limiter, webhook, logger)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}
	sched.SetMetrics(metrics)

	var sqlDB *sql.DB
	var journalRepo journal.Repository
	if cfg.DatabaseDSN != "" {
		db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal("postgres initialization failed", zap.Error(err))
		}

		if err := migrations.Migrate(db); err != nil {
			logger.Fatal("database migrations failed", zap.Error(err))
		}

		sqlDB, err = db.DB()
		if err != nil {
			logger.Fatal("postgres underlying db init failed", zap.Error(err))
		}
		defer sqlDB.Close()

		repo := journal.NewGormRepository(db)
		journalRepo = repo

		sink, err := journal.NewSink(repo, logger)
		if err != nil {
			logger.Fatal("journal sink initialization failed", zap.Error(err))
		}
		sched.Subscribe(sink)
		logger.Info("delivery journal enabled")
	}

	var consumer *ingest.Consumer
	if cfg.RabbitMQURL != "" {
		rmq, err := ingest.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			logger.Fatal("rabbitmq initialization failed", zap.Error(err))
		}
		defer rmq.Close()

		consumer, err = ingest.NewConsumer(rmq, sched, cfg.IngestRatePerSec, 1, logger)
		if err != nil {
			logger.Fatal("candidate consumer initialization failed", zap.Error(err))
		}

		outcomes, err := ingest.NewOutcomeSink(rmq, logger)
		if err != nil {
			logger.Fatal("outcome sink initialization failed", zap.Error(err))
		}
		sched.Subscribe(outcomes)
		logger.Info("broker ingest enabled")
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", metricsHandler(metrics))
	if err := handler.RegisterCommentRoutes(app, sched, limiter, journalRepo); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Start(groupCtx)
	})

	if consumer != nil {
		g.Go(func() error {
			return consumer.Start(groupCtx)
		})
	}

	g.Go(func() error {
		logger.Info("chat relay api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("relay terminated with error", zap.Error(err))
	}

	logger.Info("chat relay stopped")
}

func metricsHandler(metrics *observability.Metrics) fiber.Handler {
	h := fasthttpadaptor.NewFastHTTPHandler(metrics.Handler())
	return func(c *fiber.Ctx) error {
		h(c.Context())
		return nil
	}
}
