package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	contractsmq "github.com/syuchan1005/CardNotifier/contracts/mq"
	"github.com/syuchan1005/CardNotifier/internal/config"
	"github.com/syuchan1005/CardNotifier/internal/extractor"
	"github.com/syuchan1005/CardNotifier/internal/fanout"
	"github.com/syuchan1005/CardNotifier/internal/httpserver"
	"github.com/syuchan1005/CardNotifier/internal/llm"
	"github.com/syuchan1005/CardNotifier/internal/mqhandler"
	"github.com/syuchan1005/CardNotifier/internal/pipeline"
	"github.com/syuchan1005/CardNotifier/internal/repository"
	"github.com/syuchan1005/CardNotifier/internal/resolver"
	"github.com/syuchan1005/CardNotifier/internal/retention"
	"github.com/syuchan1005/CardNotifier/internal/webpush"
	pkgconfig "github.com/syuchan1005/CardNotifier/pkg/config"
	"github.com/syuchan1005/CardNotifier/pkg/db"
	"github.com/syuchan1005/CardNotifier/pkg/logger"
	"github.com/syuchan1005/CardNotifier/pkg/mq"
	"github.com/syuchan1005/CardNotifier/pkg/otel"
	redisclient "github.com/syuchan1005/CardNotifier/pkg/redis"
	"github.com/syuchan1005/CardNotifier/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer log.Sync()

	log.Info("Starting worker...")

	shutdownOTel, err := otel.Init("cardnotifier-worker", cfg.OTel, log)
	if err != nil {
		log.Warn("Failed to initialize OpenTelemetry, continuing without tracing", zap.Error(err))
		shutdownOTel = func() {}
	}
	defer shutdownOTel()

	// Init DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Init Redis
	rdb, err := redisclient.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()
	deduper := util.NewDeduper(rdb, cfg.Redis.DedupTTL, log)
	retryCounter := util.NewRetryCounter(rdb, cfg.MQ.RetryTTL)

	// Init MQ
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("MQ publisher initialization failed", zap.Error(err))
	}
	defer publisher.Close()

	llmClient, err := llm.New(cfg.LLM, log)
	if err != nil {
		log.Fatal("LLM client initialization failed", zap.Error(err))
	}
	vapid, err := webpush.NewVAPID(cfg.VAPID.PublicKey, cfg.VAPID.PrivateKey, cfg.VAPID.Subject)
	if err != nil {
		log.Fatal("Invalid VAPID keys", zap.Error(err))
	}

	// Init Repositories
	emailRepo := repository.NewEmailRepository(dbConn)
	txRepo := repository.NewTransactionRepository(dbConn)
	ruleRepo := repository.NewRoutingRuleRepository(dbConn)
	subRepo := repository.NewPushSubscriptionRepository(dbConn)

	p := pipeline.New(pipeline.Deps{
		Resolver:      resolver.New(ruleRepo, log),
		Emails:        emailRepo,
		Transactions:  txRepo,
		Extractor:     extractor.New(llmClient, cfg.Location(), log),
		Sweeper:       retention.New(emailRepo, cfg.Ingest.RetentionHorizon, log),
		Notifier:      fanout.New(subRepo, webpush.NewSender(vapid, cfg.VAPID.TTL, nil), log),
		Subscriptions: subRepo,
		Deduper:       deduper,
	}, cfg.Ingest.ForwardingHintHeader, log)

	inboundHandler := mqhandler.NewInboundMailHandler(p, publisher, retryCounter, cfg.MQ.MaxRetries, log)

	log.Info("Initializing inbound mail consumer", zap.String("queue", cfg.MQ.Queue))
	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.MQ.Queue, contractsmq.RoutingKeyMailInbound, cfg.MQ.Prefetch, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(inboundHandler.HandleInboundMail)

	ctx, stop := context.WithCancel(context.Background())
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.StartConsuming(ctx); err != nil {
			log.Error("Inbound mail consumer stopped", zap.Error(err))
		}
	}()

	// HTTP Server (health checks + metrics)
	router := httpserver.NewRouter(httpserver.Handlers{}, map[string]httpserver.ReadinessCheck{
		"db": dbConn.Ping,
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
		"mq": func(context.Context) error {
			if !consumer.IsConnected() {
				return errors.New("consumer disconnected")
			}
			return nil
		},
	})
	srv := &http.Server{
		Addr:              ":" + pkgconfig.GetEnv("WORKER_HTTP_PORT", "9090"),
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("Worker is ready to process messages")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-consumerDone:
	}

	log.Info("Shutting down worker gracefully...")
	// 正在处理的消息会先完成（含推送），再退出消费循环
	stop()
	<-consumerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("Worker shutdown complete")
}
