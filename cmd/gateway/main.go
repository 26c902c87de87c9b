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

	"github.com/syuchan1005/CardNotifier/internal/alias"
	"github.com/syuchan1005/CardNotifier/internal/config"
	"github.com/syuchan1005/CardNotifier/internal/handler"
	"github.com/syuchan1005/CardNotifier/internal/httpserver"
	"github.com/syuchan1005/CardNotifier/internal/provisioning"
	"github.com/syuchan1005/CardNotifier/internal/repository"
	"github.com/syuchan1005/CardNotifier/internal/webpush"
	"github.com/syuchan1005/CardNotifier/pkg/db"
	"github.com/syuchan1005/CardNotifier/pkg/logger"
	"github.com/syuchan1005/CardNotifier/pkg/mq"
	"github.com/syuchan1005/CardNotifier/pkg/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer log.Sync()

	log.Info("Starting gateway...")

	shutdownOTel, err := otel.Init("cardnotifier-gateway", cfg.OTel, log)
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

	// Init MQ
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("MQ publisher initialization failed", zap.Error(err))
	}
	defer publisher.Close()

	// VAPID 公钥由客户端订阅时使用
	vapid, err := webpush.NewVAPID(cfg.VAPID.PublicKey, cfg.VAPID.PrivateKey, cfg.VAPID.Subject)
	if err != nil {
		log.Fatal("Invalid VAPID keys", zap.Error(err))
	}

	ruleRepo := repository.NewRoutingRuleRepository(dbConn)
	subRepo := repository.NewPushSubscriptionRepository(dbConn)

	handlers := httpserver.Handlers{
		Inbound:      handler.NewInboundHandler(publisher, cfg.Ingest.ForwardingHintHeader, cfg.Server.MaxBodySize, log),
		Notification: handler.NewNotificationHandler(vapid.PublicKey(), subRepo, log),
	}

	// 别名管理依赖远端路由 API，未配置时不注册这些路由
	if remote, err := provisioning.New(cfg.Cloudflare, log); err != nil {
		log.Warn("Alias provisioning disabled", zap.Error(err))
	} else {
		aliasSvc := alias.NewService(ruleRepo, remote, cfg.Cloudflare.AliasDomain, log)
		handlers.Alias = handler.NewAliasHandler(aliasSvc, log)
	}

	router := httpserver.NewRouter(handlers, map[string]httpserver.ReadinessCheck{
		"db": dbConn.Ping,
		"mq": func(context.Context) error {
			if !publisher.IsConnected() {
				return errors.New("publisher disconnected")
			}
			return nil
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gateway gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("Gateway shutdown complete")
}
