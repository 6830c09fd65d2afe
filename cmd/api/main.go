package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bizlinkhq/bizlink-server/internal/api/router"
	"github.com/bizlinkhq/bizlink-server/internal/autoreply"
	"github.com/bizlinkhq/bizlink-server/internal/cache"
	appconfig "github.com/bizlinkhq/bizlink-server/internal/config"
	"github.com/bizlinkhq/bizlink-server/internal/conversation"
	"github.com/bizlinkhq/bizlink-server/internal/directory"
	"github.com/bizlinkhq/bizlink-server/internal/http/handlers"
	"github.com/bizlinkhq/bizlink-server/internal/inbox"
	"github.com/bizlinkhq/bizlink-server/internal/message"
	"github.com/bizlinkhq/bizlink-server/internal/notify"
	"github.com/bizlinkhq/bizlink-server/internal/observability/metrics"
	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting bizlink-server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to reach database", "error", err)
		os.Exit(1)
	}

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The cache degrades to pass-through when redis is down, so this
		// is a warning, not a fatal.
		logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
	}

	chatMetrics := metrics.NewChatMetrics(nil)
	chatCache := cache.New(redisClient, cfg.CacheTTL, chatMetrics, logger)

	directoryStore := directory.NewStore(pool)
	directorySvc := directory.NewService(directoryStore, logger)

	conversationStore := conversation.NewStore(pool)
	messageStore := message.NewStore(pool)

	hub := notify.NewHub(logger)

	conversationSvc := conversation.NewService(conversationStore, messageStore, chatCache, hub, chatMetrics, logger)

	messageSvc := message.NewService(messageStore, conversationSvc, chatCache, hub, chatMetrics, logger)
	conversationSvc.SetAnnouncer(messageSvc)

	engine := autoreply.NewEngine(conversationSvc, chatMetrics, logger,
		autoreply.WithTurnCeiling(cfg.AutoChatMaxMessages),
		autoreply.WithContacts(directorySvc),
	)
	messageSvc.SetResponder(engine)

	inboxSvc := inbox.NewService(conversationStore, messageStore, chatCache, logger,
		cfg.ConversationPageSize, cfg.MessagePageSize)

	chatHandler := handlers.NewChatHandler(conversationSvc, messageSvc, inboxSvc, directorySvc, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        chatHandler,
		Hub:                hub,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
