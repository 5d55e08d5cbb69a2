package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yinnstore/otpmarket/internal/config"
	"github.com/yinnstore/otpmarket/internal/engine"
	"github.com/yinnstore/otpmarket/internal/handlers"
	"github.com/yinnstore/otpmarket/internal/history"
	"github.com/yinnstore/otpmarket/internal/middleware"
	"github.com/yinnstore/otpmarket/internal/notify"
	"github.com/yinnstore/otpmarket/internal/provider"
	"github.com/yinnstore/otpmarket/internal/store"
	"github.com/yinnstore/otpmarket/internal/wallet"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx := context.Background()

	// MongoDB
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongoClient.Disconnect(ctx)

	database := mongoClient.Database(cfg.MongoDatabase)

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// RabbitMQ
	rabbitConn, err := amqp.Dial(cfg.RabbitURI)
	if err != nil {
		logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rabbitConn.Close()

	rabbitChannel, err := rabbitConn.Channel()
	if err != nil {
		logger.Fatalf("Failed to open RabbitMQ channel: %v", err)
	}
	defer rabbitChannel.Close()

	if err := declareTopology(rabbitChannel); err != nil {
		logger.Fatalf("Failed to declare RabbitMQ topology: %v", err)
	}

	// Wiring
	st := store.NewRedisStore(redisClient, logger)
	historyRepo := history.NewRepository(database, logger)
	if err := historyRepo.EnsureIndexes(ctx); err != nil {
		logger.Warnf("Failed to ensure history indexes: %v", err)
	}

	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, logger)
	walletClient := wallet.NewClient(cfg.WalletBaseURL, cfg.WalletToken, st, logger)
	notifier := notify.NewNotifier(rabbitChannel, st, logger)
	metrics := engine.NewMetrics()

	eng := engine.New(st, providerClient, walletClient, notifier, historyRepo, metrics, logger, engine.Config{
		Markup:              cfg.Markup,
		PollInterval:        cfg.PollInterval,
		ExpiryCheckInterval: cfg.ExpiryCheckInterval,
		CancelCooldown:      cfg.CancelCooldown,
		DefaultExpiryMinute: cfg.DefaultExpiryMinute,
	})

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()
	eng.Run(engineCtx)

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health", "/metrics"},
	}))

	httpHandler := handlers.NewHTTPHandler(eng, providerClient, walletClient, st, historyRepo, logger)
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret)

	router.GET("/health", httpHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(auth.Authenticate())
	{
		api.GET("/services", httpHandler.ListServices)
		api.GET("/countries", httpHandler.ListCountries)
		api.GET("/operators", httpHandler.ListOperators)
		api.POST("/orders", httpHandler.CreateOrder)
		api.GET("/orders/active", httpHandler.ActiveOrder)
		api.POST("/orders/cancel", httpHandler.CancelOrder)
		api.GET("/balance", httpHandler.Balance)
		api.GET("/activity", httpHandler.Activity)
		api.GET("/history", httpHandler.History)
		api.GET("/notifications", httpHandler.GetNotifyPref)
		api.PUT("/notifications", httpHandler.SetNotifyPref)
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		logger.Infof("Starting HTTP server on port %s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	stopEngine()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("HTTP server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		notify.EventsExchange, // name
		"topic",               // type
		true,                  // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", notify.EventsExchange, err)
	}

	if _, err := ch.QueueDeclare(
		"orders.otp", // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("failed to declare orders.otp queue: %w", err)
	}

	if err := ch.QueueBind(
		"orders.otp",
		notify.OTPRoutingKey,
		notify.EventsExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind orders.otp queue: %w", err)
	}

	return nil
}
