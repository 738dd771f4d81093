package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"

	"ms-fulfillment/internal/app"
	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/kafka"
	"ms-fulfillment/internal/logger"
)

func main() {
	logger := logger.NewLogger("fulfillment-consumer")
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("CONFIG", err.Error())
	}
	if !cfg.Kafka.Enabled {
		logger.Fatal("CONFIG", "KAFKA_ENABLED=false; nothing to consume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := app.ConnectPostgres(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	redisClient, err := app.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer redisClient.Close()

	services, err := app.Build(ctx, cfg, bunDB, redisClient, logger)
	if err != nil {
		logger.Fatal("APP", fmt.Sprintf("Failed to wire services: %v", err))
	}
	defer services.Close()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentConfirmed, cfg.Kafka.GroupID, logger)
	consumer.MaxAttempts = cfg.Kafka.MaxAttempts
	consumer.Backoff = cfg.Kafka.RetryBackoff
	defer consumer.Close()

	logger.Info("APP", fmt.Sprintf("Consuming %s as %s", cfg.Kafka.Topics.PaymentConfirmed, cfg.Kafka.GroupID))
	err = consumer.Start(ctx, func(ctx context.Context, msg kafkago.Message) error {
		return services.Orders.HandlePaymentConfirmed(ctx, msg.Value)
	})
	if err != nil {
		// Exit non-zero so the supervisor restarts us at the uncommitted offset.
		logger.Fatal("KAFKA", err.Error())
	}
	logger.Info("APP", "Consumer shutdown complete")
}
