package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spbu-ds-practicum-2025/ledger-service/internal/audit"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/config"
	"github.com/spbu-ds-practicum-2025/ledger-service/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Configure(os.Stdout, cfg.LogLevel)
	logger.Info("starting ledger auditor", logger.Fields{
		"clickhouse": cfg.ClickHouse.Host,
		"database":   cfg.ClickHouse.Database,
		"queue":      cfg.RabbitMQ.Queue,
	})

	if err := run(cfg); err != nil {
		logger.Error("ledger auditor stopped with error", err, nil)
		os.Exit(1)
	}
	logger.Info("ledger auditor stopped gracefully", nil)
}

func run(cfg *config.Config) error {
	if cfg.RabbitMQ.URL == "" {
		return errors.New("RABBITMQ_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clickhouseClient, err := audit.NewClickHouseClient(ctx, cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to initialize clickhouse client: %w", err)
	}
	defer clickhouseClient.Close()

	if err := clickhouseClient.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	logger.Info("successfully connected to clickhouse", nil)

	consumer, err := audit.NewRabbitMQConsumer(cfg.RabbitMQ, audit.NewOperationRepository(clickhouseClient))
	if err != nil {
		return fmt.Errorf("failed to create rabbitmq consumer: %w", err)
	}
	defer consumer.Close()

	return consumer.Start(ctx)
}
