package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/optin-gateway/internal/config"
	"github.com/jmehdipour/optin-gateway/internal/db"
	"github.com/jmehdipour/optin-gateway/internal/kafka"
	"github.com/jmehdipour/optin-gateway/internal/logger"
	"github.com/jmehdipour/optin-gateway/internal/repository"
	"github.com/jmehdipour/optin-gateway/internal/worker"
	"github.com/spf13/cobra"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the outbox relay (confirmed events -> Kafka)",
	RunE:  runRelay,
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	outboxRepo := repository.NewOutboxRepository(dbx)

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.EventsTopic,
	})
	defer func() { _ = producer.Close() }()

	r := worker.NewRelay(outboxRepo, producer)
	if cfg.Relay.BatchSize > 0 {
		r.BatchSize = cfg.Relay.BatchSize
	}
	if cfg.Relay.PollInterval > 0 {
		r.PollInterval = cfg.Relay.PollInterval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> relay started topic=%s batch=%d interval=%s",
		cfg.Kafka.EventsTopic, r.BatchSize, r.PollInterval)

	return r.Run(ctx)
}
