package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmehdipour/optin-gateway/internal/config"
	"github.com/jmehdipour/optin-gateway/internal/db"
	"github.com/jmehdipour/optin-gateway/internal/kafka"
	"github.com/jmehdipour/optin-gateway/internal/logger"
	"github.com/jmehdipour/optin-gateway/internal/mailer"
	"github.com/jmehdipour/optin-gateway/internal/metrics"
	"github.com/jmehdipour/optin-gateway/internal/repository"
	"github.com/jmehdipour/optin-gateway/internal/token"
	"github.com/jmehdipour/optin-gateway/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run the confirmation-email dispatcher",
	RunE:  runDispatcher,
}

func runDispatcher(cmd *cobra.Command, args []string) error {
	// 1) load config
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

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) DB connection (MySQL)
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

	// 3) repositories
	outboxRepo := repository.NewOutboxRepository(dbx)
	subscriptionsRepo := repository.NewSubscriptionsRepository(dbx, outboxRepo)

	// 4) SMTP providers -> mailer pool
	var provs []mailer.Mailer
	for _, pc := range cfg.Email.Providers {
		if !pc.Enabled || strings.TrimSpace(pc.Host) == "" {
			continue
		}
		m, err := mailer.NewSMTPMailer(
			pc.Name,
			pc.Host,
			pc.Port,
			pc.Username,
			pc.Password,
			cfg.Email.Sender,
			pc.Timeout,
			pc.Breaker.FailThreshold,
			pc.Breaker.OpenForMs,
		)
		if err != nil {
			return fmt.Errorf("smtp provider %s: %w", pc.Name, err)
		}
		provs = append(provs, m)
	}
	if len(provs) == 0 {
		return fmt.Errorf("no smtp providers enabled in config")
	}
	pool := mailer.NewPool(provs, cfg.Dispatcher.MaxAttempts)

	// 5) kafka consumer
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "optin-dispatcher"
	}

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.JobsTopic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	tokens := token.NewCodec([]byte(cfg.Token.Secret), cfg.Token.TTL)

	// requeue producer: transiently failed jobs go back onto the jobs topic
	requeue := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.JobsTopic,
	})
	defer func() { _ = requeue.Close() }()

	w := worker.NewDispatcher(
		consumer,
		subscriptionsRepo,
		tokens,
		pool,
		requeue,
		cfg.HTTP.ConfirmationEndpoint,
		cfg.Email.Subject,
	)

	// tune knobs
	if cfg.Dispatcher.WorkerCount > 0 {
		w.Workers = cfg.Dispatcher.WorkerCount
	}
	if cfg.Dispatcher.SendTimeout > 0 {
		w.SendTimeout = cfg.Dispatcher.SendTimeout
	}
	if cfg.Dispatcher.MaxRequeues > 0 {
		w.MaxRequeues = cfg.Dispatcher.MaxRequeues
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf(">> dispatcher started topic=%s group=%s workers=%d providers=%d",
		cfg.Kafka.JobsTopic, groupID, w.Workers, len(provs))

	return w.Run(ctx)
}
