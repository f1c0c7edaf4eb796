// Worker consumes notification messages from Kafka, renders and sends them through the mail
// relay, and optionally pushes one delivery line per message to Loki.
// Set KAFKA_BROKERS, NOTIFY_KAFKA_TOPIC, KAFKA_GROUP_ID, MAIL_RELAY_URL and optionally LOKI_URL.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"consultancy-auth/backend/internal/config"
	"consultancy-auth/backend/internal/logger"
	"consultancy-auth/backend/internal/notify"
	"consultancy-auth/backend/internal/notify/mailer"
	"consultancy-auth/backend/internal/telemetry/loki"
)

const sendTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	if cfg.MailRelayURL == "" {
		log.Fatal("worker: MAIL_RELAY_URL is required")
	}

	renderer, err := mailer.NewRenderer(cfg.ClientURL)
	if err != nil {
		log.Fatal("worker: templates", zap.Error(err))
	}
	m := mailer.New(renderer, mailer.NewRelayClient(cfg.MailRelayAPIKey, cfg.MailRelayURL), cfg.MailFrom, log)

	var deliveries *loki.Client
	if cfg.LokiURL != "" {
		deliveries = loki.NewClient(cfg.LokiURL)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.NotifyKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker: consuming",
		zap.String("topic", cfg.NotifyKafkaTopic),
		zap.String("group", cfg.KafkaGroupID),
		zap.Bool("loki", deliveries != nil))

	for {
		kmsg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker: stopped")
				return
			}
			log.Warn("worker: kafka read error", zap.Error(err))
			continue
		}
		deliver(ctx, m, deliveries, log, kmsg.Value)
	}
}

// deliver sends one encoded message. Malformed messages are logged and skipped; they are
// never retried.
func deliver(ctx context.Context, n notify.Notifier, deliveries *loki.Client, log *zap.Logger, value []byte) {
	msg, err := notify.Decode(value)
	if err != nil {
		log.Warn("worker: dropping malformed message", zap.Error(err))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	rec := loki.DeliveryRecord{Kind: string(msg.Kind), Recipient: msg.RecipientEmail, Status: "sent"}
	if err := n.Notify(sendCtx, msg); err != nil {
		log.Error("worker: delivery failed", zap.String("kind", string(msg.Kind)), zap.Error(err))
		rec.Status = "failed"
		rec.Error = err.Error()
	}
	if deliveries == nil {
		return
	}
	if err := deliveries.PushDelivery(sendCtx, time.Now(), rec); err != nil {
		log.Warn("worker: loki push failed", zap.Error(err))
	}
}
