package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/storefront-core/internal/config"
	kafkax "github.com/ariefcatur/storefront-core/internal/kafka"
	"github.com/ariefcatur/storefront-core/internal/notify"
	"github.com/ariefcatur/storefront-core/internal/orders"
	"github.com/ariefcatur/storefront-core/internal/outbox"
	"github.com/ariefcatur/storefront-core/internal/postgres"
	"github.com/ariefcatur/storefront-core/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBLockTimeout)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	st := postgres.New(db)

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Transports
	var email outbox.EmailSender = notify.Disabled{Channel: "email"}
	if cfg.SendGridEnabled {
		sg, err := notify.NewSendGrid(cfg.SendGridAPIKey, cfg.MailFrom, cfg.MailFromName)
		if err != nil {
			log.Fatalf("sendgrid: %v", err)
		}
		email = sg
	}
	var sms outbox.SMSSender = notify.Disabled{Channel: "sms"}
	if cfg.SMSEnabled {
		w := kafkax.NewSyncWriter(cfg.KafkaBrokers, cfg.SMSTopic)
		defer w.Close()
		sms = notify.KafkaSMS{W: w}
	}

	worker := outbox.NewWorker(st, email, sms, outbox.Config{
		MaxRetries:      cfg.OutboxMaxRetries,
		BatchSize:       cfg.OutboxBatchSize,
		DispatchTimeout: cfg.OutboxDispatchTimeout,
	})
	worker.Lock = &redisx.Lock{RDB: rdb}

	// Projector: status cache ikut event order dari replica API mana pun
	proj := &orders.Projector{
		Cache: &redisx.StatusCache{RDB: rdb},
		Seen: func(ctx context.Context, eventID string) (bool, error) {
			return redisx.MarkOnce(ctx, rdb, cfg.ConsumerGroup, eventID)
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx, cfg.OutboxInterval)
		return nil
	})
	for _, topic := range []string{orders.TopicOrderPlaced, orders.TopicOrderStatusChanged} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, topic, cfg.ConsumerWorkers)
		g.Go(func() error {
			log.Printf("projector consumer started: group=%s topic=%s workers=%d", cfg.ConsumerGroup, topic, cfg.ConsumerWorkers)
			return cons.Start(gctx, proj.Handle)
		})
	}

	if err := g.Wait(); err != nil {
		log.Printf("notifier exit: %v", err)
	}
	log.Println("notifier stopped")
}
