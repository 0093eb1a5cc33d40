package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/storefront-core/internal/audit"
	"github.com/ariefcatur/storefront-core/internal/checkout"
	"github.com/ariefcatur/storefront-core/internal/config"
	"github.com/ariefcatur/storefront-core/internal/coupons"
	"github.com/ariefcatur/storefront-core/internal/httpx"
	"github.com/ariefcatur/storefront-core/internal/inventory"
	kafkax "github.com/ariefcatur/storefront-core/internal/kafka"
	"github.com/ariefcatur/storefront-core/internal/memstore"
	"github.com/ariefcatur/storefront-core/internal/notify"
	"github.com/ariefcatur/storefront-core/internal/orders"
	"github.com/ariefcatur/storefront-core/internal/outbox"
	"github.com/ariefcatur/storefront-core/internal/postgres"
	"github.com/ariefcatur/storefront-core/internal/redisx"
	"github.com/ariefcatur/storefront-core/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer closeStore()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, satu per topic. Loop producer pakai context sendiri
	// supaya inbox tetap di-flush setelah signal.
	pctx, pcancel := context.WithCancel(context.Background())
	defer pcancel()
	pPlaced := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024)
	pAudit := kafkax.NewProducer(cfg.KafkaBrokers, audit.TopicAudit, 1024)
	producers := []*kafkax.Producer{pPlaced, pStatus, pAudit}
	for _, p := range producers {
		p.Start(pctx)
	}

	// Services
	retries := cfg.StoreRetryAttempts
	ledger := &inventory.Ledger{Store: st, Retries: retries}
	ob := &outbox.Outbox{Store: st, Retries: retries}
	redeemer := &coupons.Redeemer{Store: st, Retries: retries}
	admin := &coupons.Admin{Store: st, Retries: retries}
	cache := &redisx.StatusCache{RDB: rdb}
	sink := audit.KafkaSink{Pub: pAudit, Fallback: audit.LogSink{}}

	svc := &checkout.Service{
		Store:       st,
		Ledger:      ledger,
		Coupons:     redeemer,
		Outbox:      ob,
		Events:      pPlaced,
		Idem:        &redisx.Idempotency{RDB: rdb},
		ShippingFee: cfg.ShippingFee,
		Source:      cfg.ServiceName,
		Retries:     retries,
	}
	wf := &orders.Workflow{
		Store:   st,
		Ledger:  ledger,
		Outbox:  ob,
		Events:  pStatus,
		Cache:   cache,
		Audit:   sink,
		Source:  cfg.ServiceName,
		Retries: retries,
	}

	// Router & handlers
	router := httpx.NewRouter()
	(&httpx.CheckoutHandler{Checkout: svc}).Register(router)
	(&httpx.OrdersHandler{Workflow: wf, Cache: cache}).Register(router)
	(&httpx.InventoryHandler{Ledger: ledger, LowStockThreshold: cfg.LowStockThreshold, Audit: sink}).Register(router)
	(&httpx.CouponsHandler{Redeemer: redeemer, Admin: admin, ShippingFee: cfg.ShippingFee, Audit: sink}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("HTTP listening at %s (store=%s)", cfg.HTTPAddr, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if cfg.OutboxWorkerInProc {
		// mode dev: worker jalan di proses API, transport cuma log
		w := outbox.NewWorker(st, notify.Log{}, notify.Log{}, outboxConfig(cfg))
		w.Lock = &redisx.Lock{RDB: rdb}
		g.Go(func() error {
			w.Run(gctx, cfg.OutboxInterval)
			return nil
		})
	}
	g.Go(func() error {
		expireCoupons(gctx, admin, time.Hour)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("exit: %v", err)
	}

	for _, p := range producers {
		p.Close() // tutup inbox -> flush & close writer
	}
	for _, p := range producers {
		p.WaitClosed()
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	if cfg.StoreDriver == "memory" {
		st := memstore.New()
		if err := outbox.SeedTemplates(ctx, st); err != nil {
			return nil, nil, err
		}
		log.Println("[store] using in-memory store, data is lost on exit")
		return st, func() {}, nil
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBLockTimeout)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return postgres.New(db), db.Close, nil
}

func outboxConfig(cfg config.Config) outbox.Config {
	return outbox.Config{
		MaxRetries:      cfg.OutboxMaxRetries,
		BatchSize:       cfg.OutboxBatchSize,
		DispatchTimeout: cfg.OutboxDispatchTimeout,
	}
}

// expireCoupons menandai kupon yang lewat valid_to sebagai EXPIRED.
func expireCoupons(ctx context.Context, admin *coupons.Admin, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if n, err := admin.ExpireStale(ctx); err != nil {
			log.Printf("[coupons] expire: %v", err)
		} else if n > 0 {
			log.Printf("[coupons] expired %d coupons", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
