package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/consumers"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logx"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logx.Must(cfg.AppEnv).Named("worker")
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store: worker dan api harus melihat data yang sama
	if !cfg.SharedStore() {
		log.Fatal("worker needs a shared store, set STORE_DRIVER to postgres or mongo",
			zap.String("store", cfg.StoreDriver))
	}
	st, err := store.Open(ctx, cfg, false, log)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}

	// Redis dedup
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	// Service
	svc := &consumers.Service{
		Ratings:  catalog.NewService(st, domain.NopPublisher{}, log.Named("catalog")),
		Users:    st,
		Sender:   notify.LogSender{Log: log.Named("notify")},
		Dedup:    redisx.NewDedup(rdb, cfg.ServiceName+"-worker"),
		OpsEmail: cfg.NotifyOpsEmail,
		Log:      log,
	}

	// Consumer
	topics := consumers.Topics()
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, topics, cfg.WorkerConcurrency, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("consumer started",
			zap.String("group", cfg.WorkerGroup),
			zap.Strings("topics", topics),
			zap.Int("workers", cfg.WorkerConcurrency))
		if err := cons.Start(ctx, svc.Handle); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down consumer...")
	case <-ctx.Done():
	}
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("consumer did not stop in time")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := st.Close(closeCtx); err != nil {
		log.Warn("close store", zap.Error(err))
	}
}
