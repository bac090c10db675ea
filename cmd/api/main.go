package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/domain"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logx"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/queries"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/reporting"
	"github.com/ariefcatur/go-storefront-orders/internal/reviews"
	"github.com/ariefcatur/go-storefront-orders/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.Must(cfg.AppEnv)
	defer func() { _ = log.Sync() }()

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	st, err := store.Open(ctx, cfg, true, log)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}

	// Events
	var events domain.Publisher = domain.NopPublisher{}
	var pub *kafkax.EventPublisher
	if cfg.EventsEnabled {
		pub = kafkax.NewEventPublisher(cfg.KafkaBrokers, cfg.ServiceName, log)
		events = pub
		log.Info("kafka publisher started", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	// Redis idempotency, opsional: tanpa redis add-to-cart tetap jalan
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	var idem httpx.IdempotencyStore
	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, idempotency keys disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	} else {
		idem = redisx.NewIdempotency(rdb)
	}
	pingCancel()

	// Services
	cat := catalog.NewService(st, events, log.Named("catalog"))
	desk := queries.NewDesk(st, notify.LogSender{Log: log.Named("notify")}, cfg.NotifyOpsEmail, log.Named("queries"))
	h := &httpx.Handler{
		Catalog: cat,
		Reviews: reviews.NewLedger(st, cat, events, log.Named("reviews"),
			reviews.WithPurchaseGate(cfg.ReviewRequirePurchase)),
		Orders:  orders.NewEngine(st, cat, events, log.Named("orders")),
		Reports: reporting.NewReporter(st, log.Named("reporting")),
		Queries: desk,
		Idem:    idem,
		Log:     log,
	}
	router := httpx.NewRouter(httpx.RouterDeps{
		Handler:  h,
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		Limiter:  httpx.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, 3*time.Minute),
		Log:      log,
	})

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		// handler yang masih jalan dapat ErrProducerClosed, bukan panic
		log.Warn("http shutdown incomplete", zap.Error(err))
	}
	if pub != nil {
		pub.Close() // flush semua producer
	}
	cancel()
	if err := st.Close(ctx2); err != nil {
		log.Warn("close store", zap.Error(err))
	}
}
