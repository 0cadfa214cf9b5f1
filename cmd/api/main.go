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

	"github.com/ariefcatur/futura-orders/internal/auth"
	"github.com/ariefcatur/futura-orders/internal/config"
	"github.com/ariefcatur/futura-orders/internal/httpx"
	kafkax "github.com/ariefcatur/futura-orders/internal/kafka"
	"github.com/ariefcatur/futura-orders/internal/logx"
	"github.com/ariefcatur/futura-orders/internal/memstore"
	"github.com/ariefcatur/futura-orders/internal/metrics"
	"github.com/ariefcatur/futura-orders/internal/orders"
	"github.com/ariefcatur/futura-orders/internal/postgres"
	"github.com/ariefcatur/futura-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Error("config", "err", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == config.DevJWTSecret {
		log.Warn("JWT_SECRET not set, accepting tokens signed with the development secret")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var store orders.Store
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on exit")
		store = memstore.New()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("migrate", "err", err)
			os.Exit(1)
		}
		store = postgres.NewStore(db)
	}

	reg := metrics.NewRegistry()
	svc := &orders.Service{Store: store, Metrics: reg, ServiceName: cfg.ServiceName}
	deps := httpx.Deps{
		Orders:    svc,
		Catalog:   &orders.CatalogService{Store: store},
		Customers: &orders.CustomerService{Store: store},
		Auth:      auth.NewVerifier(cfg.JWTSecret),
		Metrics:   reg,
		Log:       log,
	}

	// Redis
	if cfg.RedisAddr != "" {
		rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.Error("redis connect", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		cache := &redisx.StatusCache{RDB: rdb}
		svc.Cache = cache
		deps.Status = cache
		deps.Idem = &redisx.Idempotency{RDB: rdb}
	}

	// Kafka producer
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start(ctx)
		svc.Events = kafkax.Events{P: prod}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
}
