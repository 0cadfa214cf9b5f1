package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/futura-orders/internal/config"
	"github.com/ariefcatur/futura-orders/internal/inventory"
	kafkax "github.com/ariefcatur/futura-orders/internal/kafka"
	"github.com/ariefcatur/futura-orders/internal/logx"
	"github.com/ariefcatur/futura-orders/internal/orders"
	"github.com/ariefcatur/futura-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logx.New(cfg.LogLevel).With("service", cfg.ServiceName+"-inventory")
	ctx, cancel := context.WithCancel(logx.WithLogger(context.Background(), log))
	defer cancel()

	if len(cfg.KafkaBrokers) == 0 || cfg.RedisAddr == "" {
		log.Error("inventory needs KAFKA_BROKERS and REDIS_ADDR")
		os.Exit(1)
	}

	rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		log.Error("redis connect", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// stock-low events
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 256, log)
	prod.Start(ctx)

	svc := &inventory.Service{
		Redis:             rdb,
		Events:            kafkax.Events{P: prod},
		ServiceName:       cfg.ServiceName + "-inventory",
		LowStockThreshold: cfg.LowStockThreshold,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, orders.TopicOrderConfirmed, cfg.InventoryWorkers, log)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		log.Info("consumer started", "group", cfg.InventoryGroup, "topic", orders.TopicOrderConfirmed, "workers", cfg.InventoryWorkers)
		if err := cons.Start(ctx, svc.HandleOrderConfirmed); err != nil {
			log.Error("consumer exit", "err", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
	<-stopped
	prod.Close()
	prod.WaitClosed()
}
