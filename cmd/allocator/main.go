package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/infoanil/toy-rental-service/internal/allocator"
	"github.com/infoanil/toy-rental-service/internal/config"
	kafkax "github.com/infoanil/toy-rental-service/internal/kafka"
	"github.com/infoanil/toy-rental-service/internal/postgres"
	"github.com/infoanil/toy-rental-service/internal/redisx"
	"github.com/infoanil/toy-rental-service/internal/rental"
	rentalpg "github.com/infoanil/toy-rental-service/internal/rental/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024)
	prod.Start(ctx)

	store := rentalpg.NewStore(db, rentalpg.Config{
		BufferDays:  cfg.BufferDays,
		LockTimeout: cfg.LockTimeout,
	})
	engine := rental.NewService(store, rental.Config{
		BufferDays:  cfg.BufferDays,
		DeliveryFee: cfg.DeliveryFee,
	})

	svc := &allocator.Service{
		Engine:      engine,
		Redis:       rdb,
		Producer:    prod,
		ServiceName: cfg.ServiceName + "-allocator",
	}

	group := getenv("ALLOCATOR_GROUP", "allocator-svc")
	workers := atoiOr(os.Getenv("ALLOCATOR_WORKERS"), 8)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, rental.TopicOrderPlaced, workers)

	go func() {
		log.Printf("allocator consumer started: group=%s topic=%s workers=%d", group, rental.TopicOrderPlaced, workers)
		if err := cons.Start(ctx, svc.HandleOrderPlaced); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down allocator...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
