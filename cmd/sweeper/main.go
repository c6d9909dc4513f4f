package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/infoanil/toy-rental-service/internal/config"
	kafkax "github.com/infoanil/toy-rental-service/internal/kafka"
	"github.com/infoanil/toy-rental-service/internal/postgres"
	"github.com/infoanil/toy-rental-service/internal/rental"
	rentalpg "github.com/infoanil/toy-rental-service/internal/rental/postgres"
	"github.com/infoanil/toy-rental-service/internal/sweeper"
)

func main() {
	loop := flag.Bool("loop", false, "keep sweeping on SWEEP_INTERVAL instead of running once")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 256)
	prod.Start(ctx)

	store := rentalpg.NewStore(db, rentalpg.Config{
		BufferDays:  cfg.BufferDays,
		LockTimeout: cfg.LockTimeout,
	})
	engine := rental.NewService(store, rental.Config{
		BufferDays:  cfg.BufferDays,
		DeliveryFee: cfg.DeliveryFee,
	})

	svc := &sweeper.Service{
		Engine:      engine,
		Producer:    prod,
		ServiceName: cfg.ServiceName + "-sweeper",
	}

	if *loop {
		go func() {
			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			cancel()
		}()
		svc.Loop(ctx, cfg.SweepInterval)
	} else {
		ids, err := svc.Run(ctx)
		if err != nil {
			log.Fatalf("sweep: %v", err)
		}
		log.Printf("closed %d delivered orders past end date", len(ids))
	}

	prod.Close()
	prod.WaitClosed()
}
