package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/infoanil/toy-rental-service/internal/config"
	"github.com/infoanil/toy-rental-service/internal/httpx"
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

	if err := postgres.Migrate(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
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

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{Engine: engine, Producer: prod, Redis: rdb, Service: cfg.ServiceName}
	oh.Register(router)
	ah := &httpx.AdminHandler{Engine: engine, Producer: prod, Redis: rdb, Service: cfg.ServiceName}
	ah.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	cancel()
	prod.WaitClosed()
}
