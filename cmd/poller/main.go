package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/richardliu001/ledger-service/internal/config"
	"github.com/richardliu001/ledger-service/internal/logger"
	"github.com/richardliu001/ledger-service/internal/outbox"
	"github.com/richardliu001/ledger-service/internal/repo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/segmentio/kafka-go"
)

func main() {
	path := flag.String("config", "internal/config/config.yaml", "config file")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLoggerWithLevel(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	kw := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	defer func() {
		if err := kw.Close(); err != nil {
			log.Errorf("close kafka writer: %v", err)
		}
	}()

	// the relay only needs the outbox side; no cache client
	store := repo.NewRepository(gdb, nil, log)
	relay := outbox.NewRelay(store, kw, log, cfg.Outbox.BatchSize, cfg.Outbox.PollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("ledger-poller started")
	if err := relay.Run(ctx); err != nil {
		log.Errorf("relay: %v", err)
	}
}
