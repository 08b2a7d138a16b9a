package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/tmarchetti/goalbook/internal/api"
	"github.com/tmarchetti/goalbook/internal/config"
	"github.com/tmarchetti/goalbook/internal/events"
	"github.com/tmarchetti/goalbook/internal/events/kafka"
	"github.com/tmarchetti/goalbook/internal/service"
	"github.com/tmarchetti/goalbook/internal/store"
)

func main() {
	// Best effort: a missing .env just means the environment is already set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var ledgerStore store.Store
	switch cfg.DBDriver {
	case "sqlite":
		ledgerStore, err = store.NewSQLite(cfg.DBSource)
	default:
		ledgerStore, err = store.NewPostgres(context.Background(), cfg.DBSource)
	}
	if err != nil {
		log.Fatalf("Unable to open store: %v", err)
	}
	defer ledgerStore.Close()

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		publisher = kp
		log.Printf("Publishing events to kafka brokers %v", cfg.KafkaBrokers)
	}

	// Initialize Layers
	balance := service.NewBalanceService()
	goalEngine := service.NewGoalEngine(ledgerStore, balance, publisher)
	txEngine := service.NewTransactionEngine(ledgerStore, balance, cfg.Taxonomy, publisher)
	summarySvc := service.NewSummaryService(ledgerStore)
	handler := api.NewHandler(ledgerStore, goalEngine, txEngine, summarySvc)

	r := api.NewRouter(handler)

	log.Printf("Server starting on :%s (%s)", cfg.Port, cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
