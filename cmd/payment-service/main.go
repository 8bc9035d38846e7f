package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/orderflow/orderflow/internal/config"
	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/internal/kafkax"
	"github.com/orderflow/orderflow/internal/outboxpg"
	"github.com/orderflow/orderflow/internal/payment/application"
	paymenthttp "github.com/orderflow/orderflow/internal/payment/infrastructure/http"
	paymentkafka "github.com/orderflow/orderflow/internal/payment/infrastructure/kafka"
	paymentpg "github.com/orderflow/orderflow/internal/payment/infrastructure/postgres"
	"github.com/orderflow/orderflow/internal/postgres"
	"github.com/orderflow/orderflow/pkg/idempotency"
	"github.com/orderflow/orderflow/pkg/logging"
	"github.com/orderflow/orderflow/pkg/outbox"
	"github.com/orderflow/orderflow/pkg/shutdown"
	"github.com/orderflow/orderflow/pkg/tracing"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load("payment-service")
	log := logging.New(cfg.ServiceName)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, 24*time.Hour)

	writer := kafkax.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()

	repo := paymentpg.NewRepository(log, pool)
	store := outboxpg.NewStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer)
	relay := outbox.NewRelay(log, store, dispatch, cfg.ServiceName+"-relay")

	svc := application.NewService(log, repo, cfg.ServiceName)
	registry := paymentkafka.NewRegistry(log, svc)
	consumer := kafkax.NewConsumer(log, cfg.KafkaBrokers, cfg.ConsumerGroup,
		[]string{events.TopicOrderEvents}, cfg.ServiceName, registry, idem)

	handler := paymenthttp.NewHandler(log, svc)
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/", handler.Routes())
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped", "err", err)
		}
	}()
	go func() {
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("payment-service shutdown complete")
}
