package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ripvault/backend/internal/api"
	"github.com/ripvault/backend/internal/catalog"
	"github.com/ripvault/backend/internal/config"
	"github.com/ripvault/backend/internal/gateway"
	"github.com/ripvault/backend/internal/infrastructure/kafka"
	"github.com/ripvault/backend/internal/infrastructure/redis"
	"github.com/ripvault/backend/internal/observability"
	core "github.com/ripvault/backend/internal/repository/postgres"
	service "github.com/ripvault/backend/internal/services"

	_ "github.com/lib/pq"
)

func main() {
	shutdown, _ := observability.Setup("ripvault")
	defer shutdown(context.Background())

	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	userRepo := core.NewPostgresUserRepository(db)
	orderRepo := core.NewPostgresOrderRepository(db)
	cardRepo := core.NewPostgresCardRepository(db)

	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()

	kafkaProducer := kafka.NewProducer(cfg.KafkaBrokers)
	defer kafkaProducer.Close()

	gatewayClient := gateway.NewCashfreeClient(
		cfg.CashfreeBaseURL,
		cfg.CashfreeClientID,
		cfg.CashfreeSecret,
		cfg.CashfreeAPIVersion,
	)

	fetchers := []catalog.Fetcher{
		catalog.NewPokemonFetcher(cfg.PokemonBaseURL),
		catalog.NewScryfallFetcher(cfg.ScryfallBaseURL),
		catalog.NewYugiohFetcher(cfg.YugiohBaseURL),
	}

	svc := service.NewVaultService(
		userRepo, orderRepo, cardRepo,
		gatewayClient, fetchers,
		redisClient, kafkaProducer,
		cfg.JWTSecret, cfg.CashfreeReturnURL,
	)

	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	purchaseConsumer := kafka.NewConsumer(cfg.KafkaBrokers, "purchases", "ripvault-cache", redisClient)
	paymentConsumer := kafka.NewConsumer(cfg.KafkaBrokers, "payments", "ripvault-cache-payments", redisClient)
	go purchaseConsumer.Consume(consumerCtx)
	go paymentConsumer.Consume(consumerCtx)
	defer purchaseConsumer.Close()
	defer paymentConsumer.Close()
	defer cancelConsumers()

	router := api.SetupRouter(svc, redisClient, cfg.JWTSecret)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
