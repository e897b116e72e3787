package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-escrow/config"
	"marketplace-escrow/internal/adapter/gateway"
	httpHandler "marketplace-escrow/internal/adapter/http/handler"
	"marketplace-escrow/internal/adapter/offers"
	pgStorage "marketplace-escrow/internal/adapter/storage/postgres"
	redisStorage "marketplace-escrow/internal/adapter/storage/redis"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/internal/service"
	"marketplace-escrow/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Marketplace Escrow Ledger")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Initialize repositories
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	refundRepo := pgStorage.NewRefundRepo(pool)
	eventRepo := pgStorage.NewWebhookEventRepo(pool)
	auditRepo := pgStorage.NewAuditRepository(pool)
	txReader := pgStorage.NewTransactionReadRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	eventCache := redisStorage.NewEventCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize external collaborator clients
	gatewayClient := gateway.NewClient(cfg.Gateway, log)
	offerClient := offers.NewClient(cfg.Offers)

	// Initialize services
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(auditRepo, log)
	notifier := service.NewPushNotifier(cfg.Notifier, log)

	ledgerSvc := service.NewLedgerService(
		paymentRepo, refundRepo, gatewayClient, offerClient,
		transactor, notifier, auditSvc, log,
	)
	processor := service.NewWebhookProcessor(
		gatewayClient, ledgerSvc, paymentRepo, refundRepo,
		eventRepo, eventCache, auditSvc, log,
	)
	refundCoor := service.NewRefundCoordinator(ledgerSvc, paymentRepo, refundRepo, gatewayClient, log)
	txSvc := service.NewTransactionService(txReader, txReader, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Ledger:         ledgerSvc,
		RefundCoor:     refundCoor,
		TxSvc:          txSvc,
		Processor:      processor,
		AuditSvc:       auditSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
