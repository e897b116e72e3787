package handler

import (
	"marketplace-escrow/internal/adapter/http/middleware"
	redisStore "marketplace-escrow/internal/adapter/storage/redis"
	"marketplace-escrow/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Ledger         ports.LedgerService
	RefundCoor     ports.RefundCoordinator
	TxSvc          ports.TransactionService
	Processor      ports.WebhookProcessor
	AuditSvc       ports.AuditService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Prometheus scrape endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Webhooks (unauthenticated, signature-verified in the processor) ---
	webhookHandler := NewWebhookHandler(deps.Processor)
	v1.POST("/webhooks/gateway", rl("webhooks"), webhookHandler.Receive)

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	paymentHandler := NewPaymentHandler(deps.Ledger, deps.RefundCoor, deps.AuditSvc)
	txHandler := NewTransactionHandler(deps.TxSvc)

	payments := v1.Group("/payments", jwtAuth)
	{
		payments.POST("/escrow", rl("payments"), paymentHandler.CreateEscrow)
		payments.GET("/:paymentId", rl("transactions"), paymentHandler.GetPayment)
		payments.GET("/:paymentId/refunds", rl("transactions"), paymentHandler.ListRefunds)
		payments.GET("/:paymentId/history", rl("transactions"), paymentHandler.History)
		payments.POST("/:paymentId/release", rl("payments"), paymentHandler.ReleaseFunds)
		payments.POST("/:paymentId/refund", rl("refunds"), paymentHandler.Refund)
		payments.POST("/:paymentId/dispute", rl("payments"), paymentHandler.MarkDisputed)
	}

	offers := v1.Group("/offers", jwtAuth)
	{
		offers.POST("/:offerId/cancel", rl("payments"), paymentHandler.CancelService)
	}

	transactions := v1.Group("/transactions", jwtAuth)
	{
		transactions.GET("", rl("transactions"), txHandler.List)
		transactions.GET("/stats", rl("transactions"), txHandler.Stats)
	}

	return r
}
