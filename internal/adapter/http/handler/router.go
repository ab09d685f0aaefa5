package handler

import (
	"time"

	"qris-gateway/internal/adapter/http/middleware"
	"qris-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	InvoiceSvc      ports.InvoiceService
	MerchantRepo    ports.MerchantRepository
	CredRepo        ports.CredentialsRepository
	CredSvc         ports.CredentialService
	EncSvc          ports.EncryptionService
	SigSvc          ports.SignatureService
	NonceStore      ports.NonceStore
	RateLimiter     ports.RateLimiter // nil = rate limiting disabled
	AuditSvc        ports.AuditService
	HealthCheckers  []ports.HealthChecker
	SignWindow      time.Duration
	NonceTTL        time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
	Logger          zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit
	r.Use(middleware.AuditLog(deps.AuditSvc))

	// Unauthenticated health check.
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	signedRequest := middleware.SignedRequest(
		deps.MerchantRepo,
		deps.CredRepo,
		deps.CredSvc,
		deps.EncSvc,
		deps.SigSvc,
		deps.NonceStore,
		middleware.SignedRequestConfig{SignWindow: deps.SignWindow, NonceTTL: deps.NonceTTL},
		deps.Logger,
	)

	rateLimit := func(c *gin.Context) { c.Next() }
	if deps.RateLimiter != nil {
		rateLimit = middleware.RateLimit(deps.RateLimiter, deps.RateLimit, deps.RateLimitWindow, deps.Logger)
	}

	invoiceHandler := NewInvoiceHandler(deps.InvoiceSvc)
	invoices := r.Group("/invoices", signedRequest, rateLimit)
	{
		invoices.POST("", invoiceHandler.Create)
		invoices.GET("", invoiceHandler.List)
		invoices.GET("/:id", invoiceHandler.Get)
		invoices.POST("/:id/check", invoiceHandler.Check)
		invoices.GET("/:id/events", invoiceHandler.ListEvents)
		invoices.POST("/:id/refunds", invoiceHandler.Refund)
	}

	return r
}
