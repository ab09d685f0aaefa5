package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qris-gateway/config"
	httpHandler "qris-gateway/internal/adapter/http/handler"
	pgStorage "qris-gateway/internal/adapter/storage/postgres"
	redisStorage "qris-gateway/internal/adapter/storage/redis"
	"qris-gateway/internal/adapter/upstream"
	"qris-gateway/internal/core/ports"
	"qris-gateway/internal/qris"
	"qris-gateway/internal/scheduler"
	"qris-gateway/internal/service"
	"qris-gateway/pkg/logger"
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
		Msg("Starting QRIS payment gateway")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	if err := pgStorage.InstallSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to install database schema")
	}
	log.Info().Msg("Database schema up to date")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	merchantRepo := pgStorage.NewMerchantRepo(pool)
	credsRepo := pgStorage.NewCredentialsRepo(pool)
	invoiceRepo := pgStorage.NewInvoiceRepo(pool)
	eventRepo := pgStorage.NewEventRepo(pool)
	paidTxRepo := pgStorage.NewPaidTxRepo(pool)
	pendingRepo := pgStorage.NewPendingTxRepo(pool)
	webhookRepo := pgStorage.NewWebhookRepository(pool)
	alertRepo := pgStorage.NewAlertRepo(pool)
	auditRepo := pgStorage.NewAuditRepository(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis-backed stores
	nonceStore := redisStorage.NewNonceStore(rdb)
	paidCache := redisStorage.NewPaidCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize cryptographic and codec services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	qrisCodec := qris.NewCodec()

	// Initialize business services
	credSvc := service.NewKeyCredentialService(credsRepo, encSvc)
	webhookSvc := service.NewWebhookService(merchantRepo, webhookRepo, log)
	auditSvc := service.NewAuditService(auditRepo, log)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	upstreamAdapter := upstream.NewHTTPUpstreamAdapter(upstream.Config{
		BaseURL:    cfg.Upstream.BaseURL,
		APIKey:     cfg.Upstream.APIKey,
		APISecret:  cfg.Upstream.APISecret,
		Timeout:    cfg.Upstream.Timeout,
		BearerMode: cfg.Upstream.BearerMode,
	}, &http.Client{Timeout: cfg.Upstream.Timeout}, tokenSvc, log)

	invoiceSvc := service.NewInvoiceService(
		invoiceRepo,
		eventRepo,
		pendingRepo,
		paidTxRepo,
		paidCache,
		qrisCodec,
		upstreamAdapter,
		webhookSvc,
		transactor,
		cfg.Gateway.InvoiceTTL,
		cfg.Gateway.PaidCacheTTL,
		log,
	)

	webhookWorker := service.NewWebhookWorker(
		merchantRepo,
		credsRepo,
		encSvc,
		sigSvc,
		webhookRepo,
		alertRepo,
		&http.Client{Timeout: cfg.Webhook.Timeout},
		cfg.Webhook.MaxAttempts,
		cfg.Webhook.BaseBackoff,
		cfg.Webhook.Timeout,
		log,
	)

	// Initialize periodic housekeeping
	sched := scheduler.New(
		scheduler.Config{Interval: cfg.Scheduler.Interval},
		invoiceSvc,
		webhookWorker,
		paidTxRepo,
		pendingRepo,
		log,
	)
	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go sched.Start(schedCtx)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		InvoiceSvc:      invoiceSvc,
		MerchantRepo:    merchantRepo,
		CredRepo:        credsRepo,
		CredSvc:         credSvc,
		EncSvc:          encSvc,
		SigSvc:          sigSvc,
		NonceStore:      nonceStore,
		RateLimiter:     rateLimitStore,
		AuditSvc:        auditSvc,
		HealthCheckers:  []ports.HealthChecker{pgHealth, redisHealth},
		SignWindow:      cfg.Gateway.SignWindow,
		NonceTTL:        cfg.Gateway.NonceTTL,
		RateLimit:       cfg.Gateway.RateLimit,
		RateLimitWindow: cfg.Gateway.RateLimitWindow,
		Logger:          log,
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
