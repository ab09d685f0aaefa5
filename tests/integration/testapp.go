package integration

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	httpHandler "qris-gateway/internal/adapter/http/handler"
	"qris-gateway/internal/adapter/storage/redis"
	"qris-gateway/internal/core/domain"
	"qris-gateway/internal/core/ports"
	"qris-gateway/internal/qris"
	"qris-gateway/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// testApp wires the real HTTP router, signed-request middleware and
// invoice/webhook services to in-memory repos and a miniredis-backed
// Redis, so integration tests exercise the full request path without
// a real Postgres or Redis instance.
type testApp struct {
	t           *testing.T
	server      *httptest.Server
	mr          *miniredis.Miniredis
	redisClient *goredis.Client

	merchantRepo *inMemoryMerchantRepo
	credsRepo    *inMemoryCredentialsRepo
	invoiceRepo  *inMemoryInvoiceRepo
	eventRepo    *inMemoryEventRepo
	pendingRepo  *inMemoryPendingTxRepo
	paidTxRepo   *inMemoryPaidTxRepo
	webhookRepo  *inMemoryWebhookRepo
	alertRepo    *inMemoryAlertRepo

	encSvc     ports.EncryptionService
	sigSvc     ports.SignatureService
	credSvc    ports.CredentialService
	invoiceSvc ports.InvoiceService
	webhookSvc ports.WebhookService

	upstream *fakeUpstreamAdapter
	httpc    *fakeHTTPClient
	worker   ports.WebhookWorker
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	log := zerolog.Nop()

	encSvc, err := service.NewAESEncryptionService(testEncryptionKey)
	if err != nil {
		t.Fatalf("building encryption service: %v", err)
	}
	sigSvc := service.NewHMACSignatureService()

	merchantRepo := newInMemoryMerchantRepo()
	credsRepo := newInMemoryCredentialsRepo()
	invoiceRepo := newInMemoryInvoiceRepo()
	eventRepo := newInMemoryEventRepo()
	pendingRepo := newInMemoryPendingTxRepo()
	paidTxRepo := newInMemoryPaidTxRepo()
	webhookRepo := newInMemoryWebhookRepo()
	alertRepo := newInMemoryAlertRepo()
	transactor := newInMemoryTransactor()

	credSvc := service.NewKeyCredentialService(credsRepo, encSvc)
	webhookSvc := service.NewWebhookService(merchantRepo, webhookRepo, log)
	upstream := newFakeUpstreamAdapter()
	httpc := newFakeHTTPClient()

	nonceStore := redis.NewNonceStore(redisClient)
	paidCache := redis.NewPaidCache(redisClient)
	codec := qris.NewCodec()

	invoiceSvc := service.NewInvoiceService(
		invoiceRepo,
		eventRepo,
		pendingRepo,
		paidTxRepo,
		paidCache,
		codec,
		upstream,
		webhookSvc,
		transactor,
		15*time.Minute,
		time.Hour,
		log,
	)

	worker := service.NewWebhookWorker(
		merchantRepo,
		credsRepo,
		encSvc,
		sigSvc,
		webhookRepo,
		alertRepo,
		httpc,
		5,
		1*time.Millisecond,
		2*time.Second,
		log,
	)

	deps := httpHandler.RouterDeps{
		InvoiceSvc:      invoiceSvc,
		MerchantRepo:    merchantRepo,
		CredRepo:        credsRepo,
		CredSvc:         credSvc,
		EncSvc:          encSvc,
		SigSvc:          sigSvc,
		NonceStore:      nonceStore,
		RateLimiter:     nil,
		AuditSvc:        service.NewAuditService(newInMemoryAuditRepo(), log),
		HealthCheckers:  nil,
		SignWindow:      5 * time.Minute,
		NonceTTL:        10 * time.Minute,
		RateLimit:       0,
		RateLimitWindow: time.Minute,
		Logger:          log,
	}

	router := httpHandler.SetupRouter(deps)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	app := &testApp{
		t:            t,
		server:       server,
		mr:           mr,
		redisClient:  redisClient,
		merchantRepo: merchantRepo,
		credsRepo:    credsRepo,
		invoiceRepo:  invoiceRepo,
		eventRepo:    eventRepo,
		pendingRepo:  pendingRepo,
		paidTxRepo:   paidTxRepo,
		webhookRepo:  webhookRepo,
		alertRepo:    alertRepo,
		encSvc:       encSvc,
		sigSvc:       sigSvc,
		credSvc:      credSvc,
		invoiceSvc:   invoiceSvc,
		webhookSvc:   webhookSvc,
		upstream:     upstream,
		httpc:        httpc,
		worker:       worker,
	}
	return app
}

// testMerchant is an active merchant plus its minted sandbox key pair.
type testMerchant struct {
	merchant  *domain.Merchant
	apiKey    string
	apiSecret string
}

// createMerchant inserts an active merchant, with its sandbox webhook
// enabled only when webhookURL is non-empty, and mints a sandbox key
// pair for it.
func (a *testApp) createMerchant(webhookURL string) *testMerchant {
	a.t.Helper()
	ctx := context.Background()

	m := &domain.Merchant{
		ID:     uuid.New(),
		Email:  fmt.Sprintf("merchant-%s@example.test", uuid.New()),
		Status: domain.MerchantStatusActive,
		SandboxWebhook: domain.WebhookConfig{
			URL:     webhookURL,
			Enabled: webhookURL != "",
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := a.merchantRepo.Create(ctx, m); err != nil {
		a.t.Fatalf("creating merchant: %v", err)
	}

	apiKey, webhookSecret, err := a.credSvc.Mint(ctx, m.ID, domain.EnvSandbox)
	if err != nil {
		a.t.Fatalf("minting credentials: %v", err)
	}
	_ = webhookSecret

	creds, err := a.credsRepo.Get(ctx, m.ID)
	if err != nil || creds == nil {
		a.t.Fatalf("fetching minted credentials: %v", err)
	}
	apiSecret, err := a.encSvc.Decrypt(creds.ForEnv(domain.EnvSandbox).APISecret)
	if err != nil {
		a.t.Fatalf("decrypting api secret: %v", err)
	}

	return &testMerchant{merchant: m, apiKey: apiKey, apiSecret: apiSecret}
}

// signedRequest builds an HTTP request against the test server signed
// the same way the middleware expects: canonical string over method,
// path+query, timestamp, nonce and raw body, HMAC-SHA256 with the
// merchant's api secret.
func (a *testApp) signedRequest(tm *testMerchant, method, path string, body []byte, nonce string) *http.Request {
	a.t.Helper()
	if nonce == "" {
		nonce = uuid.New().String()
	}
	timestamp := time.Now().Unix()
	canonical := a.sigSvc.BuildCanonicalString(method, path, timestamp, nonce, string(body))
	sig := a.sigSvc.Sign(tm.apiSecret, canonical)

	req, err := http.NewRequest(method, a.server.URL+path, bytes.NewReader(body))
	if err != nil {
		a.t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", tm.apiKey)
	req.Header.Set("X-Signature", sig)
	req.Header.Set("X-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Nonce", nonce)
	return req
}

// staticQRISSample returns a minimal valid static QRIS payload with a
// correct trailing CRC-16/X.25 checksum, replicating the codec's own
// checksum-append step using its exported ChecksumX25 helper.
func staticQRISSample() string {
	body := "000201" + "010211" + "5802ID" + "5303360"
	withHeader := body + "6304"
	crc := qris.ChecksumX25([]byte(withHeader))
	return fmt.Sprintf("%s%04X", withHeader, crc)
}
