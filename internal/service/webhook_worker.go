package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"qris-gateway/internal/core/domain"
	"qris-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxBackoffExponent caps the exponential backoff exponent so the
// retry interval doesn't grow unbounded for merchants with a long
// string of failures.
const maxBackoffExponent = 10

// webhookWorker drains due webhook deliveries and attempts HTTP
// delivery, applying exponential backoff on failure. It replaces the
// teacher's per-transaction fire-and-forget goroutine with a
// poll-and-claim batch that the scheduler (C7) drives.
type webhookWorker struct {
	merchantRepo ports.MerchantRepository
	credsRepo    ports.CredentialsRepository
	encSvc       ports.EncryptionService
	sigSvc       ports.SignatureService
	webhookRepo  ports.WebhookRepository
	alertRepo    ports.AlertRepository
	httpClient   HTTPClient
	maxAttempts  int
	baseBackoff  time.Duration
	timeout      time.Duration
	log          zerolog.Logger
}

// NewWebhookWorker creates a new webhook delivery worker.
func NewWebhookWorker(
	merchantRepo ports.MerchantRepository,
	credsRepo ports.CredentialsRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	webhookRepo ports.WebhookRepository,
	alertRepo ports.AlertRepository,
	httpClient HTTPClient,
	maxAttempts int,
	baseBackoff time.Duration,
	timeout time.Duration,
	log zerolog.Logger,
) ports.WebhookWorker {
	return &webhookWorker{
		merchantRepo: merchantRepo,
		credsRepo:    credsRepo,
		encSvc:       encSvc,
		sigSvc:       sigSvc,
		webhookRepo:  webhookRepo,
		alertRepo:    alertRepo,
		httpClient:   httpClient,
		maxAttempts:  maxAttempts,
		baseBackoff:  baseBackoff,
		timeout:      timeout,
		log:          log,
	}
}

func (w *webhookWorker) RunBatch(ctx context.Context, batchSize int) (int, int, error) {
	due, err := w.webhookRepo.ListDue(ctx, time.Now(), batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("listing due webhook deliveries: %w", err)
	}

	delivered, failed := 0, 0
	for i := range due {
		d := &due[i]
		w.attempt(ctx, d)
		switch d.Status {
		case domain.WebhookStatusDelivered:
			delivered++
		case domain.WebhookStatusFailed:
			failed++
		}
	}

	return delivered, failed, nil
}

func (w *webhookWorker) attempt(ctx context.Context, d *domain.WebhookDelivery) {
	merchant, err := w.merchantRepo.GetByID(ctx, d.MerchantID)
	if err != nil {
		w.log.Error().Err(err).Str("delivery_id", d.ID.String()).Msg("webhook worker: merchant lookup failed")
		w.scheduleRetry(d, err.Error())
		w.persist(ctx, d)
		return
	}

	cfg := merchant.WebhookFor(d.Env)
	if !cfg.Enabled || cfg.URL == "" {
		// WebhookDisabled: permanent, no retry, no alert.
		w.failPermanent(d, "WebhookDisabled: target cleared or disabled after enqueue")
		w.persist(ctx, d)
		return
	}

	creds, err := w.credsRepo.Get(ctx, d.MerchantID)
	var secret string
	if err == nil {
		secret, err = w.encSvc.Decrypt(creds.ForEnv(d.Env).WebhookSecret)
	}
	if err != nil || secret == "" {
		// MissingCredentials: permanent, no retry, no alert.
		w.failPermanent(d, "MissingCredentials: webhook secret unavailable")
		w.persist(ctx, d)
		return
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig := w.sigSvc.Sign(secret, timestamp+"."+d.Payload)

	reqCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, cfg.URL, bytes.NewReader([]byte(d.Payload)))
	if err != nil {
		w.scheduleRetry(d, err.Error())
		w.persist(ctx, d)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(d.EventType))
	req.Header.Set("X-Webhook-Timestamp", timestamp)
	req.Header.Set("X-Webhook-Signature", sig)

	d.AttemptCount++
	d.UpdatedAt = time.Now()

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.log.Warn().Err(err).Str("delivery_id", d.ID.String()).Int("attempt", d.AttemptCount).Msg("webhook worker: delivery failed")
		w.scheduleRetry(d, err.Error())
		w.persist(ctx, d)
		return
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	d.LastHTTPStatus = &status
	snippet := readSnippet(resp.Body, 512)
	d.ResponseSnippet = &snippet

	if status >= 200 && status < 300 {
		d.Status = domain.WebhookStatusDelivered
		d.LastError = nil
		d.NextRetryAt = time.Time{}
		w.log.Info().Str("delivery_id", d.ID.String()).Int("attempt", d.AttemptCount).Int("status", status).Msg("webhook worker: delivered")
	} else {
		w.log.Warn().Str("delivery_id", d.ID.String()).Int("attempt", d.AttemptCount).Int("status", status).Msg("webhook worker: non-2xx response")
		w.scheduleRetry(d, fmt.Sprintf("HTTP %d", status))
	}

	w.persist(ctx, d)
}

// scheduleRetry applies exponential backoff, or transitions to failed
// and raises a WebhookFailed alert once MAX_ATTEMPTS is reached.
func (w *webhookWorker) scheduleRetry(d *domain.WebhookDelivery, lastErr string) {
	d.LastError = &lastErr
	if d.AttemptCount >= w.maxAttempts {
		d.Status = domain.WebhookStatusFailed
		d.NextRetryAt = time.Time{}
		w.raiseAlert(d, lastErr)
		return
	}
	exponent := d.AttemptCount
	if exponent < 1 {
		exponent = 1
	}
	if exponent > maxBackoffExponent {
		exponent = maxBackoffExponent
	}
	backoff := w.baseBackoff * time.Duration(uint64(1)<<uint(exponent-1))
	d.Status = domain.WebhookStatusQueued
	d.NextRetryAt = time.Now().Add(backoff)
}

// failPermanent marks a delivery failed without scheduling a retry or
// raising an alert, for conditions the merchant must fix out-of-band
// (disabled webhook, missing secret).
func (w *webhookWorker) failPermanent(d *domain.WebhookDelivery, reason string) {
	d.Status = domain.WebhookStatusFailed
	d.NextRetryAt = time.Time{}
	d.LastError = &reason
}

func (w *webhookWorker) raiseAlert(d *domain.WebhookDelivery, lastErr string) {
	if w.alertRepo == nil {
		return
	}
	merchantID := d.MerchantID
	alert := &domain.Alert{
		ID:         uuid.New(),
		MerchantID: &merchantID,
		Type:       domain.AlertWebhookFailed,
		Message:    fmt.Sprintf("webhook delivery exhausted after %d attempts for event %s: %s", d.AttemptCount, d.EventType, lastErr),
		CreatedAt:  time.Now(),
	}
	if err := w.alertRepo.Insert(context.Background(), alert); err != nil {
		w.log.Warn().Err(err).Str("delivery_id", d.ID.String()).Msg("webhook worker: failed to persist alert")
	}
}

func (w *webhookWorker) persist(ctx context.Context, d *domain.WebhookDelivery) {
	if err := w.webhookRepo.MarkResult(ctx, d); err != nil {
		w.log.Warn().Err(err).Str("delivery_id", d.ID.String()).Msg("webhook worker: failed to persist delivery result")
	}
}

func readSnippet(r io.Reader, limit int) string {
	buf := make([]byte, limit)
	n, _ := io.ReadFull(r, buf)
	return string(buf[:n])
}
