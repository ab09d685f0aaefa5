package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"qris-gateway/internal/core/domain"
	"qris-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// HTTPClient is the narrow transport interface the webhook worker
// depends on, for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// webhookPayload is the JSON body delivered to a merchant's webhook URL.
type webhookPayload struct {
	EventType string             `json:"event_type"`
	InvoiceID uuid.UUID          `json:"invoice_id"`
	Data      webhookPayloadData `json:"data"`
	Timestamp int64              `json:"timestamp"`
}

type webhookPayloadData struct {
	ReferenceID  *string `json:"reference_id,omitempty"`
	Principal    string  `json:"principal"`
	BaseAmount   int64   `json:"base_amount"`
	FinalAmount  int64   `json:"final_amount"`
	UniqueSuffix int     `json:"unique_suffix"`
	Status       string  `json:"status"`
}

// webhookService implements ports.WebhookService. It only enqueues a
// delivery row inside the caller's transaction; actual HTTP delivery
// is the webhookWorker's job, run out-of-band by the scheduler.
type webhookService struct {
	merchantRepo ports.MerchantRepository
	webhookRepo  ports.WebhookRepository
	log          zerolog.Logger
}

// NewWebhookService creates a new webhook enqueueing service.
func NewWebhookService(merchantRepo ports.MerchantRepository, webhookRepo ports.WebhookRepository, log zerolog.Logger) ports.WebhookService {
	return &webhookService{merchantRepo: merchantRepo, webhookRepo: webhookRepo, log: log}
}

func (s *webhookService) EnqueueWebhook(ctx context.Context, tx pgx.Tx, invoice *domain.Invoice, eventType domain.InvoiceEventType) error {
	merchant, err := s.merchantRepo.GetByID(ctx, invoice.MerchantID)
	if err != nil {
		return err
	}

	cfg := merchant.WebhookFor(invoice.Env)
	if !cfg.Enabled || cfg.URL == "" {
		s.log.Debug().Str("merchant_id", invoice.MerchantID.String()).Msg("webhook: no target configured, skipping")
		return nil
	}

	payload := webhookPayload{
		EventType: string(eventType),
		InvoiceID: invoice.ID,
		Data: webhookPayloadData{
			ReferenceID:  invoice.ReferenceID,
			Principal:    invoice.Principal,
			BaseAmount:   invoice.BaseAmount,
			FinalAmount:  invoice.FinalAmount,
			UniqueSuffix: invoice.UniqueSuffix,
			Status:       string(invoice.Status),
		},
		Timestamp: time.Now().Unix(),
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	now := time.Now()
	delivery := &domain.WebhookDelivery{
		ID:           uuid.New(),
		MerchantID:   invoice.MerchantID,
		Env:          invoice.Env,
		InvoiceID:    &invoice.ID,
		EventType:    eventType,
		Payload:      string(payloadBytes),
		Status:       domain.WebhookStatusQueued,
		AttemptCount: 0,
		NextRetryAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	return s.webhookRepo.Enqueue(ctx, tx, delivery)
}
