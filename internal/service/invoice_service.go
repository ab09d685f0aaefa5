package service

import (
	"context"
	"errors"
	"time"

	"qris-gateway/internal/core/domain"
	"qris-gateway/internal/core/ports"
	"qris-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxSuffixRetries bounds how many times Create retries suffix
// allocation after losing a concurrent insert race before surfacing
// Contention to the caller.
const maxSuffixRetries = 3

const (
	lowSuffixCeiling  = 500
	highSuffixCeiling = 999
)

type invoiceService struct {
	invoiceRepo ports.InvoiceRepository
	eventRepo   ports.EventRepository
	pendingRepo ports.PendingTxRepository
	paidTxRepo  ports.PaidTxRepository
	paidCache   ports.PaidCache
	qris        ports.QRISCodec
	upstream    ports.UpstreamAdapter
	webhookSvc  ports.WebhookService
	transactor  ports.DBTransactor
	invoiceTTL  time.Duration
	paidTTL     time.Duration
	log         zerolog.Logger
}

// NewInvoiceService builds the invoice lifecycle service (C5).
func NewInvoiceService(
	invoiceRepo ports.InvoiceRepository,
	eventRepo ports.EventRepository,
	pendingRepo ports.PendingTxRepository,
	paidTxRepo ports.PaidTxRepository,
	paidCache ports.PaidCache,
	qris ports.QRISCodec,
	upstream ports.UpstreamAdapter,
	webhookSvc ports.WebhookService,
	transactor ports.DBTransactor,
	invoiceTTL time.Duration,
	paidTTL time.Duration,
	log zerolog.Logger,
) ports.InvoiceService {
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		eventRepo:   eventRepo,
		pendingRepo: pendingRepo,
		paidTxRepo:  paidTxRepo,
		paidCache:   paidCache,
		qris:        qris,
		upstream:    upstream,
		webhookSvc:  webhookSvc,
		transactor:  transactor,
		invoiceTTL:  invoiceTTL,
		paidTTL:     paidTTL,
		log:         log,
	}
}

func (s *invoiceService) Create(ctx context.Context, req ports.CreateInvoiceRequest) (*domain.Invoice, error) {
	if req.BaseAmount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !req.Env.Valid() {
		return nil, apperror.Validation("env must be production or sandbox")
	}
	if req.Principal == "" {
		return nil, apperror.Validation("principal is required")
	}

	if _, err := s.pendingRepo.DeleteExpired(ctx, time.Now()); err != nil {
		s.log.Warn().Err(err).Msg("invoice service: pending gc failed")
	}

	var invoice *domain.Invoice
	var lastErr error

	for attempt := 0; attempt < maxSuffixRetries; attempt++ {
		suffix, err := s.allocateSuffix(ctx, req.Principal, req.Env)
		if err != nil {
			return nil, err
		}

		finalAmount := req.BaseAmount + int64(suffix)
		qrisString, err := s.qris.Inject(req.QRISStatic, finalAmount)
		if err != nil {
			return nil, apperror.ErrInvalidQris(err.Error())
		}

		now := time.Now()
		candidate := &domain.Invoice{
			ID:           uuid.New(),
			MerchantID:   req.MerchantID,
			Env:          req.Env,
			Principal:    req.Principal,
			ReferenceID:  req.ReferenceID,
			BaseAmount:   req.BaseAmount,
			UniqueSuffix: suffix,
			FinalAmount:  finalAmount,
			Status:       domain.InvoiceStatusPending,
			QRISString:   qrisString,
			Metadata:     req.Metadata,
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.invoiceTTL),
		}
		pending := &domain.PendingTransaction{
			InvoiceID:    candidate.ID,
			Principal:    req.Principal,
			Env:          req.Env,
			UniqueSuffix: suffix,
			FinalAmount:  finalAmount,
			CreatedAt:    now,
			ExpiresAt:    candidate.ExpiresAt,
		}

		err = s.createInTx(ctx, candidate, pending)
		if err == nil {
			invoice = candidate
			break
		}
		if errors.Is(err, domain.ErrSuffixConflict) {
			lastErr = err
			continue
		}
		return nil, apperror.InternalError(err)
	}

	if invoice == nil {
		s.log.Warn().Err(lastErr).Str("principal", req.Principal).Msg("invoice service: suffix contention exhausted retries")
		return nil, apperror.ErrContention()
	}

	s.log.Info().Str("invoice_id", invoice.ID.String()).Int("suffix", invoice.UniqueSuffix).Int64("final_amount", invoice.FinalAmount).Msg("invoice service: created")
	return invoice, nil
}

func (s *invoiceService) createInTx(ctx context.Context, invoice *domain.Invoice, pending *domain.PendingTransaction) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return err
	}
	defer dbTx.Rollback(ctx)

	if err := s.pendingRepo.Insert(ctx, dbTx, pending); err != nil {
		return err
	}
	if err := s.invoiceRepo.Create(ctx, dbTx, invoice); err != nil {
		return err
	}
	event := &domain.InvoiceEvent{
		ID:        uuid.New(),
		InvoiceID: invoice.ID,
		EventType: domain.EventPaymentCreated,
		CreatedAt: invoice.CreatedAt,
	}
	if err := s.eventRepo.Append(ctx, dbTx, event); err != nil {
		return err
	}
	if err := s.webhookSvc.EnqueueWebhook(ctx, dbTx, invoice, domain.EventPaymentCreated); err != nil {
		return err
	}

	return dbTx.Commit(ctx)
}

// allocateSuffix picks the smallest unclaimed suffix in [1,500],
// falling back to [501,999] once the low range is exhausted.
func (s *invoiceService) allocateSuffix(ctx context.Context, principal string, env domain.Env) (int, error) {
	claimed, err := s.pendingRepo.ListClaimedSuffixes(ctx, principal, env)
	if err != nil {
		return 0, apperror.InternalError(err)
	}
	for i := 1; i <= lowSuffixCeiling; i++ {
		if !claimed[i] {
			return i, nil
		}
	}
	for i := lowSuffixCeiling + 1; i <= highSuffixCeiling; i++ {
		if !claimed[i] {
			return i, nil
		}
	}
	return 0, apperror.ErrNoSuffixAvailable()
}

func (s *invoiceService) Check(ctx context.Context, merchantID, invoiceID uuid.UUID, username, token string) (*domain.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if invoice == nil || invoice.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("invoice")
	}
	if invoice.IsTerminal() {
		return invoice, nil
	}

	if paid, err := s.lookupPaidCache(ctx, invoice); err != nil {
		s.log.Warn().Err(err).Msg("invoice service: paid cache lookup failed")
	} else if paid != nil {
		return s.markPaid(ctx, invoice, paid.PaidAt)
	}

	pending, err := s.pendingRepo.GetByInvoiceID(ctx, invoice.ID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if pending == nil {
		// No claim left but not yet marked expired: treat as expired,
		// the scheduler simply hasn't swept it yet.
		return s.markExpired(ctx, invoice)
	}

	now := time.Now()
	if now.After(pending.ExpiresAt) {
		return s.markExpired(ctx, invoice)
	}

	credits, err := s.upstream.FetchCredits(ctx, username, token)
	if err != nil {
		return nil, apperror.ErrUpstreamUnavailable(err)
	}
	for _, c := range credits {
		if c.Status == "IN" && c.Amount == invoice.FinalAmount {
			return s.markPaid(ctx, invoice, now)
		}
	}

	return invoice, nil
}

// lookupPaidCache tries the Redis fast path first, falling back to the
// DB-backed PaidTransaction table on a miss.
func (s *invoiceService) lookupPaidCache(ctx context.Context, invoice *domain.Invoice) (*domain.PaidTransaction, error) {
	if s.paidCache != nil {
		if paid, err := s.paidCache.Get(ctx, invoice.Principal, invoice.FinalAmount, invoice.Env); err == nil && paid != nil {
			return paid, nil
		}
	}
	return s.paidTxRepo.Get(ctx, invoice.Principal, invoice.FinalAmount, invoice.Env)
}

func (s *invoiceService) markPaid(ctx context.Context, invoice *domain.Invoice, paidAt time.Time) (*domain.Invoice, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	ok, err := s.invoiceRepo.TransitionStatus(ctx, dbTx, invoice.ID, domain.InvoiceStatusPending, domain.InvoiceStatusPaid, &paidAt)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !ok {
		current, err := s.invoiceRepo.GetByID(ctx, invoice.ID)
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		if current == nil {
			return nil, apperror.ErrNotFound("invoice")
		}
		return current, nil
	}

	if err := s.pendingRepo.Delete(ctx, dbTx, invoice.ID); err != nil {
		return nil, apperror.InternalError(err)
	}

	event := &domain.InvoiceEvent{ID: uuid.New(), InvoiceID: invoice.ID, EventType: domain.EventPaymentPaid, CreatedAt: time.Now()}
	if err := s.eventRepo.Append(ctx, dbTx, event); err != nil {
		return nil, apperror.InternalError(err)
	}

	invoice.Status = domain.InvoiceStatusPaid
	invoice.PaidAt = &paidAt

	if err := s.webhookSvc.EnqueueWebhook(ctx, dbTx, invoice, domain.EventPaymentPaid); err != nil {
		return nil, apperror.InternalError(err)
	}

	paidRecord := &domain.PaidTransaction{
		Principal:   invoice.Principal,
		FinalAmount: invoice.FinalAmount,
		Env:         invoice.Env,
		PaidAt:      paidAt,
		ExpiresAt:   time.Now().Add(s.paidTTL),
	}
	if err := s.paidTxRepo.Insert(ctx, dbTx, paidRecord); err != nil {
		return nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(err)
	}

	if s.paidCache != nil {
		if err := s.paidCache.Set(ctx, paidRecord, s.paidTTL); err != nil {
			s.log.Warn().Err(err).Msg("invoice service: paid cache set failed")
		}
	}

	s.log.Info().Str("invoice_id", invoice.ID.String()).Msg("invoice service: marked paid")
	return invoice, nil
}

func (s *invoiceService) markExpired(ctx context.Context, invoice *domain.Invoice) (*domain.Invoice, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	ok, err := s.invoiceRepo.TransitionStatus(ctx, dbTx, invoice.ID, domain.InvoiceStatusPending, domain.InvoiceStatusExpired, nil)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !ok {
		current, err := s.invoiceRepo.GetByID(ctx, invoice.ID)
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		if current == nil {
			return nil, apperror.ErrNotFound("invoice")
		}
		return current, nil
	}

	if err := s.pendingRepo.Delete(ctx, dbTx, invoice.ID); err != nil {
		return nil, apperror.InternalError(err)
	}

	event := &domain.InvoiceEvent{ID: uuid.New(), InvoiceID: invoice.ID, EventType: domain.EventPaymentExpired, CreatedAt: time.Now()}
	if err := s.eventRepo.Append(ctx, dbTx, event); err != nil {
		return nil, apperror.InternalError(err)
	}

	invoice.Status = domain.InvoiceStatusExpired

	if err := s.webhookSvc.EnqueueWebhook(ctx, dbTx, invoice, domain.EventPaymentExpired); err != nil {
		return nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().Str("invoice_id", invoice.ID.String()).Msg("invoice service: marked expired")
	return invoice, nil
}

func (s *invoiceService) Get(ctx context.Context, merchantID, invoiceID uuid.UUID) (*domain.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if invoice == nil || invoice.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("invoice")
	}
	return invoice, nil
}

func (s *invoiceService) List(ctx context.Context, params ports.InvoiceListParams) ([]domain.Invoice, error) {
	if params.Limit <= 0 || params.Limit > 200 {
		params.Limit = 200
	}
	invoices, err := s.invoiceRepo.List(ctx, params)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return invoices, nil
}

func (s *invoiceService) ListEvents(ctx context.Context, merchantID, invoiceID uuid.UUID, limit int) ([]domain.InvoiceEvent, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if invoice == nil || invoice.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("invoice")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	events, err := s.eventRepo.ListByInvoice(ctx, invoiceID, limit)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return events, nil
}

func (s *invoiceService) RequestRefund(ctx context.Context, merchantID, invoiceID uuid.UUID, amount *int64, reason string) (*domain.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if invoice == nil || invoice.MerchantID != merchantID {
		return nil, apperror.ErrNotFound("invoice")
	}
	if !invoice.CanRefund() {
		return nil, apperror.ErrConflict("invoice is not in a refundable state")
	}
	if amount != nil && (*amount <= 0 || *amount > invoice.FinalAmount) {
		return nil, apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	defer dbTx.Rollback(ctx)

	ok, err := s.invoiceRepo.TransitionStatus(ctx, dbTx, invoice.ID, domain.InvoiceStatusPaid, domain.InvoiceStatusRefunded, nil)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if !ok {
		return nil, apperror.ErrConflict("invoice already transitioned")
	}

	payload := map[string]any{"reason": reason}
	if amount != nil {
		payload["amount"] = *amount
	}
	requested := &domain.InvoiceEvent{ID: uuid.New(), InvoiceID: invoice.ID, EventType: domain.EventRefundRequested, Payload: payload, CreatedAt: time.Now()}
	if err := s.eventRepo.Append(ctx, dbTx, requested); err != nil {
		return nil, apperror.InternalError(err)
	}

	processed := &domain.InvoiceEvent{ID: uuid.New(), InvoiceID: invoice.ID, EventType: domain.EventRefundProcessed, Payload: payload, CreatedAt: time.Now()}
	if err := s.eventRepo.Append(ctx, dbTx, processed); err != nil {
		return nil, apperror.InternalError(err)
	}

	invoice.Status = domain.InvoiceStatusRefunded

	if err := s.webhookSvc.EnqueueWebhook(ctx, dbTx, invoice, domain.EventRefundProcessed); err != nil {
		return nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().Str("invoice_id", invoice.ID.String()).Msg("invoice service: refund processed")
	return invoice, nil
}

func (s *invoiceService) ExpirePending(ctx context.Context, limit int) (int, error) {
	now := time.Now()
	expired, err := s.invoiceRepo.ListExpiredPending(ctx, now, limit)
	if err != nil {
		return 0, apperror.InternalError(err)
	}

	count := 0
	for i := range expired {
		inv := &expired[i]
		if _, err := s.markExpired(ctx, inv); err != nil {
			s.log.Warn().Err(err).Str("invoice_id", inv.ID.String()).Msg("invoice service: expiry sweep failed for invoice")
			continue
		}
		count++
	}
	return count, nil
}
