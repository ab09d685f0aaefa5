// Package scheduler drives the gateway's periodic housekeeping: invoice
// expiry sweeps, cache garbage collection, and the webhook retry pump.
// It is the only component allowed to run without an inbound request.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"qris-gateway/internal/core/ports"

	"github.com/rs/zerolog"
)

const (
	expirySweepLimit = 200
	webhookBatchSize = 20
)

// Config holds the scheduler's tunables.
type Config struct {
	Interval time.Duration // default 15s
}

// Scheduler runs one non-overlapping tick of housekeeping work.
type Scheduler struct {
	cfg         Config
	invoiceSvc  ports.InvoiceService
	webhookWkr  ports.WebhookWorker
	paidTxRepo  ports.PaidTxRepository
	pendingRepo ports.PendingTxRepository
	log         zerolog.Logger

	running atomic.Bool
	done    chan struct{}
}

// New builds a Scheduler. paidTxRepo/pendingRepo feed the cache
// garbage collection step; either may be nil if that store manages its
// own TTL natively. Nonce replay protection is Redis SETNX+TTL
// (internal/adapter/storage/redis.NonceStore) and self-expires, so it
// needs no explicit sweep here.
func New(
	cfg Config,
	invoiceSvc ports.InvoiceService,
	webhookWkr ports.WebhookWorker,
	paidTxRepo ports.PaidTxRepository,
	pendingRepo ports.PendingTxRepository,
	log zerolog.Logger,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	return &Scheduler{
		cfg:         cfg,
		invoiceSvc:  invoiceSvc,
		webhookWkr:  webhookWkr,
		paidTxRepo:  paidTxRepo,
		pendingRepo: pendingRepo,
		log:         log,
		done:        make(chan struct{}),
	}
}

// Start runs the tick loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.cfg.Interval).Msg("scheduler: started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler: stopped")
			close(s.done)
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Done signals that Start has returned after ctx cancellation.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// tick runs one pass of housekeeping. If a previous tick is still in
// flight, this tick is skipped entirely (non-overlapping requirement).
func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn().Msg("scheduler: previous tick still running, skipping")
		return
	}
	defer s.running.Store(false)

	expiredCount, err := s.invoiceSvc.ExpirePending(ctx, expirySweepLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduler: expiry sweep failed")
	} else if expiredCount > 0 {
		s.log.Info().Int("count", expiredCount).Msg("scheduler: expired invoices swept")
	}

	s.gcCaches(ctx)

	delivered, failed, err := s.webhookWkr.RunBatch(ctx, webhookBatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduler: webhook batch failed")
	} else if delivered > 0 || failed > 0 {
		s.log.Info().Int("delivered", delivered).Int("failed", failed).Msg("scheduler: webhook batch processed")
	}
}

func (s *Scheduler) gcCaches(ctx context.Context) {
	now := time.Now()
	if s.paidTxRepo != nil {
		if n, err := s.paidTxRepo.DeleteExpired(ctx, now); err != nil {
			s.log.Warn().Err(err).Msg("scheduler: paid-tx gc failed")
		} else if n > 0 {
			s.log.Debug().Int64("deleted", n).Msg("scheduler: paid-tx gc'd")
		}
	}
	if s.pendingRepo != nil {
		if n, err := s.pendingRepo.DeleteExpired(ctx, now); err != nil {
			s.log.Warn().Err(err).Msg("scheduler: pending-tx gc failed")
		} else if n > 0 {
			s.log.Debug().Int64("deleted", n).Msg("scheduler: pending-tx gc'd")
		}
	}
}
