package queue

import (
	"context"
	"time"

	"asset-pipeline/internal/domain/job"
	"asset-pipeline/internal/lock"
	"asset-pipeline/internal/logger"
	"asset-pipeline/internal/metrics"
)

type LeaseStore interface {
	SweepExpiredLeases(ctx context.Context) (job.SweepResult, error)
}

type Waker interface {
	WakeAsync(reason, token string)
}

type TokenIssuer interface {
	Issue(scope string) (string, error)
}

// Sweeper returns jobs whose worker stopped heartbeating to the queue.
type Sweeper struct {
	store    LeaseStore
	locker   lock.Locker
	waker    Waker
	tokens   TokenIssuer
	interval time.Duration
	metrics  *metrics.Metrics
	log      *logger.Logger
}

func NewSweeper(store LeaseStore, locker lock.Locker, waker Waker, tokens TokenIssuer, interval time.Duration, m *metrics.Metrics, log *logger.Logger) *Sweeper {
	if locker == nil {
		locker = lock.Noop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		store:    store,
		locker:   locker,
		waker:    waker,
		tokens:   tokens,
		interval: interval,
		metrics:  m,
		log:      log.With("component", "lease_sweeper"),
	}
}

// SweepOnce runs one sweep and wakes the worker if anything was requeued.
func (s *Sweeper) SweepOnce(ctx context.Context) (job.SweepResult, error) {
	result, err := s.store.SweepExpiredLeases(ctx)
	if err != nil {
		return result, err
	}

	s.metrics.Sweep(result.Requeued, result.Failed)
	if result.Requeued > 0 || result.Failed > 0 {
		s.log.Info("lease sweep", "requeued", result.Requeued, "failed", result.Failed)
	}

	if result.Requeued > 0 && s.waker != nil && s.tokens != nil {
		token, err := s.tokens.Issue(wakeScopeSweep)
		if err != nil {
			s.log.Error("failed to mint worker token", "error", err)
		} else {
			s.waker.WakeAsync(wakeReasonRequeue, token)
		}
	}

	return result, nil
}

// Run sweeps every interval until ctx is done. Only the replica holding the
// lock for a tick sweeps; the lock expires before the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	held, err := s.locker.Acquire(ctx, sweepLockKey, s.interval/2)
	if err != nil {
		s.log.Warn("sweep lock unavailable", "error", err)
		return
	}
	if !held {
		return
	}

	if _, err := s.SweepOnce(ctx); err != nil {
		s.log.Error("lease sweep failed", "error", err)
	}
}
