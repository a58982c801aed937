// internal/worker/lock_sweeper.go
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultErrorBackoff  = time.Minute
)

// LockCleaner is implemented by usecase.TopupUsecase.
type LockCleaner interface {
	CleanupExpiredLocks(ctx context.Context) (int64, error)
}

// LockSweeper expires lapsed topup locks in the background. Allocation
// sweeps on its own too, so a missed run only delays the status change.
type LockSweeper struct {
	cleaner  LockCleaner
	interval time.Duration
	backoff  time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewLockSweeper(cleaner LockCleaner, interval, backoff time.Duration, logger *zap.Logger) *LockSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if backoff <= 0 {
		backoff = DefaultErrorBackoff
	}
	return &LockSweeper{
		cleaner:  cleaner,
		interval: interval,
		backoff:  backoff,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx is cancelled. It runs once
// immediately, then every interval; after a failure the next run comes
// after the backoff.
func (s *LockSweeper) Start(ctx context.Context) {
	defer close(s.done)
	s.logger.Info("starting lock sweeper", zap.Duration("interval", s.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			timer.Reset(s.sweep(ctx))

		case <-s.stopChan:
			s.logger.Info("stopping lock sweeper")
			return

		case <-ctx.Done():
			s.logger.Info("context cancelled, stopping lock sweeper")
			return
		}
	}
}

func (s *LockSweeper) sweep(ctx context.Context) time.Duration {
	n, err := s.cleaner.CleanupExpiredLocks(ctx)
	if err != nil {
		s.logger.Error("lock sweep failed", zap.Error(err), zap.Duration("retry_in", s.backoff))
		return s.backoff
	}
	s.logger.Debug("lock sweep finished", zap.Int64("expired", n))
	return s.interval
}

// Stop is safe to call more than once and waits for Start to return.
func (s *LockSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	<-s.done
}
