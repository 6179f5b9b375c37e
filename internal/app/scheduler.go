package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/lesson_scheduler/internal/service"
	"go.uber.org/zap"
)

const sweepLockKey = "lesson_scheduler:sweep"

// Sweeper is the job the scheduler runs on every tick.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (service.SweepReport, error)
}

// Scheduler runs the lesson lifecycle sweep in the background.
type Scheduler struct {
	sweeper  Sweeper
	locker   Locker
	interval time.Duration
	lockTTL  time.Duration
	logger   *zap.Logger
	now      func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewScheduler(sweeper Sweeper, locker Locker, interval, lockTTL time.Duration, logger *zap.Logger) *Scheduler {
	if locker == nil {
		locker = LocalLocker{}
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Scheduler{
		sweeper:  sweeper,
		locker:   locker,
		interval: interval,
		lockTTL:  lockTTL,
		logger:   logger,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Stop ends the loop. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping lesson sweep")
		close(s.stopChan)
	})
}

// Run sweeps immediately and then on every tick until ctx is done or Stop is
// called. It always returns nil so it can sit in an errgroup.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Starting lesson sweep", zap.Duration("interval", s.interval))

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.stopChan:
			s.logger.Info("Lesson sweep stopped")
			return nil
		case <-ctx.Done():
			s.logger.Info("Lesson sweep cancelled")
			return nil
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	lease, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.lockTTL)
	if err != nil {
		s.logger.Error("Failed to acquire sweep lock", zap.Error(err))
		return
	}
	if !ok {
		s.logger.Debug("Sweep is running on another replica")
		return
	}
	defer lease.Release(context.WithoutCancel(ctx))

	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go s.keepLease(sweepCtx, cancel, lease, done)

	if _, err := s.sweeper.Sweep(sweepCtx, s.now()); err != nil {
		s.logger.Error("Lesson sweep failed", zap.Error(err))
	}
}

// keepLease extends the lease every half ttl until done is closed. Losing the
// lease cancels the sweep so two replicas never poll at the same time.
func (s *Scheduler) keepLease(ctx context.Context, cancel context.CancelFunc, lease Lease, done <-chan struct{}) {
	ticker := time.NewTicker(s.lockTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lease.Extend(ctx, s.lockTTL); err != nil {
				s.logger.Warn("Sweep lock lost, stopping sweep", zap.Error(err))
				cancel()
				return
			}
		}
	}
}
