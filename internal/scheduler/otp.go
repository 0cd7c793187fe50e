package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"spin-rewards/internal/lib/logger/sl"
)

// Pruner is the storage side of OTPPruner.
type Pruner interface {
	PruneOTPChallenges(ctx context.Context, now time.Time) (int64, error)
}

// OTPPruner periodically deletes expired login challenges.
type OTPPruner struct {
	store    Pruner
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewOTPPruner(store Pruner, interval time.Duration, logger *slog.Logger) *OTPPruner {
	return &OTPPruner{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *OTPPruner) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	go func() {
		defer close(r.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.RunOnce(ctx)
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight prune to finish. Stop must follow Start.
func (r *OTPPruner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.done
}

func (r *OTPPruner) RunOnce(ctx context.Context) int64 {
	n, err := r.store.PruneOTPChallenges(ctx, r.now())
	if err != nil {
		r.logger.Error("otp prune failed", sl.Err(err))
		return 0
	}
	if n > 0 {
		r.logger.Info("expired otp challenges pruned", "count", n)
	}
	return n
}
