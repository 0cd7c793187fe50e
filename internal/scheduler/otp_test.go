package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingPruner struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (p *countingPruner) PruneOTPChallenges(context.Context, time.Time) (int64, error) {
	p.calls.Add(1)
	return p.n, p.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnce(t *testing.T) {
	ok := &countingPruner{n: 3}
	if got := NewOTPPruner(ok, time.Minute, discard()).RunOnce(context.Background()); got != 3 {
		t.Fatalf("pruned = %d, want 3", got)
	}
	failing := &countingPruner{n: 3, err: errors.New("locked")}
	if got := NewOTPPruner(failing, time.Minute, discard()).RunOnce(context.Background()); got != 0 {
		t.Fatalf("pruned on error = %d, want 0", got)
	}
}

func TestStartTicksUntilStopped(t *testing.T) {
	p := &countingPruner{}
	r := NewOTPPruner(p, 5*time.Millisecond, discard())
	r.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for p.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()
	if p.calls.Load() < 2 {
		t.Fatalf("pruner ran %d times, want at least 2", p.calls.Load())
	}
	after := p.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if p.calls.Load() != after {
		t.Fatal("pruner kept running after Stop")
	}
	r.Stop()
}
