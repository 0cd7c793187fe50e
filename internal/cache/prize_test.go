package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"spin-rewards/internal/models"
)

func TestPrizeCacheLoadsOnceAndInvalidates(t *testing.T) {
	calls := 0
	c := NewPrizeCache(time.Hour, func(context.Context) ([]models.Prize, error) {
		calls++
		return []models.Prize{{ID: 1, Title: "A", Weight: 1, Active: true}}, nil
	})
	ctx := context.Background()

	first, err := c.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	first[0].Title = "mutated"
	second, _ := c.Get(ctx)
	if calls != 1 {
		t.Fatalf("loader calls = %d, want 1", calls)
	}
	if second[0].Title != "A" {
		t.Fatal("Get must return a copy")
	}

	c.Invalidate()
	if _, err := c.Get(ctx); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("loader calls after invalidate = %d, want 2", calls)
	}
}

func TestPrizeCacheLoaderError(t *testing.T) {
	boom := errors.New("db down")
	c := NewPrizeCache(time.Hour, func(context.Context) ([]models.Prize, error) {
		return nil, boom
	})
	if _, err := c.Get(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestPrizeCacheExpires(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	c := NewPrizeCache(30*time.Second, func(context.Context) ([]models.Prize, error) {
		calls++
		return nil, nil
	}).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for _, step := range []struct {
		advance time.Duration
		want    int
	}{
		{0, 1},
		{29 * time.Second, 1},
		{time.Second, 2},
	} {
		now = now.Add(step.advance)
		got, err := c.Get(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got == nil {
			t.Fatal("empty result must be a non-nil slice")
		}
		if calls != step.want {
			t.Fatalf("after +%v loader calls = %d, want %d", step.advance, calls, step.want)
		}
	}
}
