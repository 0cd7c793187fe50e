package cache

import (
	"context"
	"sync"
	"time"

	"spin-rewards/internal/models"
)

type PrizeLoader func(context.Context) ([]models.Prize, error)

// PrizeCache holds the active prize list for a short TTL. Quantities in the cached rows may be
// stale; the store re-checks inventory when a spin commits.
type PrizeCache struct {
	mu       sync.RWMutex
	prizes   []models.Prize
	loadedAt time.Time
	ttl      time.Duration
	load     PrizeLoader
	now      func() time.Time
}

func NewPrizeCache(ttl time.Duration, loader PrizeLoader) *PrizeCache {
	return &PrizeCache{ttl: ttl, load: loader, now: time.Now}
}

func (c *PrizeCache) WithClock(now func() time.Time) *PrizeCache {
	c.now = now
	return c
}

// fresh reports whether the cached list may be served. Callers hold mu.
func (c *PrizeCache) fresh() bool {
	return c.prizes != nil && c.now().Sub(c.loadedAt) < c.ttl
}

// Get returns a copy so callers may filter or reorder freely.
func (c *PrizeCache) Get(ctx context.Context) ([]models.Prize, error) {
	c.mu.RLock()
	if c.fresh() {
		out := clonePrizes(c.prizes)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() {
		return clonePrizes(c.prizes), nil
	}
	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Prize{}
	}
	c.prizes = items
	c.loadedAt = c.now()
	return clonePrizes(items), nil
}

// Invalidate drops the cached list; admin prize edits call it so the next spin reloads.
func (c *PrizeCache) Invalidate() {
	c.mu.Lock()
	c.prizes = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}

func clonePrizes(items []models.Prize) []models.Prize {
	out := make([]models.Prize, len(items))
	copy(out, items)
	return out
}
