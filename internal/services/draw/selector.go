package draw

import (
	mrand "math/rand"
	"sync"

	"spin-rewards/internal/models"
)

// DrawFunc returns a uniform value in [0, 1).
type DrawFunc func() float64

// NewDrawFunc returns a goroutine-safe DrawFunc backed by a math/rand source seeded with seed.
func NewDrawFunc(seed int64) DrawFunc {
	rng := mrand.New(mrand.NewSource(seed))
	var mu sync.Mutex
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64()
	}
}

// FilterAvailable keeps active prizes that still have stock, preserving order.
func FilterAvailable(items []models.Prize) []models.Prize {
	out := make([]models.Prize, 0, len(items))
	for _, item := range items {
		if item.Available() {
			out = append(out, item)
		}
	}
	return out
}

// Select picks one item with probability weight/total. It reports false when the list is
// empty or every weight is zero; negative weights count as zero.
func Select(items []models.Prize, draw DrawFunc) (models.Prize, bool) {
	var total float64
	last := -1
	for i, item := range items {
		if item.Weight > 0 {
			total += item.Weight
			last = i
		}
	}
	if total <= 0 || last < 0 {
		return models.Prize{}, false
	}

	r := draw() * total
	var cumulative float64
	for i, item := range items {
		if item.Weight <= 0 {
			continue
		}
		cumulative += item.Weight
		if r < cumulative || i == last {
			return item, true
		}
	}
	return items[last], true
}
