package candles

import (
	"time"

	"breakout-retest/models"
)

type cacheKey struct {
	first, next int64
}

// HTFCache memoizes Aggregate per bucket. The key is the first bucket the oldest buffered
// candle can still fully cover plus the bucket of the next expected base candle; the set
// of closed buckets can only change when one of those moves.
type HTFCache struct {
	baseInterval time.Duration
	bucket       Bucket

	key    cacheKey
	valid  bool
	series []models.Candle

	hits, misses int
}

// NewHTFCache returns a cache resampling baseInterval candles into bucket.
func NewHTFCache(baseInterval time.Duration, bucket Bucket) *HTFCache {
	return &HTFCache{baseInterval: baseInterval, bucket: bucket}
}

// Series returns the closed higher-timeframe candles for base. The returned slice is
// shared with later calls in the same bucket and must not be modified.
func (h *HTFCache) Series(base []models.Candle) []models.Candle {
	if len(base) == 0 {
		return nil
	}
	first := base[0].Time()
	next := base[len(base)-1].Time().Add(h.baseInterval)
	firstFull := h.bucket.Start(first)
	if !firstFull.Equal(first) {
		firstFull = firstFull.Add(h.bucket.Length())
	}
	key := cacheKey{
		first: firstFull.UnixMilli(),
		next:  h.bucket.Start(next).UnixMilli(),
	}
	if h.valid && key == h.key {
		h.hits++
		return h.series
	}
	h.misses++
	h.key = key
	h.valid = true
	h.series = Aggregate(base, h.baseInterval, h.bucket)
	return h.series
}

// Stats returns hit and miss counts.
func (h *HTFCache) Stats() (hits, misses int) {
	return h.hits, h.misses
}
