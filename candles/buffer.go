// Package candles holds the confirmed base-timeframe history and its higher-timeframe views.
package candles

import "breakout-retest/models"

// Buffer is a fixed-capacity ring of confirmed candles ordered by OpenTime.
type Buffer struct {
	data  []models.Candle
	start int
	size  int
}

// NewBuffer creates a buffer holding at most capacity candles.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{data: make([]models.Candle, capacity)}
}

// Add appends c, evicting the oldest candle when full. Candles that do not
// advance OpenTime are rejected and Add reports false.
func (b *Buffer) Add(c models.Candle) bool {
	if last, ok := b.Last(); ok && c.OpenTime <= last.OpenTime {
		return false
	}
	if b.size < len(b.data) {
		b.data[(b.start+b.size)%len(b.data)] = c
		b.size++
		return true
	}
	b.data[b.start] = c
	b.start = (b.start + 1) % len(b.data)
	return true
}

// Snapshot returns a copy of the buffered candles, oldest first.
func (b *Buffer) Snapshot() []models.Candle {
	out := make([]models.Candle, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[(b.start+i)%len(b.data)]
	}
	return out
}

// Last returns the newest candle.
func (b *Buffer) Last() (models.Candle, bool) {
	if b.size == 0 {
		return models.Candle{}, false
	}
	return b.data[(b.start+b.size-1)%len(b.data)], true
}

func (b *Buffer) Len() int { return b.size }
func (b *Buffer) Cap() int { return len(b.data) }
