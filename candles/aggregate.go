package candles

import (
	"time"

	"breakout-retest/models"
)

// Bucket is a UTC calendar boundary used for resampling.
type Bucket int

const (
	Hour Bucket = iota
	Day
)

func (b Bucket) String() string {
	if b == Day {
		return "1d"
	}
	return "1h"
}

// Length of one bucket.
func (b Bucket) Length() time.Duration {
	if b == Day {
		return 24 * time.Hour
	}
	return time.Hour
}

// Start returns the bucket containing t.
func (b Bucket) Start(t time.Time) time.Time {
	return t.UTC().Truncate(b.Length())
}

// Aggregate folds base candles into closed buckets. A bucket is emitted only when every
// base slot from its start to start+length-baseInterval is present, so the in-progress
// trailing bucket and any bucket with a hole are dropped. Boundaries come from the candle
// timestamps, never the local clock.
func Aggregate(base []models.Candle, baseInterval time.Duration, bucket Bucket) []models.Candle {
	if baseInterval <= 0 || len(base) == 0 || bucket.Length()%baseInterval != 0 {
		return nil
	}
	want := int(bucket.Length() / baseInterval)
	step := baseInterval.Milliseconds()

	out := make([]models.Candle, 0, len(base)/want+1)
	var (
		cur     models.Candle
		count   int
		lastMs  int64
		started bool
	)
	flush := func() {
		if started && count == want {
			out = append(out, cur)
		}
	}
	for _, c := range base {
		start := bucket.Start(c.Time()).UnixMilli()
		if !started || start != cur.OpenTime {
			flush()
			started = true
			cur = models.Candle{OpenTime: start, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
			count = 0
			if c.OpenTime == start {
				count = 1
			} else {
				count = -1 // first slot missing; the bucket can never close
			}
			lastMs = c.OpenTime
			continue
		}
		if count > 0 && c.OpenTime == lastMs+step {
			count++
		} else {
			count = -1
		}
		lastMs = c.OpenTime
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	flush()
	return out
}
