package strategy

import (
	"time"

	"breakout-retest/candles"
	"breakout-retest/indicators"
	"breakout-retest/internal/constants"
	"breakout-retest/models"
)

// MultiTimeframeIndicators derives hourly and daily series from the base buffer and
// computes every indicator the strategy reads.
type MultiTimeframeIndicators struct {
	hourly *candles.HTFCache
	daily  *candles.HTFCache
}

// NewMultiTimeframeIndicators creates a calculator for a base interval.
func NewMultiTimeframeIndicators(baseInterval time.Duration) *MultiTimeframeIndicators {
	return &MultiTimeframeIndicators{
		hourly: candles.NewHTFCache(baseInterval, candles.Hour),
		daily:  candles.NewHTFCache(baseInterval, candles.Day),
	}
}

// Reading is the indicator state at one bar. Missing lists the signal inputs still
// warming up; ATR is tracked apart because only the volatility gate needs it.
type Reading struct {
	Snapshot models.IndicatorSnapshot
	Missing  []string
	ATRReady bool
}

// Ready reports whether every signal input is defined.
func (r Reading) Ready() bool { return len(r.Missing) == 0 }

// Compute returns the reading for the newest bar in base.
func (m *MultiTimeframeIndicators) Compute(base []models.Candle) Reading {
	var snap models.IndicatorSnapshot
	if len(base) == 0 {
		return Reading{Missing: []string{"bars"}}
	}
	last := base[len(base)-1]
	snap.Time = last.Time()
	snap.Close = last.Close

	var missing []string
	closes := indicators.Closes(base)
	hourly := m.hourly.Series(base)
	daily := m.daily.Series(base)

	var ok bool
	if snap.EMA60, ok = indicators.EMA(closes, constants.EMAFastWindow); !ok {
		missing = append(missing, "ema60")
	}
	if snap.EMA163, ok = indicators.EMA(closes, constants.EMASlowWindow); !ok {
		missing = append(missing, "ema163")
	}
	if snap.EMA1h, ok = indicators.EMA(indicators.Closes(hourly), constants.EMAHourWindow); !ok {
		missing = append(missing, "ema1h")
	}
	if snap.RSIDaily, ok = indicators.RSI(indicators.Closes(daily), constants.RSIDailyWindow); !ok {
		missing = append(missing, "rsi1d")
	}
	atr, atrOK := indicators.ATR(hourly, constants.ATRWindow)
	if atrOK {
		snap.ATR1h = atr
	}
	return Reading{Snapshot: snap, Missing: missing, ATRReady: atrOK}
}

// CacheStats reports hits and misses of the hourly and daily caches combined.
func (m *MultiTimeframeIndicators) CacheStats() (hits, misses int) {
	hh, hm := m.hourly.Stats()
	dh, dm := m.daily.Stats()
	return hh + dh, hm + dm
}
