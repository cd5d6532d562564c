package indicators

import (
	"math"

	"breakout-retest/models"
)

// Every function here returns ok=false instead of a value when the series is too short.

// SMA returns the simple average of data.
func SMA(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// EMA returns the last exponential moving average of src, seeded with the SMA of the first period values.
func EMA(src []float64, period int) (float64, bool) {
	if period <= 0 || len(src) < period {
		return 0, false
	}
	k := 2.0 / float64(period+1)
	ema := SMA(src[:period])
	for _, v := range src[period:] {
		ema = v*k + ema*(1-k)
	}
	return ema, true
}

// RSI returns the last Wilder RSI of src.
func RSI(src []float64, length int) (float64, bool) {
	if length <= 0 || len(src) < length+1 {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= length; i++ {
		delta := src[i] - src[i-1]
		if delta >= 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	avgGain := gain / float64(length)
	avgLoss := loss / float64(length)
	n := float64(length)
	for i := length + 1; i < len(src); i++ {
		delta := src[i] - src[i-1]
		up, down := 0.0, 0.0
		if delta >= 0 {
			up = delta
		} else {
			down = -delta
		}
		avgGain = (avgGain*(n-1) + up) / n
		avgLoss = (avgLoss*(n-1) + down) / n
	}
	return rsiValue(avgGain, avgLoss), true
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// TrueRange of a bar given the previous close.
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// ATR returns the last Wilder-smoothed average true range. It needs period+1 candles because
// each true range uses the previous close; non-finite prices make the result undefined.
func ATR(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	for _, c := range candles {
		if !finite(c.High) || !finite(c.Low) || !finite(c.Close) {
			return 0, false
		}
	}
	n := float64(period)
	var atr float64
	for i := 1; i <= period; i++ {
		atr += TrueRange(candles[i].High, candles[i].Low, candles[i-1].Close)
	}
	atr /= n
	for i := period + 1; i < len(candles); i++ {
		tr := TrueRange(candles[i].High, candles[i].Low, candles[i-1].Close)
		atr = (atr*(n-1) + tr) / n
	}
	return atr, true
}

// Closes extracts close prices in order.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
