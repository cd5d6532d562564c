package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"breakout-retest/internal/constants"
)

// ErrUnknownInterval is returned for timeframes with no exchange interval code.
var ErrUnknownInterval = errors.New("unknown timeframe")

// IntervalCode maps a timeframe such as "5m" or "1h" to the exchange interval code.
// Raw codes ("5", "60", "D") pass through unchanged.
func IntervalCode(timeframe string) (string, error) {
	tf := strings.TrimSpace(timeframe)
	if code, ok := constants.Timeframes[tf]; ok {
		return code, nil
	}
	if code, ok := constants.Timeframes[strings.ToLower(tf)]; ok && tf != "1M" {
		return code, nil
	}
	for _, code := range constants.Timeframes {
		if code == tf {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownInterval, timeframe)
}

// IntervalDuration returns the fixed length of a timeframe. Monthly bars have no fixed length.
func IntervalDuration(timeframe string) (time.Duration, error) {
	code, err := IntervalCode(timeframe)
	if err != nil {
		return 0, err
	}
	switch code {
	case "D":
		return 24 * time.Hour, nil
	case "W":
		return 7 * 24 * time.Hour, nil
	case "M":
		return 0, fmt.Errorf("%w: monthly bars have no fixed duration", ErrUnknownInterval)
	}
	var minutes int
	if _, err := fmt.Sscanf(code, "%d", &minutes); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownInterval, timeframe)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// FloorToStep rounds v down to a multiple of step. A non-positive step returns v unchanged.
func FloorToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// PassivePrice floors price to tick and nudges it one tick away from the touch:
// down for buys, up for sells, so a post-only order rests on the book.
func PassivePrice(price, tick decimal.Decimal, side string) decimal.Decimal {
	p := FloorToStep(price, tick)
	if !tick.IsPositive() {
		return p
	}
	if side == constants.Buy {
		return p.Sub(tick)
	}
	return p.Add(tick)
}

// NormalizeSide normalizes position side to LONG/SHORT
func NormalizeSide(side string) string {
	switch strings.ToUpper(strings.TrimSpace(side)) {
	case "BUY", "LONG":
		return constants.Long
	case "SELL", "SHORT":
		return constants.Short
	default:
		return ""
	}
}

// OrderSide returns the order side that opens a position on the given LONG/SHORT side.
func OrderSide(side string) string {
	if NormalizeSide(side) == constants.Short {
		return constants.Sell
	}
	return constants.Buy
}

// CloseSide returns the order side that reduces a position on the given LONG/SHORT side.
func CloseSide(side string) string {
	if NormalizeSide(side) == constants.Short {
		return constants.Buy
	}
	return constants.Sell
}
