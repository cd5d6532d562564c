package position

import (
	"math"

	"breakout-retest/internal/constants"
)

// ExitReason says why a trailing stop fired. The empty reason means hold.
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitTakeProfit ExitReason = "TP"
	ExitTrailBE    ExitReason = "TRAIL-BE"
	ExitTrail      ExitReason = "TRAIL"
)

// TrailingStop follows the best price reached by one side's position.
type TrailingStop struct {
	side          string
	trailPct      float64
	takeProfitPct float64

	active  bool
	entry   float64
	extreme float64
}

// NewTrailingStop creates an inactive stop for side (LONG or SHORT). takeProfitPct 0 disables TP.
func NewTrailingStop(side string, trailPct, takeProfitPct float64) *TrailingStop {
	return &TrailingStop{side: side, trailPct: trailPct, takeProfitPct: takeProfitPct}
}

func (t *TrailingStop) isLong() bool { return t.side != constants.Short }

// Activate starts tracking a position entered at entry.
func (t *TrailingStop) Activate(entry float64) {
	t.active = true
	t.entry = entry
	t.extreme = entry
}

// UpdatePrice moves the extreme in the favorable direction only.
func (t *TrailingStop) UpdatePrice(price float64) {
	if !t.active {
		return
	}
	if t.isLong() {
		t.extreme = math.Max(t.extreme, price)
	} else {
		t.extreme = math.Min(t.extreme, price)
	}
}

// ShouldExit checks take-profit, then the break-even clamped trail, then the plain trail.
func (t *TrailingStop) ShouldExit(price float64) ExitReason {
	if !t.active {
		return ExitNone
	}
	if t.isLong() {
		if t.takeProfitPct > 0 && price >= t.entry*(1+t.takeProfitPct) {
			return ExitTakeProfit
		}
		trail := t.extreme * (1 - t.trailPct)
		if t.extreme >= t.entry*(1+constants.BreakEvenTrigger) && price <= math.Max(t.entry, trail) {
			return ExitTrailBE
		}
		if price <= trail {
			return ExitTrail
		}
		return ExitNone
	}

	if t.takeProfitPct > 0 && price <= t.entry*(1-t.takeProfitPct) {
		return ExitTakeProfit
	}
	trail := t.extreme * (1 + t.trailPct)
	if t.extreme <= t.entry*(1-constants.BreakEvenTrigger) && price >= math.Min(t.entry, trail) {
		return ExitTrailBE
	}
	if price >= trail {
		return ExitTrail
	}
	return ExitNone
}

// Clear deactivates the stop and forgets entry and extreme.
func (t *TrailingStop) Clear() {
	t.active = false
	t.entry = 0
	t.extreme = 0
}

func (t *TrailingStop) Side() string     { return t.side }
func (t *TrailingStop) Active() bool     { return t.active }
func (t *TrailingStop) Entry() float64   { return t.entry }
func (t *TrailingStop) Extreme() float64 { return t.extreme }
