package position

import (
	"testing"

	"breakout-retest/internal/constants"
)

func TestTakeProfitWinsOverTrail(t *testing.T) {
	ts := NewTrailingStop(constants.Long, 0.01, 0.02)
	ts.Activate(100)
	ts.UpdatePrice(101)
	ts.UpdatePrice(102)
	if got := ts.ShouldExit(102); got != ExitTakeProfit {
		t.Fatalf("ShouldExit(102) = %q, want TP", got)
	}
}

func TestBreakEvenClampLong(t *testing.T) {
	ts := NewTrailingStop(constants.Long, 0.01, 0)
	ts.Activate(100)
	ts.UpdatePrice(100.6) // 0.6% favorable, trail level 99.594 sits below entry
	if got := ts.ShouldExit(100.2); got != ExitNone {
		t.Fatalf("above clamped level should hold, got %q", got)
	}
	if got := ts.ShouldExit(99.9); got != ExitTrailBE {
		t.Fatalf("crossing entry after 0.5%% move should be TRAIL-BE, got %q", got)
	}
}

func TestPlainTrailBeforeBreakEvenArms(t *testing.T) {
	ts := NewTrailingStop(constants.Long, 0.01, 0)
	ts.Activate(100)
	ts.UpdatePrice(100.3)
	if got := ts.ShouldExit(99.5); got != ExitNone {
		t.Fatalf("99.5 is above trail 99.297, got %q", got)
	}
	if got := ts.ShouldExit(99.2); got != ExitTrail {
		t.Fatalf("expected TRAIL, got %q", got)
	}
}

func TestShortSide(t *testing.T) {
	ts := NewTrailingStop(constants.Short, 0.01, 0.02)
	ts.Activate(100)
	ts.UpdatePrice(99)
	ts.UpdatePrice(99.8) // extreme must stay at 99
	if ts.Extreme() != 99 {
		t.Fatalf("extreme = %v, want 99", ts.Extreme())
	}
	if got := ts.ShouldExit(99.5); got != ExitNone {
		t.Fatalf("expected hold, got %q", got)
	}
	if got := ts.ShouldExit(100.1); got != ExitTrailBE {
		t.Fatalf("expected TRAIL-BE, got %q", got)
	}
	if got := ts.ShouldExit(97.9); got != ExitTakeProfit {
		t.Fatalf("expected TP, got %q", got)
	}
}

func TestExtremeMonotonicAndClear(t *testing.T) {
	ts := NewTrailingStop(constants.Long, 0.01, 0.02)
	if ts.ShouldExit(1) != ExitNone {
		t.Fatal("inactive stop must not fire")
	}
	ts.UpdatePrice(500)
	if ts.Extreme() != 0 {
		t.Fatal("inactive stop must ignore prices")
	}
	ts.Activate(100)
	for _, p := range []float64{101, 100.5, 103, 99} {
		prev := ts.Extreme()
		ts.UpdatePrice(p)
		if ts.Extreme() < prev {
			t.Fatalf("extreme moved against position: %v -> %v", prev, ts.Extreme())
		}
	}
	ts.Clear()
	if ts.Active() || ts.Entry() != 0 || ts.Extreme() != 0 {
		t.Fatal("Clear should reset the stop")
	}
}
