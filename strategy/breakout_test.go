package strategy

import (
	"testing"
	"time"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// longInputs returns inputs with a flat hourly EMA of 100 and long-side filters satisfied.
func longInputs(i int, price float64) Inputs {
	return Inputs{
		OpenTime: t0.Add(time.Duration(i) * 5 * time.Minute),
		Close:    price,
		EMA1h:    100,
		EMA60:    95,
		EMA163:   90,
		RSIDaily: 40,
	}
}

func closesForScenario(retestBar int) []float64 {
	var closes []float64
	for i := 0; i < 10; i++ {
		closes = append(closes, 99)
	}
	for i := 10; i < 40; i++ {
		switch {
		case i == retestBar:
			closes = append(closes, 100.2)
		case i == 10:
			closes = append(closes, 101)
		default:
			closes = append(closes, 101.5)
		}
	}
	return closes
}

func TestBreakoutRetestSignal(t *testing.T) {
	s := NewBreakoutState(12, 0.003)
	for i, price := range closesForScenario(14)[:15] {
		sig := s.Evaluate(longInputs(i, price))
		if i == 10 && (!s.Pending() || s.Retested()) {
			t.Fatalf("bar 10 should latch an unconfirmed breakout")
		}
		if sig.Short {
			t.Fatalf("unexpected short signal at bar %d", i)
		}
		if i < 14 && sig.Long {
			t.Fatalf("unexpected long signal at bar %d", i)
		}
		if i == 14 && !sig.Long {
			t.Fatalf("expected long signal at bar 14, state %+v", s.Snapshot())
		}
	}
}

func TestBreakoutTimesOut(t *testing.T) {
	s := NewBreakoutState(12, 0.003)
	for i, price := range closesForScenario(25)[:26] {
		sig := s.Evaluate(longInputs(i, price))
		if sig.Long || sig.Short {
			t.Fatalf("no signal expected, got %+v at bar %d", sig, i)
		}
		if i == 22 && !s.Pending() {
			t.Fatalf("breakout should still be pending 12 bars after bar 10")
		}
		if i == 23 && s.Pending() {
			t.Fatalf("breakout should time out once more than 12 bars elapsed")
		}
	}
}

func TestDownwardCrossDoesNotLatch(t *testing.T) {
	s := NewBreakoutState(12, 0.003)
	short := func(i int, price float64) Inputs {
		return Inputs{OpenTime: t0.Add(time.Duration(i) * time.Minute), Close: price, EMA1h: 100, EMA60: 105, EMA163: 110, RSIDaily: 60}
	}
	prices := []float64{101, 101, 99, 98.5, 99.8, 99.9}
	for i, price := range prices {
		sig := s.Evaluate(short(i, price))
		if sig.Short || sig.Long {
			t.Fatalf("short side has no breakout latch; got %+v at bar %d", sig, i)
		}
	}
	if s.Pending() {
		t.Fatal("a downward cross must not latch a breakout")
	}
}

func TestRecentClosesBounded(t *testing.T) {
	s := NewBreakoutState(3, 0.003)
	for i := 0; i < 10; i++ {
		s.Observe(float64(i))
	}
	if len(s.recentCloses) != 4 || s.recentCloses[0] != 6 || s.recentCloses[3] != 9 {
		t.Fatalf("recent closes = %v", s.recentCloses)
	}
}

func TestSkippedBarsCountTowardTimeout(t *testing.T) {
	s := NewBreakoutState(12, 0.003)
	closes := closesForScenario(41)
	for i := 0; i <= 10; i++ {
		s.Evaluate(longInputs(i, closes[i]))
	}
	if !s.Pending() {
		t.Fatal("bar 10 should latch a breakout")
	}
	for i := 11; i <= 40; i++ {
		s.Skip(101.5)
	}
	if s.Pending() {
		t.Fatalf("30 gated bars exceed the retest window, state %+v", s.Snapshot())
	}
	if sig := s.Evaluate(longInputs(41, 100.2)); sig.Long || s.Retested() {
		t.Fatalf("late retest after gated bars must not signal, got %+v", sig)
	}
}

func TestSkipKeepsPendingWithinWindow(t *testing.T) {
	s := NewBreakoutState(12, 0.003)
	s.Evaluate(longInputs(0, 99))
	s.Evaluate(longInputs(1, 101))
	for i := 0; i < 5; i++ {
		s.Skip(101.5)
	}
	if !s.Pending() || s.Snapshot().BarsSince != 5 {
		t.Fatalf("skipped bars should advance the counter, state %+v", s.Snapshot())
	}
	if sig := s.Evaluate(longInputs(7, 100.2)); !sig.Long {
		t.Fatalf("retest inside the window should still signal, state %+v", s.Snapshot())
	}
}
