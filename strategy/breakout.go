package strategy

import (
	"math"
	"time"

	"breakout-retest/internal/constants"
	"breakout-retest/models"
)

// Inputs are the per-bar values the breakout machine needs.
type Inputs struct {
	OpenTime time.Time
	Close    float64
	EMA1h    float64
	EMA60    float64
	EMA163   float64
	RSIDaily float64
}

// BreakoutState tracks one breakout cycle: IDLE, BREAKOUT_DETECTED, then RETESTED or
// back to IDLE on timeout. Only an upward cross through the hourly EMA latches a
// breakout, so short signals need a retest that only a long-side breakout can set.
type BreakoutState struct {
	maxBarsWait int
	retestPct   float64

	breakoutAt *time.Time
	retested   bool
	barsSince  int

	// recentCloses holds at most maxBarsWait+1 closes, oldest first.
	recentCloses []float64
}

// NewBreakoutState creates an idle state machine.
func NewBreakoutState(maxBarsWait int, retestPct float64) *BreakoutState {
	if maxBarsWait < 1 {
		maxBarsWait = 1
	}
	return &BreakoutState{
		maxBarsWait:  maxBarsWait,
		retestPct:    retestPct,
		recentCloses: make([]float64, 0, maxBarsWait+1),
	}
}

// Evaluate advances the machine by one confirmed bar and returns the entry signals.
func (s *BreakoutState) Evaluate(in Inputs) models.Signal {
	s.advance()

	if prev, ok := s.prevClose(); ok && prev <= in.EMA1h && in.Close > in.EMA1h {
		at := in.OpenTime
		s.breakoutAt = &at
		s.retested = false
		s.barsSince = 0
	}

	s.expire()

	if s.breakoutAt != nil && !s.retested && in.EMA1h != 0 &&
		math.Abs(in.Close-in.EMA1h)/in.EMA1h <= s.retestPct {
		s.retested = true
	}

	mtfLong := in.Close > in.EMA60 && in.Close > in.EMA163
	mtfShort := in.Close < in.EMA60 && in.Close < in.EMA163
	rsiLong := in.RSIDaily <= constants.RSILongMax
	rsiShort := in.RSIDaily >= constants.RSIShortMin
	longBounce := in.Close > in.EMA1h && in.Close <= in.EMA1h*constants.LongBounceBand
	shortBounce := in.Close >= in.EMA1h*constants.ShortBounceBand && in.Close < in.EMA1h

	s.push(in.Close)

	return models.Signal{
		Long:  s.retested && longBounce && mtfLong && rsiLong,
		Short: s.retested && shortBounce && mtfShort && rsiShort,
	}
}

// Skip counts a bar that was not evaluated (volatility gate) toward the retest window
// and records its close. It never latches a breakout, retests or signals.
func (s *BreakoutState) Skip(price float64) {
	s.advance()
	s.expire()
	s.push(price)
}

func (s *BreakoutState) advance() {
	if s.breakoutAt != nil {
		s.barsSince++
	}
}

// expire clears a breakout that went maxBarsWait bars without a retest.
func (s *BreakoutState) expire() {
	if s.breakoutAt != nil && !s.retested && s.barsSince > s.maxBarsWait {
		s.breakoutAt = nil
		s.barsSince = 0
	}
}

// Observe records a close without evaluating, used while indicators are warming up so
// the first evaluated bar still has a previous close.
func (s *BreakoutState) Observe(price float64) { s.push(price) }

func (s *BreakoutState) prevClose() (float64, bool) {
	if len(s.recentCloses) == 0 {
		return 0, false
	}
	return s.recentCloses[len(s.recentCloses)-1], true
}

func (s *BreakoutState) push(price float64) {
	if len(s.recentCloses) == s.maxBarsWait+1 {
		copy(s.recentCloses, s.recentCloses[1:])
		s.recentCloses = s.recentCloses[:len(s.recentCloses)-1]
	}
	s.recentCloses = append(s.recentCloses, price)
}

// Snapshot reports the pending breakout for status output.
func (s *BreakoutState) Snapshot() models.BreakoutSnapshot {
	snap := models.BreakoutSnapshot{Retested: s.retested, BarsSince: s.barsSince}
	if s.breakoutAt != nil {
		at := *s.breakoutAt
		snap.OpenTime = &at
	}
	return snap
}

func (s *BreakoutState) Pending() bool  { return s.breakoutAt != nil }
func (s *BreakoutState) Retested() bool { return s.retested }
