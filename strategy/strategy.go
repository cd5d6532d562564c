package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"breakout-retest/api"
	"breakout-retest/candles"
	"breakout-retest/config"
	"breakout-retest/interfaces"
	"breakout-retest/internal/constants"
	"breakout-retest/internal/utils"
	"breakout-retest/logging"
	"breakout-retest/metrics"
	"breakout-retest/models"
	"breakout-retest/order"
	"breakout-retest/risk"
)

// priceMarker is implemented by simulated exchanges that fill market orders at the
// last bar's close.
type priceMarker interface {
	Mark(price float64)
}

// Trader wires buffer, indicators, breakout state, risk and execution per confirmed bar.
// All of its state is single-writer: only the feed's read loop or the replay loop calls
// OnBar.
type Trader struct {
	Exchange interfaces.Exchange
	Config   *config.Config
	State    *models.State
	Executor *order.Executor
	Guard    *risk.DrawdownGuard
	Logger   logging.LoggerInterface

	buffer   *candles.Buffer
	mtf      *MultiTimeframeIndicators
	breakout *BreakoutState
	now      func() time.Time

	signals int
	exits   []order.Exit
}

// NewTrader creates a new trader instance
func NewTrader(exchange interfaces.Exchange, cfg *config.Config, state *models.State, logger logging.LoggerInterface) (*Trader, error) {
	interval, err := utils.IntervalDuration(cfg.Timeframe)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &models.State{}
	}
	executor := order.NewExecutor(exchange, exchange, order.Settings{
		Symbol:               cfg.Symbol,
		OrderPercent:         cfg.OrderPercent,
		MaxOrderCost:         cfg.MaxOrderCost,
		TrailPct:             cfg.TrailPct,
		TakeProfitPct:        cfg.TakeProfitPct,
		MaxConsecutiveLosses: cfg.MaxConsecutiveLosses,
		CooldownBars:         cfg.CooldownBars,
	}, logger)

	return &Trader{
		Exchange: exchange,
		Config:   cfg,
		State:    state,
		Executor: executor,
		Guard:    risk.NewDrawdownGuard(cfg.DrawdownLimitPct, cfg.DrawdownMarkerPath, logger),
		Logger:   logger,
		buffer:   candles.NewBuffer(cfg.BufferCapacity),
		mtf:      NewMultiTimeframeIndicators(interval),
		breakout: NewBreakoutState(cfg.MaxBarsWait, cfg.RetestPct),
		now:      time.Now,
	}, nil
}

// OnBar processes one confirmed base candle. Its signature matches feed.Handler.
func (t *Trader) OnBar(ctx context.Context, c models.Candle) {
	if !t.buffer.Add(c) {
		t.Logger.Debug("Dropping stale candle %s (not after last buffered bar)", c.Time().Format(time.RFC3339))
		return
	}
	metrics.IncBar()
	t.State.BarSeq.Add(1)
	if m, ok := t.Exchange.(priceMarker); ok {
		m.Mark(c.Close)
	}

	reading := t.mtf.Compute(t.buffer.Snapshot())
	var sig models.Signal
	switch {
	case !reading.Ready():
		t.breakout.Observe(c.Close)
		t.Logger.Debug("Warm-up at %s: %s undefined (%d/%d bars buffered)",
			c.Time().Format(time.RFC3339), strings.Join(reading.Missing, ","), t.buffer.Len(), t.buffer.Cap())
	case !t.volatilityOK(reading):
		t.breakout.Skip(c.Close)
		t.Logger.Debug("Volatility gate: ATR1h %.4f below %.4f, skipping bar", reading.Snapshot.ATR1h, t.Config.MinATR)
	default:
		snap := reading.Snapshot
		sig = t.breakout.Evaluate(Inputs{
			OpenTime: c.Time(),
			Close:    c.Close,
			EMA1h:    snap.EMA1h,
			EMA60:    snap.EMA60,
			EMA163:   snap.EMA163,
			RSIDaily: snap.RSIDaily,
		})
		t.Logger.Debug("Bar %s close=%.4f ema1h=%.4f ema60=%.4f ema163=%.4f rsi1d=%.2f atr1h=%.4f long=%v short=%v",
			c.Time().Format(time.RFC3339), c.Close, snap.EMA1h, snap.EMA60, snap.EMA163, snap.RSIDaily, snap.ATR1h, sig.Long, sig.Short)
	}

	t.act(ctx, c, sig)
	t.publish(c, reading, sig)
}

func (t *Trader) volatilityOK(r Reading) bool {
	if t.Config.MinATR <= 0 {
		return true
	}
	return r.ATRReady && r.Snapshot.ATR1h >= t.Config.MinATR
}

// act runs the drawdown guard, places entries for fired signals and checks trailing exits.
// The cooldown ticks between entries and exits, so a cooldown started by this bar's exit
// blocks entries on exactly the next CooldownBars bars.
func (t *Trader) act(ctx context.Context, c models.Candle, sig models.Signal) {
	if balance, err := t.Exchange.FetchBalance(ctx, t.Config.QuoteCoin); err != nil {
		t.Logger.Error("Fetch balance failed: %v", err)
		if sig.Long || sig.Short {
			t.Logger.Warning("Skipping entries at %s without a balance", c.Time().Format(time.RFC3339))
		}
	} else {
		stopped := t.Guard.Update(balance, t.now())
		t.enter(ctx, c, sig, balance, stopped)
	}

	t.Executor.Tick()
	t.exits = append(t.exits, t.Executor.CheckTrailingStops(ctx, c.Close)...)
}

func (t *Trader) enter(ctx context.Context, c models.Candle, sig models.Signal, balance float64, stopped bool) {
	for _, side := range []string{constants.Long, constants.Short} {
		if (side == constants.Long && !sig.Long) || (side == constants.Short && !sig.Short) {
			continue
		}
		t.signals++
		metrics.IncSignal(side)
		t.Logger.Info("%s signal at %s close=%.4f", side, c.Time().Format(time.RFC3339), c.Close)
		if stopped {
			t.Logger.Warning("Drawdown stop active; %s entry skipped", side)
			continue
		}
		err := t.Executor.Order(ctx, side, c.Close, balance)
		switch {
		case err == nil:
		case errors.Is(err, order.ErrCooldown), errors.Is(err, order.ErrSideActive):
			t.Logger.Info("%s entry skipped: %v", side, err)
		case api.IsRejection(err), errors.Is(err, order.ErrQtyTooSmall),
			errors.Is(err, order.ErrNotional), errors.Is(err, order.ErrInvalidPrice):
			t.Logger.Warning("%s entry rejected: %v", side, err)
		default:
			t.Logger.Error("%s entry failed: %v", side, err)
		}
	}
}

func (t *Trader) publish(c models.Candle, reading Reading, sig models.Signal) {
	trailing := make([]models.TrailingSnapshot, 0, 2)
	for _, side := range []string{constants.Long, constants.Short} {
		ts := t.Executor.Stop(side)
		trailing = append(trailing, models.TrailingSnapshot{Side: side, Active: ts.Active(), Entry: ts.Entry(), Extreme: ts.Extreme()})
	}

	t.State.StatusLock.Lock()
	defer t.State.StatusLock.Unlock()
	t.State.LastBar = c
	if reading.Ready() {
		t.State.LastIndicators = reading.Snapshot
	}
	if sig.Long || sig.Short {
		dir := constants.Long
		if !sig.Long {
			dir = constants.Short
		}
		t.State.LastSignal = models.SignalSnapshot{Time: c.Time(), Direction: dir, ClosePrice: c.Close}
	}
	t.State.Breakout = t.breakout.Snapshot()
	t.State.Trailing = trailing
	t.State.Risk = models.RiskSnapshot{
		StartBalance:      t.Guard.StartBalance(),
		Balance:           t.Guard.LastBalance(),
		Stopped:           t.Guard.Stopped(),
		ConsecutiveLosses: t.Executor.ConsecutiveLosses(),
		CooldownBars:      t.Executor.Cooldown(),
	}
}

// Warmup fills the buffer with recent closed history so the first live bar can be evaluated.
func (t *Trader) Warmup(ctx context.Context) error {
	history, err := t.Exchange.FetchOHLCV(ctx, t.Config.Symbol, t.Config.Timeframe, t.Config.WarmupBars)
	if err != nil {
		return fmt.Errorf("warm-up history: %w", err)
	}
	added := 0
	for _, c := range history {
		if t.buffer.Add(c) {
			t.breakout.Observe(c.Close)
			added++
		}
	}
	if last, ok := t.buffer.Last(); ok {
		t.Logger.Info("Warm-up loaded %d %s candles for %s, last %s", added, t.Config.Timeframe, t.Config.Symbol, last.Time().Format(time.RFC3339))
	} else {
		t.Logger.Warning("Warm-up returned no candles for %s", t.Config.Symbol)
	}
	return nil
}

// ReplaySummary describes a finished replay run.
type ReplaySummary struct {
	Bars    int
	Signals int
	Exits   []order.Exit
	From    time.Time
	To      time.Time
}

// Replay fetches ReplayBars of history and feeds them through OnBar in order.
func (t *Trader) Replay(ctx context.Context) (ReplaySummary, error) {
	history, err := t.Exchange.FetchOHLCV(ctx, t.Config.Symbol, t.Config.Timeframe, t.Config.ReplayBars)
	if err != nil {
		return ReplaySummary{}, fmt.Errorf("replay history: %w", err)
	}
	var sum ReplaySummary
	if len(history) > 0 {
		sum.From, sum.To = history[0].Time(), history[len(history)-1].Time()
	}
	t.Logger.Info("Replaying %d %s candles for %s", len(history), t.Config.Timeframe, t.Config.Symbol)
	for _, c := range history {
		if err := ctx.Err(); err != nil {
			return t.summary(sum), err
		}
		t.OnBar(ctx, c)
		sum.Bars++
	}
	hits, misses := t.mtf.CacheStats()
	t.Logger.Debug("Aggregation cache: %d hits, %d misses", hits, misses)
	return t.summary(sum), nil
}

func (t *Trader) summary(sum ReplaySummary) ReplaySummary {
	sum.Signals = t.signals
	sum.Exits = append([]order.Exit(nil), t.exits...)
	return sum
}
