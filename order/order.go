package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"breakout-retest/interfaces"
	"breakout-retest/internal/constants"
	"breakout-retest/internal/utils"
	"breakout-retest/logging"
	"breakout-retest/metrics"
	"breakout-retest/models"
	"breakout-retest/position"
)

// Reasons an entry is skipped without touching the exchange.
var (
	ErrCooldown     = errors.New("entry suppressed by loss cooldown")
	ErrSideActive   = errors.New("position already open on this side")
	ErrQtyTooSmall  = errors.New("quantity rounds below the minimum")
	ErrNotional     = errors.New("notional outside allowed range")
	ErrInvalidPrice = errors.New("price must be positive")
)

// Settings are the sizing and risk knobs of the executor.
type Settings struct {
	Symbol               string
	OrderPercent         float64
	MaxOrderCost         float64 // 0 disables the ceiling
	TrailPct             float64
	TakeProfitPct        float64
	MaxConsecutiveLosses int
	CooldownBars         int
}

// Exit describes a completed trailing-stop exit.
type Exit struct {
	Side   string
	Reason position.ExitReason
	Size   decimal.Decimal
	Price  float64
	PnL    float64
}

// Executor turns signals into exchange-legal orders and manages exits.
type Executor struct {
	exchange  interfaces.Trading
	market    interfaces.MarketData
	positions *position.PositionManager
	settings  Settings
	logger    logging.LoggerInterface

	instrument *models.InstrumentInfo

	stops             map[string]*position.TrailingStop
	entryPrices       map[string]decimal.Decimal
	consecutiveLosses int
	cooldown          int
}

// NewExecutor wires an executor to the trading and market-data sides of an exchange.
func NewExecutor(exchange interfaces.Trading, market interfaces.MarketData, settings Settings, logger logging.LoggerInterface) *Executor {
	if settings.MaxConsecutiveLosses <= 0 {
		settings.MaxConsecutiveLosses = 3
	}
	return &Executor{
		exchange:  exchange,
		market:    market,
		positions: position.NewPositionManager(exchange, settings.Symbol, logger),
		settings:  settings,
		logger:    logger,
		stops: map[string]*position.TrailingStop{
			constants.Long:  position.NewTrailingStop(constants.Long, settings.TrailPct, settings.TakeProfitPct),
			constants.Short: position.NewTrailingStop(constants.Short, settings.TrailPct, settings.TakeProfitPct),
		},
		entryPrices: map[string]decimal.Decimal{},
	}
}

// Instrument returns the cached instrument rules, loading them on first use.
func (e *Executor) Instrument(ctx context.Context) (models.InstrumentInfo, error) {
	if e.instrument != nil {
		return *e.instrument, nil
	}
	info, err := e.market.FetchInstrument(ctx, e.settings.Symbol)
	if err != nil {
		return models.InstrumentInfo{}, fmt.Errorf("load instrument %s: %w", e.settings.Symbol, err)
	}
	e.instrument = &info
	e.logger.Info("Instrument %s: qtyStep=%s tickSize=%s minNotional=%s minQty=%s",
		e.settings.Symbol, info.QtyStep, info.TickSize, info.MinNotional, info.MinQty)
	return info, nil
}

// Plan is a sized, rounded entry ready for submission.
type Plan struct {
	Side     string
	Qty      decimal.Decimal
	Limit    decimal.Decimal
	Notional decimal.Decimal
}

// PlanEntry sizes an entry: floor(balance*pct/price) to the qty step, notional guards,
// then a tick-floored limit nudged one tick passive.
func (e *Executor) PlanEntry(side string, price, balance float64, info models.InstrumentInfo) (Plan, error) {
	if price <= 0 {
		return Plan{}, ErrInvalidPrice
	}
	px := decimal.NewFromFloat(price)
	raw := decimal.NewFromFloat(balance * e.settings.OrderPercent).Div(px)
	qty := utils.FloorToStep(raw, info.QtyStep)
	if !qty.IsPositive() || qty.LessThan(info.MinQty) {
		return Plan{}, fmt.Errorf("%w: raw %s floored to %s (step %s, min %s)", ErrQtyTooSmall, raw.StringFixed(8), qty, info.QtyStep, info.MinQty)
	}
	notional := qty.Mul(px)
	if notional.LessThan(info.MinNotional) {
		return Plan{}, fmt.Errorf("%w: %s below min %s", ErrNotional, notional.StringFixed(4), info.MinNotional)
	}
	if e.settings.MaxOrderCost > 0 && notional.GreaterThan(decimal.NewFromFloat(e.settings.MaxOrderCost)) {
		return Plan{}, fmt.Errorf("%w: %s above max order cost %v", ErrNotional, notional.StringFixed(4), e.settings.MaxOrderCost)
	}
	return Plan{
		Side:     side,
		Qty:      qty,
		Limit:    utils.PassivePrice(px, info.TickSize, utils.OrderSide(side)),
		Notional: notional,
	}, nil
}

// Order places a post-only entry for side (LONG or SHORT). Skips and exchange rejections
// leave state unchanged and are returned for logging; nothing is retried.
func (e *Executor) Order(ctx context.Context, side string, price, balance float64) error {
	side = utils.NormalizeSide(side)
	if e.stops[side] == nil {
		return fmt.Errorf("unknown side %q", side)
	}
	if e.cooldown > 0 {
		return fmt.Errorf("%w (%d bars left)", ErrCooldown, e.cooldown)
	}
	if e.stops[side].Active() {
		return ErrSideActive
	}
	info, err := e.Instrument(ctx)
	if err != nil {
		metrics.IncOrder(side, "error")
		return err
	}
	plan, err := e.PlanEntry(side, price, balance, info)
	if err != nil {
		metrics.IncOrder(side, "rejected")
		return err
	}

	req := models.OrderRequest{
		Symbol:   e.settings.Symbol,
		Side:     utils.OrderSide(side),
		Qty:      plan.Qty,
		Price:    plan.Limit,
		PostOnly: true,
	}
	id, err := e.exchange.CreateLimitOrder(ctx, req)
	if err != nil {
		metrics.IncOrder(side, "error")
		return fmt.Errorf("place %s limit %s@%s: %w", side, plan.Qty, plan.Limit, err)
	}
	metrics.IncOrder(side, "placed")

	limit, _ := plan.Limit.Float64()
	e.stops[side].Activate(limit)
	e.entryPrices[side] = plan.Limit
	e.logger.Info("Entry %s placed: qty=%s limit=%s notional=%s id=%s", side, plan.Qty, plan.Limit, plan.Notional.StringFixed(2), id)
	return nil
}

// CheckTrailingStops feeds price to every active stop and closes the sides that fire.
// It runs on every bar, including while entries are blocked.
func (e *Executor) CheckTrailingStops(ctx context.Context, price float64) []Exit {
	var exits []Exit
	for _, side := range []string{constants.Long, constants.Short} {
		ts := e.stops[side]
		if !ts.Active() {
			continue
		}
		ts.UpdatePrice(price)
		reason := ts.ShouldExit(price)
		if reason == position.ExitNone {
			continue
		}
		exit, err := e.closeSide(ctx, side, reason, price)
		if err != nil {
			e.logger.Warning("Exit %s (%s) at %.4f failed: %v", side, reason, price, err)
			continue
		}
		if exit != nil {
			exits = append(exits, *exit)
		}
	}
	return exits
}

func (e *Executor) closeSide(ctx context.Context, side string, reason position.ExitReason, price float64) (*Exit, error) {
	size, err := e.positions.OpenSize(ctx, side)
	if err != nil {
		return nil, err
	}
	ts := e.stops[side]
	if !size.IsPositive() {
		e.logger.Info("Exit %s (%s): no open position on exchange; clearing trailing stop", side, reason)
		ts.Clear()
		delete(e.entryPrices, side)
		return nil, nil
	}

	req := models.OrderRequest{
		Symbol:     e.settings.Symbol,
		Side:       utils.CloseSide(side),
		Qty:        size,
		ReduceOnly: true,
	}
	if _, err := e.exchange.CreateMarketOrder(ctx, req); err != nil {
		return nil, fmt.Errorf("reduce-only close %s: %w", size, err)
	}

	entry, _ := e.entryPrices[side].Float64()
	qty, _ := size.Float64()
	pnl := position.CalculatePositionProfit(side, entry, price, qty)
	ts.Clear()
	delete(e.entryPrices, side)
	metrics.IncExit(side, string(reason))
	e.recordResult(pnl)

	e.logger.Info("Exit %s (%s): closed %s at ~%.4f, entry %.4f, pnl %.4f, loss streak %d, cooldown %d",
		side, reason, size, price, entry, pnl, e.consecutiveLosses, e.cooldown)
	return &Exit{Side: side, Reason: reason, Size: size, Price: price, PnL: pnl}, nil
}

func (e *Executor) recordResult(pnl float64) {
	if pnl > 0 {
		e.consecutiveLosses = 0
		return
	}
	e.consecutiveLosses++
	if e.consecutiveLosses >= e.settings.MaxConsecutiveLosses {
		e.cooldown = e.settings.CooldownBars
		e.consecutiveLosses = 0
		metrics.SetCooldown(e.cooldown)
		e.logger.Warning("%d consecutive losses; entries paused for %d bars", e.settings.MaxConsecutiveLosses, e.cooldown)
	}
}

// Tick advances the cooldown by one bar. Call it once per bar after entries and before
// CheckTrailingStops.
func (e *Executor) Tick() {
	if e.cooldown > 0 {
		e.cooldown--
		metrics.SetCooldown(e.cooldown)
	}
}

// Stop returns the trailing stop for side.
func (e *Executor) Stop(side string) *position.TrailingStop {
	return e.stops[utils.NormalizeSide(side)]
}

func (e *Executor) Cooldown() int          { return e.cooldown }
func (e *Executor) ConsecutiveLosses() int { return e.consecutiveLosses }

// EntryPrice returns the recorded entry for side.
func (e *Executor) EntryPrice(side string) (decimal.Decimal, bool) {
	p, ok := e.entryPrices[utils.NormalizeSide(side)]
	return p, ok
}
