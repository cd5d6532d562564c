package models

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a confirmed OHLCV bar. OpenTime is the bar start in Unix milliseconds.
type Candle struct {
	OpenTime int64   `json:"start_at_ms"`
	Open     float64 `json:"o"`
	High     float64 `json:"h"`
	Low      float64 `json:"l"`
	Close    float64 `json:"c"`
	Volume   float64 `json:"v"`
}

// Time returns the candle start in UTC.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// InstrumentInfo holds instrument metadata
type InstrumentInfo struct {
	MinNotional decimal.Decimal
	MinQty      decimal.Decimal
	QtyStep     decimal.Decimal
	TickSize    decimal.Decimal
}

// Position is one open position leg as reported by the exchange.
type Position struct {
	Side     string // Buy or Sell
	Size     decimal.Decimal
	AvgPrice float64
}

// OrderRequest describes a single order submission.
type OrderRequest struct {
	Symbol     string
	Side       string // Buy or Sell
	Qty        decimal.Decimal
	Price      decimal.Decimal // ignored for market orders
	PostOnly   bool
	ReduceOnly bool
}

// Signal is the strategy output for one bar.
type Signal struct {
	Long  bool
	Short bool
}

// ClosedPnL is one closed position reported by the exchange.
type ClosedPnL struct {
	Symbol    string
	Side      string
	Qty       decimal.Decimal
	Entry     float64
	Exit      float64
	PnL       float64
	UpdatedAt time.Time
}

// IndicatorSnapshot holds the latest indicator values for status reporting.
type IndicatorSnapshot struct {
	Time     time.Time `json:"time"`
	Close    float64   `json:"close"`
	EMA1h    float64   `json:"ema1h"`
	EMA60    float64   `json:"ema60"`
	EMA163   float64   `json:"ema163"`
	RSIDaily float64   `json:"rsiDaily"`
	ATR1h    float64   `json:"atr1h"`
}

// SignalSnapshot holds the latest emitted signal for status reporting.
type SignalSnapshot struct {
	Time       time.Time `json:"time"`
	Direction  string    `json:"direction"`
	ClosePrice float64   `json:"closePrice"`
}

// BreakoutSnapshot reports the pending breakout, if any.
type BreakoutSnapshot struct {
	OpenTime  *time.Time `json:"openTime,omitempty"`
	Retested  bool       `json:"retested"`
	BarsSince int        `json:"barsSince"`
}

// TrailingSnapshot reports one side's trailing stop.
type TrailingSnapshot struct {
	Side    string  `json:"side"`
	Active  bool    `json:"active"`
	Entry   float64 `json:"entry,omitempty"`
	Extreme float64 `json:"extreme,omitempty"`
}

// RiskSnapshot reports executor and drawdown state.
type RiskSnapshot struct {
	StartBalance      float64 `json:"startBalance"`
	Balance           float64 `json:"balance"`
	Stopped           bool    `json:"stopped"`
	ConsecutiveLosses int     `json:"consecutiveLosses"`
	CooldownBars      int     `json:"cooldownBars"`
}

// State is the status view shared between the bar loop (writer) and the status server (reader).
type State struct {
	StatusLock     sync.RWMutex
	LastBar        Candle
	LastIndicators IndicatorSnapshot
	LastSignal     SignalSnapshot
	Breakout       BreakoutSnapshot
	Trailing       []TrailingSnapshot
	Risk           RiskSnapshot

	BarSeq atomic.Uint64
}
