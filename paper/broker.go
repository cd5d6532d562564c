// Package paper simulates order execution for replay runs. Market data still comes from
// the public exchange endpoints; nothing private is ever called.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"breakout-retest/interfaces"
	"breakout-retest/internal/constants"
	"breakout-retest/models"
)

var ErrNoPosition = errors.New("reduce-only order with no position to reduce")

type leg struct {
	size decimal.Decimal
	avg  float64
}

// Fill records one simulated execution.
type Fill struct {
	ID         string
	Side       string
	Qty        decimal.Decimal
	Price      float64
	Fee        float64
	ReduceOnly bool
	PnL        float64
}

// Broker fills post-only limits immediately at their limit price and market orders at
// the last marked price, with a flat taker/maker fee.
type Broker struct {
	market  interfaces.MarketData
	feeRate float64

	mu      sync.Mutex
	balance float64
	price   float64
	legs    map[string]*leg
	fills   []Fill
}

var _ interfaces.Exchange = (*Broker)(nil)

// NewBroker returns a broker holding balance in the quote coin.
func NewBroker(market interfaces.MarketData, balance, feeRate float64) *Broker {
	return &Broker{market: market, balance: balance, feeRate: feeRate, legs: map[string]*leg{}}
}

func (b *Broker) FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	if b.market == nil {
		return nil, errors.New("paper broker has no market data source")
	}
	return b.market.FetchOHLCV(ctx, symbol, timeframe, limit)
}

func (b *Broker) FetchInstrument(ctx context.Context, symbol string) (models.InstrumentInfo, error) {
	if b.market == nil {
		return models.InstrumentInfo{}, errors.New("paper broker has no market data source")
	}
	return b.market.FetchInstrument(ctx, symbol)
}

// Mark sets the price market orders fill at.
func (b *Broker) Mark(price float64) {
	b.mu.Lock()
	b.price = price
	b.mu.Unlock()
}

func (b *Broker) FetchBalance(context.Context, string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance, nil
}

func (b *Broker) FetchPositions(_ context.Context, _ string) ([]models.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Position, 0, len(b.legs))
	for side, l := range b.legs {
		if l.size.IsPositive() {
			out = append(out, models.Position{Side: side, Size: l.size, AvgPrice: l.avg})
		}
	}
	return out, nil
}

func (b *Broker) CreateLimitOrder(_ context.Context, req models.OrderRequest) (string, error) {
	price, _ := req.Price.Float64()
	if price <= 0 || !req.Qty.IsPositive() {
		return "", fmt.Errorf("invalid limit order %s@%s", req.Qty, req.Price)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fill(req, price)
}

func (b *Broker) CreateMarketOrder(_ context.Context, req models.OrderRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.price <= 0 {
		return "", errors.New("paper broker has no mark price yet")
	}
	return b.fill(req, b.price)
}

func (b *Broker) fill(req models.OrderRequest, price float64) (string, error) {
	qty, _ := req.Qty.Float64()
	f := Fill{ID: uuid.NewString(), Side: req.Side, Qty: req.Qty, Price: price, ReduceOnly: req.ReduceOnly}
	f.Fee = qty * price * b.feeRate

	if req.ReduceOnly {
		held := opposite(req.Side)
		l := b.legs[held]
		if l == nil || !l.size.IsPositive() {
			return "", ErrNoPosition
		}
		closeQty := decimal.Min(l.size, req.Qty)
		cq, _ := closeQty.Float64()
		if held == constants.Buy {
			f.PnL = (price - l.avg) * cq
		} else {
			f.PnL = (l.avg - price) * cq
		}
		f.Qty = closeQty
		f.Fee = cq * price * b.feeRate
		l.size = l.size.Sub(closeQty)
		if !l.size.IsPositive() {
			delete(b.legs, held)
		}
		b.balance += f.PnL
	} else {
		l := b.legs[req.Side]
		if l == nil {
			l = &leg{}
			b.legs[req.Side] = l
		}
		oldQty, _ := l.size.Float64()
		l.avg = (l.avg*oldQty + price*qty) / (oldQty + qty)
		l.size = l.size.Add(req.Qty)
	}
	b.balance -= f.Fee
	b.fills = append(b.fills, f)
	return f.ID, nil
}

func opposite(side string) string {
	if side == constants.Buy {
		return constants.Sell
	}
	return constants.Buy
}

// Fills returns a copy of the execution history.
func (b *Broker) Fills() []Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Fill(nil), b.fills...)
}

// Close is a no-op; the market data source is owned by the caller.
func (b *Broker) Close() error { return nil }
