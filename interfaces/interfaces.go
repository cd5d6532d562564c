package interfaces

import (
	"context"

	"breakout-retest/models"
)

// MarketData is the public side of the exchange.
type MarketData interface {
	FetchOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
	FetchInstrument(ctx context.Context, symbol string) (models.InstrumentInfo, error)
}

// PositionSource reports open positions for a symbol.
type PositionSource interface {
	FetchPositions(ctx context.Context, symbol string) ([]models.Position, error)
}

// Trading is the private side of the exchange used by the order executor.
type Trading interface {
	PositionSource
	FetchBalance(ctx context.Context, coin string) (float64, error)
	CreateLimitOrder(ctx context.Context, req models.OrderRequest) (string, error)
	CreateMarketOrder(ctx context.Context, req models.OrderRequest) (string, error)
}

// Exchange is the complete client the bot runs against: the Bybit REST client in live
// mode or the paper broker in replay mode.
type Exchange interface {
	MarketData
	Trading
	Close() error
}
