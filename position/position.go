package position

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"breakout-retest/interfaces"
	"breakout-retest/internal/constants"
	"breakout-retest/internal/utils"
	"breakout-retest/logging"
)

// PositionManager answers position questions from fresh exchange data.
type PositionManager struct {
	Source interfaces.PositionSource
	Symbol string
	Logger logging.LoggerInterface
}

// NewPositionManager creates a new position manager
func NewPositionManager(source interfaces.PositionSource, symbol string, logger logging.LoggerInterface) *PositionManager {
	return &PositionManager{Source: source, Symbol: symbol, Logger: logger}
}

// OpenSize fetches positions and returns the total open size on side (LONG or SHORT).
func (pm *PositionManager) OpenSize(ctx context.Context, side string) (decimal.Decimal, error) {
	positions, err := pm.Source.FetchPositions(ctx, pm.Symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch positions: %w", err)
	}
	want := utils.NormalizeSide(side)
	total := decimal.Zero
	for _, p := range positions {
		if utils.NormalizeSide(p.Side) != want || !p.Size.IsPositive() {
			continue
		}
		total = total.Add(p.Size)
	}
	if pm.Logger != nil {
		pm.Logger.Debug("Open %s size on %s: %s (%d legs reported)", want, pm.Symbol, total, len(positions))
	}
	return total, nil
}

// CalculatePositionProfit returns the quote PnL of closing qty at exitPrice, before fees.
func CalculatePositionProfit(side string, entryPrice, exitPrice, qty float64) float64 {
	if utils.NormalizeSide(side) == constants.Short {
		return (entryPrice - exitPrice) * qty
	}
	return (exitPrice - entryPrice) * qty
}
