package portfolio

import (
	"github.com/shopspring/decimal"

	"trading-signalcore/internal/model"
)

// RealizedPnL sums the realized P&L of positions.
func RealizedPnL(positions []model.Position) float64 {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(decimal.NewFromFloat(p.RealizedPnL))
	}
	return total.InexactFloat64()
}

// UnrealizedPnL sums mark-to-market P&L of the open positions.
func UnrealizedPnL(positions []model.Position) float64 {
	total := decimal.Zero
	for i := range positions {
		p := &positions[i]
		if !p.IsOpen() {
			continue
		}
		total = total.Add(positionPnL(p.Side, p.EntryPrice, p.CurrentPrice, p.Quantity))
	}
	return total.InexactFloat64()
}

// positionPnL is (exit - entry) * qty, negated for shorts.
func positionPnL(side model.Side, entry, exit, qty float64) decimal.Decimal {
	diff := decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry))
	if side == model.SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromFloat(qty))
}

// PnLSummary aggregates a user's P&L.
type PnLSummary struct {
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	ClosedTrades  int     `json:"closed_trades"`
	OpenPositions int     `json:"open_positions"`
	Exposure      float64 `json:"exposure"` // entry value of open positions
}

// Summarize builds a PnLSummary from open and closed positions.
func Summarize(open, closed []model.Position) PnLSummary {
	realized := decimal.NewFromFloat(RealizedPnL(closed))
	unrealized := decimal.NewFromFloat(UnrealizedPnL(open))
	exposure := decimal.Zero
	for i := range open {
		exposure = exposure.Add(decimal.NewFromFloat(open[i].EntryPrice).Mul(decimal.NewFromFloat(open[i].Quantity)))
	}
	return PnLSummary{
		RealizedPnL:   realized.InexactFloat64(),
		UnrealizedPnL: unrealized.InexactFloat64(),
		TotalPnL:      realized.Add(unrealized).InexactFloat64(),
		ClosedTrades:  len(closed),
		OpenPositions: len(open),
		Exposure:      exposure.InexactFloat64(),
	}
}
