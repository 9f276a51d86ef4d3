// Package indicator provides technical indicator calculations over price and
// bar series.
//
// Streaming indicators (SMA, EMA, RSI) implement the Indicator interface and
// are updated one price at a time in O(1). The series functions (EMA, RSI,
// MACD, Stochastic, ATR) are pure wrappers over them that never fail: on
// insufficient data they degrade to fixed neutral defaults instead of NaN.
package indicator

// Indicator is the interface for streaming technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds the next price and recalculates.
	Update(price float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

var (
	_ Indicator = (*SMA)(nil)
	_ Indicator = (*EMA)(nil)
	_ Indicator = (*RSI)(nil)
)

// feed runs every price through ind and returns it for chaining.
func feed(ind Indicator, prices []float64) Indicator {
	for _, p := range prices {
		ind.Update(p)
	}
	return ind
}

func last(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	return prices[len(prices)-1]
}
