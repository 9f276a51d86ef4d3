package indicator

import "trading-signalcore/internal/model"

// Config holds the periods used to build an IndicatorSnapshot.
type Config struct {
	EMAFast        int
	EMASlow        int
	RSIPeriod      int
	StochPeriod    int
	ATRPeriod      int
	ChangeLookback int // bars used for ChangePct
}

// DefaultConfig returns the standard periods.
func DefaultConfig() Config {
	return Config{
		EMAFast:        12,
		EMASlow:        26,
		RSIPeriod:      14,
		StochPeriod:    14,
		ATRPeriod:      14,
		ChangeLookback: 10,
	}
}

// Snapshot computes every indicator at the last bar. Nothing is carried
// between calls.
func Snapshot(bars []model.Bar, cfg Config) model.IndicatorSnapshot {
	closes := model.Closes(bars)
	macd := MACD(closes)
	k, d := Stochastic(bars, cfg.StochPeriod)

	return model.IndicatorSnapshot{
		EMAFast:       EMAValue(closes, cfg.EMAFast),
		EMASlow:       EMAValue(closes, cfg.EMASlow),
		RSI:           RSIValue(closes, cfg.RSIPeriod),
		MACD:          macd.Line,
		MACDSignal:    macd.Signal,
		MACDHistogram: macd.Histogram,
		StochK:        k,
		StochD:        d,
		ATR:           ATR(bars, cfg.ATRPeriod),
		LastPrice:     last(closes),
		ChangePct:     ChangePct(closes, cfg.ChangeLookback),
	}
}

// ChangePct returns the percent change of the last price versus the price
// lookback bars earlier, or 0 when the series is too short.
func ChangePct(prices []float64, lookback int) float64 {
	n := len(prices)
	if lookback < 1 || n <= lookback {
		return 0
	}
	base := prices[n-1-lookback]
	if base == 0 {
		return 0
	}
	return (prices[n-1] - base) / base * 100
}
