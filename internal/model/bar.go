package model

import (
	"fmt"
	"time"
)

// Bar is one OHLCV bucket. Series of bars are ascending by TS with unique
// timestamps and are never mutated after construction.
type Bar struct {
	TS     time.Time `json:"ts"` // bucket start time
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// BarRecord is a bar tagged with the series it belongs to.
type BarRecord struct {
	Symbol    string
	Timeframe Timeframe
	Bar       Bar
}

// Key identifies the series, e.g. "SPY:5min".
func (r BarRecord) Key() string { return r.Symbol + ":" + string(r.Timeframe) }

// Range returns high - low.
func (b Bar) Range() float64 { return b.High - b.Low }

// Body returns |close - open|.
func (b Bar) Body() float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Bullish reports close > open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Bearish reports close < open.
func (b Bar) Bearish() bool { return b.Close < b.Open }

// Closes extracts the close prices of a series.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Timeframe is the bucket width of a bar series.
type Timeframe string

const (
	TF1Min  Timeframe = "1min"
	TF5Min  Timeframe = "5min"
	TF15Min Timeframe = "15min"
)

// Minutes returns the bucket width in minutes, or 0 for an unknown timeframe.
func (tf Timeframe) Minutes() int {
	switch tf {
	case TF1Min:
		return 1
	case TF5Min:
		return 5
	case TF15Min:
		return 15
	default:
		return 0
	}
}

// Duration returns the bucket width.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Minutes()) * time.Minute
}

// ParseTimeframe accepts "1min", "5min", "15min" as well as the short
// forms "1m", "5m", "15m".
func ParseTimeframe(s string) (Timeframe, error) {
	switch s {
	case "1min", "1m":
		return TF1Min, nil
	case "5min", "5m":
		return TF5Min, nil
	case "15min", "15m":
		return TF15Min, nil
	}
	return "", fmt.Errorf("unsupported timeframe %q (want 1min, 5min or 15min)", s)
}
