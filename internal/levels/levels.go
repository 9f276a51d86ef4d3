// Package levels locates the nearest support and resistance around the
// current price from swing points in the trailing bars.
package levels

import (
	"math"

	"trading-signalcore/internal/model"
)

const (
	// DefaultLookback is the number of trailing bars scanned.
	DefaultLookback = 50

	swingSpan     = 2     // bars compared on each side of a swing point
	touchPct      = 0.005 // a bar touches a level within 0.5%
	maxStrength   = 5
	fallbackBelow = 0.98
	fallbackAbove = 1.02
)

// Find returns the nearest support below and resistance above the last
// close. When no swing point qualifies the level falls back to
// price×0.98 (support) or price×1.02 (resistance).
func Find(bars []model.Bar, lookback int) model.SupportResistance {
	if len(bars) == 0 {
		return model.SupportResistance{}
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	window := bars
	if len(window) > lookback {
		window = window[len(window)-lookback:]
	}
	price := window[len(window)-1].Close

	lows, highs := SwingLows(window), SwingHighs(window)
	if len(lows) == 0 {
		lows = []float64{minLow(window)}
	}
	if len(highs) == 0 {
		highs = []float64{maxHigh(window)}
	}

	support := price * fallbackBelow
	if v, ok := nearestBelow(lows, price); ok {
		support = v
	}
	resistance := price * fallbackAbove
	if v, ok := nearestAbove(highs, price); ok {
		resistance = v
	}

	return model.SupportResistance{
		Support:            support,
		Resistance:         resistance,
		SupportStrength:    strength(window, support, func(b model.Bar) float64 { return b.Low }),
		ResistanceStrength: strength(window, resistance, func(b model.Bar) float64 { return b.High }),
	}
}

// SwingLows returns the lows that are strictly lower than the two bars on
// each side, oldest first.
func SwingLows(bars []model.Bar) []float64 {
	return swings(bars, func(b model.Bar) float64 { return b.Low }, func(a, b float64) bool { return a < b })
}

// SwingHighs returns the highs that are strictly higher than the two bars on
// each side, oldest first.
func SwingHighs(bars []model.Bar) []float64 {
	return swings(bars, func(b model.Bar) float64 { return b.High }, func(a, b float64) bool { return a > b })
}

func swings(bars []model.Bar, val func(model.Bar) float64, beats func(a, b float64) bool) []float64 {
	var out []float64
	for i := swingSpan; i < len(bars)-swingSpan; i++ {
		v := val(bars[i])
		ok := true
		for k := 1; k <= swingSpan && ok; k++ {
			ok = beats(v, val(bars[i-k])) && beats(v, val(bars[i+k]))
		}
		if ok {
			out = append(out, v)
		}
	}
	return out
}

func nearestBelow(levels []float64, price float64) (float64, bool) {
	best, found := 0.0, false
	for _, l := range levels {
		if l < price && (!found || l > best) {
			best, found = l, true
		}
	}
	return best, found
}

func nearestAbove(levels []float64, price float64) (float64, bool) {
	best, found := 0.0, false
	for _, l := range levels {
		if l > price && (!found || l < best) {
			best, found = l, true
		}
	}
	return best, found
}

func strength(bars []model.Bar, level float64, val func(model.Bar) float64) int {
	if level <= 0 {
		return 1
	}
	s := 1
	for _, b := range bars {
		if math.Abs(val(b)-level)/level <= touchPct {
			s++
			if s == maxStrength {
				break
			}
		}
	}
	return s
}

func minLow(bars []model.Bar) float64 {
	m := bars[0].Low
	for _, b := range bars[1:] {
		m = math.Min(m, b.Low)
	}
	return m
}

func maxHigh(bars []model.Bar) float64 {
	m := bars[0].High
	for _, b := range bars[1:] {
		m = math.Max(m, b.High)
	}
	return m
}
