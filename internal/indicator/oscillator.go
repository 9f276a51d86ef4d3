package indicator

import (
	"math"

	"trading-signalcore/internal/model"
)

// Stochastic returns %K and %D over the trailing period bars.
// %K = (close - lowestLow) / (highestHigh - lowestLow) * 100.
// %D is reported equal to %K (no 3-period smoothing).
// Both are 50 when fewer than period bars exist or the window has no range.
func Stochastic(bars []model.Bar, period int) (k, d float64) {
	if period < 1 || len(bars) < period {
		return 50, 50
	}
	window := bars[len(bars)-period:]
	hh, ll := window[0].High, window[0].Low
	for _, b := range window[1:] {
		hh = math.Max(hh, b.High)
		ll = math.Min(ll, b.Low)
	}
	if hh-ll == 0 {
		return 50, 50
	}
	k = (window[len(window)-1].Close - ll) / (hh - ll) * 100
	return k, k
}

// TrueRange of cur given the previous close.
func TrueRange(cur model.Bar, prevClose float64) float64 {
	return math.Max(cur.High-cur.Low,
		math.Max(math.Abs(cur.High-prevClose), math.Abs(cur.Low-prevClose)))
}

// ATR returns the mean true range over the last period bars (fewer when the
// series is shorter). Returns 0 with fewer than 2 bars.
func ATR(bars []model.Bar, period int) float64 {
	if len(bars) < 2 || period < 1 {
		return 0
	}
	n := period
	if n > len(bars)-1 {
		n = len(bars) - 1
	}
	sum := 0.0
	for i := len(bars) - n; i < len(bars); i++ {
		sum += TrueRange(bars[i], bars[i-1].Close)
	}
	return sum / float64(n)
}
