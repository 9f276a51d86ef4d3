package levels

import (
	"math"
	"testing"

	"trading-signalcore/internal/model"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f", label, got, want)
	}
}

// bar with a 1.0 wide range centred on mid.
func bar(mid float64) model.Bar {
	return model.Bar{Open: mid, High: mid + 0.5, Low: mid - 0.5, Close: mid}
}

func barsAt(mids ...float64) []model.Bar {
	out := make([]model.Bar, len(mids))
	for i, m := range mids {
		out[i] = bar(m)
	}
	return out
}

func TestSwingPoints(t *testing.T) {
	bars := barsAt(100, 99, 97, 99, 100, 103, 105, 103, 101, 102)
	lows := SwingLows(bars)
	if len(lows) != 1 || lows[0] != 96.5 {
		t.Errorf("SwingLows = %v, want [96.5]", lows)
	}
	highs := SwingHighs(bars)
	if len(highs) != 1 || highs[0] != 105.5 {
		t.Errorf("SwingHighs = %v, want [105.5]", highs)
	}
}

func TestSwingPoints_EqualNeighbourIsNotSwing(t *testing.T) {
	bars := barsAt(100, 99, 97, 97, 99, 100)
	if lows := SwingLows(bars); len(lows) != 0 {
		t.Errorf("SwingLows = %v, want none (strict comparison)", lows)
	}
}

func TestFind_NearestSwingLevels(t *testing.T) {
	// Two swing lows and two swing highs; the ones nearest the final price win.
	bars := barsAt(100, 98, 95, 98, 100, 102, 104, 102, 99, 98, 97.5, 99, 101, 103, 106, 104, 103, 102)
	sr := Find(bars, 50)
	assertClose(t, "support", sr.Support, 97, 1e-9)
	assertClose(t, "resistance", sr.Resistance, 104.5, 1e-9)
	if sr.Support >= bars[len(bars)-1].Close || sr.Resistance <= bars[len(bars)-1].Close {
		t.Errorf("levels do not bracket price: %+v", sr)
	}
}

func TestFind_FallbackToWindowExtremes(t *testing.T) {
	mids := make([]float64, 30)
	for i := range mids {
		mids[i] = 100 + float64(i)
	}
	bars := barsAt(mids...)
	bars[len(bars)-1].Close = 128.8 // inside the last bar, below its high
	sr := Find(bars, 50)
	assertClose(t, "support = window min low", sr.Support, 99.5, 1e-9)
	assertClose(t, "resistance = window max high", sr.Resistance, 129.5, 1e-9)
}

func TestFind_PercentFallback(t *testing.T) {
	// Price above every high: no resistance candidate at all.
	bars := barsAt(100, 100, 100, 100, 100)
	bars[4].Close = 101
	sr := Find(bars, 50)
	assertClose(t, "resistance", sr.Resistance, 101*1.02, 1e-9)
	assertClose(t, "support", sr.Support, 99.5, 1e-9)
}

func TestFind_LookbackLimitsWindow(t *testing.T) {
	bars := barsAt(50, 200, 100, 100, 100, 100, 100, 100)
	sr := Find(bars, 5)
	assertClose(t, "support", sr.Support, 99.5, 1e-9)
	assertClose(t, "resistance", sr.Resistance, 100.5, 1e-9)
}

func TestFind_StrengthCountsTouchesAndCaps(t *testing.T) {
	// All five bars have the same low: 1 + 5 touches capped at 5.
	bars := barsAt(100, 100, 100, 100, 100)
	bars[4].Close = 100.2
	sr := Find(bars, 50)
	if sr.SupportStrength != 5 {
		t.Errorf("SupportStrength = %d, want 5", sr.SupportStrength)
	}

	// One touch only.
	bars = barsAt(100, 110, 120, 130, 140)
	sr = Find(bars, 50)
	if sr.SupportStrength != 2 {
		t.Errorf("SupportStrength = %d, want 2", sr.SupportStrength)
	}
}

func TestFind_Empty(t *testing.T) {
	if sr := Find(nil, 50); sr != (model.SupportResistance{}) {
		t.Errorf("Find(nil) = %+v", sr)
	}
}
