package indicator

// Standard MACD periods.
const (
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// MACDResult holds the MACD line, its signal line and their difference.
type MACDResult struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// MACD computes MACD(12,26,9) at the last index.
//
// The line series is EMA12-EMA26 evaluated at every prefix of prices from
// the 26th price onward; the signal is the EMA9 of that series, seeded with
// the simple average of its first 9 values. Both EMAs run as incremental
// states so the whole computation is O(n). With fewer than 26 prices all
// three values are 0; with fewer than 9 line values the signal equals the
// line.
func MACD(prices []float64) MACDResult {
	if len(prices) < MACDSlow {
		return MACDResult{}
	}
	fast := NewEMA(MACDFast)
	slow := NewEMA(MACDSlow)
	sig := NewEMA(MACDSignal)

	var line float64
	for _, p := range prices {
		fast.Update(p)
		slow.Update(p)
		if !slow.Ready() {
			continue
		}
		line = fast.Value() - slow.Value()
		sig.Update(line)
	}

	signal := line
	if sig.Ready() {
		signal = sig.Value()
	}
	return MACDResult{Line: line, Signal: signal, Histogram: line - signal}
}

// MACDReference computes the same values as MACD by recomputing both EMAs
// from scratch at every index. It is O(n²) and kept as an executable
// definition of the seeding rule.
func MACDReference(prices []float64) MACDResult {
	if len(prices) < MACDSlow {
		return MACDResult{}
	}
	lines := make([]float64, 0, len(prices)-MACDSlow+1)
	for i := MACDSlow; i <= len(prices); i++ {
		w := prices[:i]
		lines = append(lines, EMAValue(w, MACDFast)-EMAValue(w, MACDSlow))
	}
	line := lines[len(lines)-1]
	signal := EMAValue(lines, MACDSignal)
	return MACDResult{Line: line, Signal: signal, Histogram: line - signal}
}
