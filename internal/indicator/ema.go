package indicator

// EMA calculates Exponential Moving Average.
// O(1) per update, no window storage.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(price float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	// EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// EMAValue returns the EMA of prices at the last index. With fewer than
// period prices it returns the last price (0 for an empty slice).
func EMAValue(prices []float64, period int) float64 {
	if len(prices) < period || period < 1 {
		return last(prices)
	}
	return feed(NewEMA(period), prices).Value()
}

// EMASeries returns the EMA at every index from period-1 onward, so
// out[0] is the SMA seed and len(out) == len(prices)-period+1.
// Returns nil when there are fewer than period prices.
func EMASeries(prices []float64, period int) []float64 {
	if len(prices) < period || period < 1 {
		return nil
	}
	e := NewEMA(period)
	out := make([]float64, 0, len(prices)-period+1)
	for _, p := range prices {
		e.Update(p)
		if e.Ready() {
			out = append(out, e.Value())
		}
	}
	return out
}
