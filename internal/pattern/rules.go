package pattern

import "trading-signalcore/internal/model"

// candidate is the bar under test plus its context.
type candidate struct {
	bars  []model.Bar
	i     int
	trend Trend
}

func (c candidate) cur() model.Bar       { return c.bars[c.i] }
func (c candidate) back(n int) model.Bar { return c.bars[c.i-n] }

// outcome is what a rule reports when it fires.
type outcome struct {
	name        string
	bias        model.Bias
	strength    int
	description string
}

// rule is one row of the detection table. shape checks geometry only;
// classify applies the trend or colour gate and names the result.
type rule struct {
	family    string
	bars      int  // bars the rule looks at, ending at the candidate
	exclusive bool // single-bar group: first match wins
	shape     func(c candidate) bool
	classify  func(c candidate) (outcome, bool)
}

// rules is evaluated top to bottom; the row index is the tie-break priority.
var rules = []rule{
	{
		family:    "hammer",
		bars:      1,
		exclusive: true,
		shape: func(c candidate) bool {
			g := geometryOf(c.cur())
			return g.body < 0.40 && g.lower > 0.45 && g.upper < 0.20
		},
		classify: byTrend(map[Trend]outcome{
			TrendDown: {"Hammer", model.Bullish, 3, "long lower shadow after a decline"},
			TrendUp:   {"Hanging Man", model.Bearish, 3, "long lower shadow after an advance"},
		}),
	},
	{
		family:    "shooting-star",
		bars:      1,
		exclusive: true,
		shape: func(c candidate) bool {
			g := geometryOf(c.cur())
			return g.body < 0.40 && g.upper > 0.45 && g.lower < 0.20
		},
		classify: byTrend(map[Trend]outcome{
			TrendUp:   {"Shooting Star", model.Bearish, 3, "long upper shadow after an advance"},
			TrendDown: {"Inverted Hammer", model.Bullish, 2, "long upper shadow after a decline"},
		}),
	},
	{
		family:    "doji",
		bars:      1,
		exclusive: true,
		shape: func(c candidate) bool {
			return geometryOf(c.cur()).body < 0.15
		},
		classify: func(c candidate) (outcome, bool) {
			g := geometryOf(c.cur())
			switch {
			case g.lower > 0.60:
				return outcome{"Dragonfly Doji", model.Bullish, 2, "open and close near the high"}, true
			case g.upper > 0.60:
				return outcome{"Gravestone Doji", model.Bearish, 2, "open and close near the low"}, true
			default:
				return outcome{"Doji", model.Neutral, 1, "indecision, open equals close"}, true
			}
		},
	},
	{
		family: "engulfing",
		bars:   2,
		classify: func(c candidate) (outcome, bool) {
			prev, cur := c.back(1), c.cur()
			if cur.Body() <= prev.Body()*1.1 {
				return outcome{}, false
			}
			switch {
			case prev.Bearish() && cur.Bullish() && cur.Open <= prev.Close && cur.Close >= prev.Open:
				return outcome{"Bullish Engulfing", model.Bullish, 4, "bullish body engulfs the prior bearish body"}, true
			case prev.Bullish() && cur.Bearish() && cur.Open >= prev.Close && cur.Close <= prev.Open:
				return outcome{"Bearish Engulfing", model.Bearish, 4, "bearish body engulfs the prior bullish body"}, true
			}
			return outcome{}, false
		},
	},
	{
		family: "marubozu",
		bars:   2,
		shape: func(c candidate) bool {
			return c.cur().Body() > 2*c.back(1).Range()
		},
		classify: byColour(
			outcome{"Bullish Marubozu", model.Bullish, 3, "wide bullish body, more than twice the prior range"},
			outcome{"Bearish Marubozu", model.Bearish, 3, "wide bearish body, more than twice the prior range"},
		),
	},
	{
		family: "star",
		bars:   3,
		classify: func(c candidate) (outcome, bool) {
			a, b, cur := c.back(2), c.back(1), c.cur()
			if geometryOf(b).body >= 0.30 {
				return outcome{}, false
			}
			bTop, bBottom := bodyTop(b), bodyBottom(b)
			mid := (a.Open + a.Close) / 2
			switch {
			case a.Bearish() && cur.Bullish() && bTop <= min(a.Close, cur.Open) && cur.Close > mid:
				return outcome{"Morning Star", model.Bullish, 5, "small body gapped below, then a close above the first body's midpoint"}, true
			case a.Bullish() && cur.Bearish() && bBottom >= max(a.Close, cur.Open) && cur.Close < mid:
				return outcome{"Evening Star", model.Bearish, 5, "small body gapped above, then a close below the first body's midpoint"}, true
			}
			return outcome{}, false
		},
	},
	{
		family: "three-soldiers",
		bars:   3,
		classify: func(c candidate) (outcome, bool) {
			a, b, cur := c.back(2), c.back(1), c.cur()
			switch {
			case a.Bullish() && b.Bullish() && cur.Bullish() && a.Close < b.Close && b.Close < cur.Close:
				return outcome{"Three White Soldiers", model.Bullish, 4, "three rising bullish closes"}, true
			case a.Bearish() && b.Bearish() && cur.Bearish() && a.Close > b.Close && b.Close > cur.Close:
				return outcome{"Three Black Crows", model.Bearish, 4, "three falling bearish closes"}, true
			}
			return outcome{}, false
		},
	},
}

func byTrend(m map[Trend]outcome) func(candidate) (outcome, bool) {
	return func(c candidate) (outcome, bool) {
		o, ok := m[c.trend]
		return o, ok
	}
}

func byColour(bull, bear outcome) func(candidate) (outcome, bool) {
	return func(c candidate) (outcome, bool) {
		switch {
		case c.cur().Bullish():
			return bull, true
		case c.cur().Bearish():
			return bear, true
		}
		return outcome{}, false
	}
}

// geometry holds body and wick sizes as fractions of the bar's range.
type geometry struct {
	body, upper, lower float64
}

func geometryOf(b model.Bar) geometry {
	r := b.Range()
	if r <= 0 {
		return geometry{}
	}
	return geometry{
		body:  b.Body() / r,
		upper: (b.High - bodyTop(b)) / r,
		lower: (bodyBottom(b) - b.Low) / r,
	}
}

func bodyTop(b model.Bar) float64    { return max(b.Open, b.Close) }
func bodyBottom(b model.Bar) float64 { return min(b.Open, b.Close) }
