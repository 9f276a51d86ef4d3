// Package pattern detects candlestick patterns on the most recent bars of a
// series.
//
// Only bars inside a short recency window are examined. Each candidate bar
// is matched against a fixed rule table evaluated in priority order. The
// single-bar rules (hammer, shooting-star and doji geometry) are mutually
// exclusive: the first one that yields a pattern wins. The multi-bar rules
// are independent of each other and of the single-bar group.
package pattern

import (
	"sort"
	"time"

	"trading-signalcore/internal/model"
)

// Options tunes Detect.
type Options struct {
	Window        time.Duration // only bars with TS >= now-Window are candidates
	MaxResults    int
	TrendLookback int // bars used to classify the local trend
}

// DefaultOptions returns a 5 minute window, 10 results, 10 bar trend.
func DefaultOptions() Options {
	return Options{Window: 5 * time.Minute, MaxResults: 10, TrendLookback: 10}
}

// Detect returns the patterns found on the recent bars of a series, most
// recent first (ties by rule priority), deduplicated by (name, index) and
// capped at MaxResults. A zero now means the last bar's timestamp.
// Detect is pure: the same input always gives the same output.
func Detect(bars []model.Bar, now time.Time, opts Options) []model.Pattern {
	if len(bars) == 0 {
		return nil
	}
	if now.IsZero() {
		now = bars[len(bars)-1].TS
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultOptions().MaxResults
	}
	cutoff := now.Add(-opts.Window)

	type hit struct {
		p        model.Pattern
		priority int
	}
	var hits []hit
	type key struct {
		name  string
		index int
	}
	seen := make(map[key]bool)

	for i, b := range bars {
		if b.TS.Before(cutoff) || b.TS.After(now) || b.Range() <= 0 {
			continue
		}
		c := candidate{bars: bars, i: i, trend: localTrend(bars, i, opts.TrendLookback)}

		singleMatched := false
		for prio, r := range rules {
			if i+1 < r.bars {
				continue
			}
			if r.exclusive && singleMatched {
				continue
			}
			if r.shape != nil && !r.shape(c) {
				continue
			}
			out, ok := r.classify(c)
			if !ok {
				continue
			}
			if r.exclusive {
				singleMatched = true
			}
			k := key{out.name, i}
			if seen[k] {
				continue
			}
			seen[k] = true
			hits = append(hits, hit{
				p: model.Pattern{
					Name:        out.name,
					Type:        out.bias,
					Strength:    out.strength,
					Description: out.description,
					Index:       i,
					TS:          b.TS,
				},
				priority: prio,
			})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].p.Index != hits[b].p.Index {
			return hits[a].p.Index > hits[b].p.Index
		}
		return hits[a].priority < hits[b].priority
	})
	if len(hits) > opts.MaxResults {
		hits = hits[:opts.MaxResults]
	}
	out := make([]model.Pattern, len(hits))
	for k, h := range hits {
		out[k] = h.p
	}
	return out
}

// Trend is the direction of the bars preceding a candidate.
type Trend int

const (
	TrendFlat Trend = iota
	TrendUp
	TrendDown
)

func (t Trend) String() string {
	switch t {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	default:
		return "flat"
	}
}

// localTrend compares the close just before bar i with the close lookback
// bars before that. With less history it uses the oldest bar available.
func localTrend(bars []model.Bar, i, lookback int) Trend {
	if i < 2 || lookback < 1 {
		return TrendFlat
	}
	from := i - 1 - lookback
	if from < 0 {
		from = 0
	}
	prev, base := bars[i-1].Close, bars[from].Close
	switch {
	case prev > base:
		return TrendUp
	case prev < base:
		return TrendDown
	default:
		return TrendFlat
	}
}
