// Package tradeplan turns a BUY or SELL decision into an execution plan:
// entry, stop-loss beyond the nearest level, and three R-multiple targets.
package tradeplan

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"trading-signalcore/internal/model"
)

const (
	// ValidFor is how long a plan stays actionable after creation.
	ValidFor = 60 * time.Minute

	immediateATR = 1.5  // price within this many ATRs of the level enters now
	pullbackFrac = 0.30 // otherwise wait for 30% of the way to the level
	stopBufATR   = 0.5  // stop sits this many ATRs beyond the level
	minRiskPct   = 0.001
	tick         = 0.0001
)

// Build returns the plan for decision at price, or nil for HOLD and for a
// non-positive price. For BUY the plan satisfies
// StopLoss < Entry <= TP1 < TP2 < TP3; SELL mirrors it.
func Build(decision model.Decision, price, atr float64, sr model.SupportResistance,
	confidence float64, reasons []model.SignalReason, now time.Time) *model.TradePlan {

	if price <= 0 {
		return nil
	}
	var dir float64
	switch decision {
	case model.DecisionBuy:
		dir = 1
	case model.DecisionSell:
		dir = -1
	default:
		return nil
	}
	if atr < 0 || math.IsNaN(atr) {
		atr = 0
	}

	// level is support for BUY, resistance for SELL.
	level := sr.Support
	if dir < 0 {
		level = sr.Resistance
	}

	dist := dir * (price - level)
	entry, signalType := price, model.SignalImmediate
	if dist > immediateATR*atr {
		entry = price - dir*pullbackFrac*dist
		signalType = model.SignalPending
	}

	stop := level - dir*stopBufATR*atr
	risk := dir * (entry - stop)
	if minRisk := price * minRiskPct; risk < minRisk {
		risk = minRisk
		stop = entry - dir*risk
	}

	entry, stop = round4(entry), round4(stop)
	if dir*(entry-stop) < tick {
		stop = round4(entry - dir*tick)
	}
	risk = math.Abs(entry - stop)

	tp1 := round4(entry + dir*risk)
	tp2 := round4(entry + dir*2*risk)
	tp3 := round4(entry + dir*3*risk)
	nudge := math.Max(0.5*risk, tick)
	if dir*(tp1-entry) < tick {
		tp1 = round4(entry + dir*tick)
	}
	if dir*(tp2-tp1) <= 0 {
		tp2 = round4(tp1 + dir*nudge)
	}
	if dir*(tp3-tp2) <= 0 {
		tp3 = round4(tp2 + dir*nudge)
	}

	reward := math.Abs(tp2 - entry)
	p := &model.TradePlan{
		Decision:        decision,
		Entry:           entry,
		StopLoss:        stop,
		TP1:             tp1,
		TP2:             tp2,
		TP3:             tp3,
		RiskRewardRatio: round1(reward / risk),
		Support:         sr.Support,
		Resistance:      sr.Resistance,
		SignalType:      signalType,
		Confidence:      confidence,
		CreatedAt:       now,
		ValidUntil:      now.Add(ValidFor),
		RiskAmount:      round4(risk),
		PotentialReward: round4(reward),
	}
	p.Analysis = analysis(p, reasons)
	return p
}

// analysis summarises the plan and the strongest reasons on its side.
func analysis(p *model.TradePlan, reasons []model.SignalReason) string {
	side := model.Bullish
	if p.Decision == model.DecisionSell {
		side = model.Bearish
	}
	var top []model.SignalReason
	for _, r := range reasons {
		if r.Signal == side {
			top = append(top, r)
		}
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Weight > top[j].Weight })
	if len(top) > 3 {
		top = top[:3]
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s entry %.4f, stop %.4f, targets %.4f / %.4f / %.4f, R:R %.1f",
		p.SignalType, p.Decision, p.Entry, p.StopLoss, p.TP1, p.TP2, p.TP3, p.RiskRewardRatio)
	if len(top) > 0 {
		parts := make([]string, len(top))
		for i, r := range top {
			parts[i] = r.Indicator + ": " + r.Description
		}
		sb.WriteString(". ")
		sb.WriteString(strings.Join(parts, "; "))
	}
	return sb.String()
}

func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }
