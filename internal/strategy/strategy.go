// Package strategy fuses indicators, candlestick patterns and support and
// resistance levels into a BUY/SELL/HOLD decision with a confidence score
// and an attached trade plan.
//
// Evaluation is stateless: every call recomputes everything from the bar
// series it is given, so one Evaluator can serve many goroutines.
package strategy

import (
	"fmt"
	"math"
	"time"

	"trading-signalcore/internal/indicator"
	"trading-signalcore/internal/levels"
	"trading-signalcore/internal/metrics"
	"trading-signalcore/internal/model"
	"trading-signalcore/internal/pattern"
	"trading-signalcore/internal/tradeplan"
)

const (
	// MinBars is the shortest series that can produce a BUY or SELL.
	MinBars = 30

	decisionThreshold = 25
	maxConfidence     = 95
)

// Options configures an Evaluator. Zero fields take the defaults.
type Options struct {
	Indicators     indicator.Config
	Patterns       pattern.Options
	LevelsLookback int
	// Clock stamps EvaluatedAt and the trade plan's validity window.
	Clock func() time.Time
}

// DefaultOptions returns the standard evaluation settings.
func DefaultOptions() Options {
	return Options{
		Indicators:     indicator.DefaultConfig(),
		Patterns:       pattern.DefaultOptions(),
		LevelsLookback: levels.DefaultLookback,
		Clock:          time.Now,
	}
}

// Evaluator scores bar series.
type Evaluator struct {
	opts    Options
	metrics *metrics.Metrics
}

// NewEvaluator creates an evaluator. m may be nil.
func NewEvaluator(opts Options, m *metrics.Metrics) *Evaluator {
	def := DefaultOptions()
	if opts.Indicators == (indicator.Config{}) {
		opts.Indicators = def.Indicators
	}
	if opts.Patterns == (pattern.Options{}) {
		opts.Patterns = def.Patterns
	}
	if opts.LevelsLookback <= 0 {
		opts.LevelsLookback = def.LevelsLookback
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	return &Evaluator{opts: opts, metrics: m}
}

var defaultEvaluator = NewEvaluator(DefaultOptions(), nil)

// Evaluate scores bars with the default options.
func Evaluate(bars []model.Bar) model.SignalResult {
	return defaultEvaluator.Evaluate(bars)
}

// Evaluate scores an ascending bar series. Fewer than MinBars bars always
// yields HOLD with zero confidence.
func (e *Evaluator) Evaluate(bars []model.Bar) model.SignalResult {
	start := time.Now()
	now := e.opts.Clock()
	res := e.evaluate(bars, now)
	e.metrics.ObserveEvaluation(string(res.Decision), time.Since(start))
	return res
}

func (e *Evaluator) evaluate(bars []model.Bar, now time.Time) model.SignalResult {
	snap := indicator.Snapshot(bars, e.opts.Indicators)

	if len(bars) < MinBars {
		return model.SignalResult{
			Decision:   model.DecisionHold,
			Confidence: 0,
			Reasons: []model.SignalReason{{
				Indicator:   "Data",
				Signal:      model.Neutral,
				Description: fmt.Sprintf("insufficient data: %d bars, need %d", len(bars), MinBars),
			}},
			Indicators:  snap,
			EvaluatedAt: now,
		}
	}

	// The pattern window ends at the last bar's open, not at now. On 15min
	// bars the newest bar always opened more than the window ago.
	patterns := pattern.Detect(bars, time.Time{}, e.opts.Patterns)
	sr := levels.Find(bars, e.opts.LevelsLookback)

	var s scorecard
	scoreEMA(&s, snap)
	scoreRSI(&s, snap.RSI)
	scoreMACD(&s, snap)
	scoreStochastic(&s, snap.StochK)
	scoreTrend(&s, snap.ChangePct, e.opts.Indicators.ChangeLookback)
	scorePatterns(&s, patterns)

	net := s.bull - s.bear
	confidence := 0.0
	if total := s.bull + s.bear; total > 0 {
		confidence = math.Min(math.Abs(net)/total*100, maxConfidence)
	}

	decision := model.DecisionHold
	switch {
	case net > decisionThreshold:
		decision = model.DecisionBuy
	case net < -decisionThreshold:
		decision = model.DecisionSell
	}

	return model.SignalResult{
		Decision:     decision,
		Confidence:   confidence,
		BullishScore: s.bull,
		BearishScore: s.bear,
		NetScore:     net,
		Reasons:      s.reasons,
		Indicators:   snap,
		Patterns:     patterns,
		Levels:       sr,
		BuyTarget:    sr.Support,
		SellTarget:   sr.Resistance,
		TradePlan:    tradeplan.Build(decision, snap.LastPrice, snap.ATR, sr, confidence, s.reasons, now),
		EvaluatedAt:  now,
	}
}
