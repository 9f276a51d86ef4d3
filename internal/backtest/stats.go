package backtest

import (
	"math"

	"trading-signalcore/internal/markethours"
	"trading-signalcore/internal/model"
)

// summarize derives the run's metrics from its trades and equity curve.
func summarize(trades []model.BacktestTrade, curve []model.EquityPoint, cfg model.BacktestConfig) model.BacktestMetrics {
	m := model.BacktestMetrics{
		TotalPredictions: len(trades),
		FinalEquity:      cfg.InitialEquity,
	}
	if len(curve) > 0 {
		m.FinalEquity = curve[len(curve)-1].Equity
	}
	if cfg.InitialEquity > 0 {
		m.TotalReturnPct = (m.FinalEquity - cfg.InitialEquity) / cfg.InitialEquity * 100
	}
	m.MaxDrawdownPct = maxDrawdownPct(curve)
	if len(trades) == 0 {
		return m
	}

	var priceHits int
	var sumAbs, sumPct, sumConf float64
	returns := make([]float64, len(trades))
	m.MinAbsError = math.Inf(1)
	for i, t := range trades {
		if t.DirectionMatch {
			m.CorrectDirections++
		}
		if t.PriceMatch {
			priceHits++
		}
		sumAbs += t.AbsError
		sumPct += t.PctError
		sumConf += t.Confidence
		m.MaxAbsError = math.Max(m.MaxAbsError, t.AbsError)
		m.MinAbsError = math.Min(m.MinAbsError, t.AbsError)
		returns[i] = t.Return
	}

	n := float64(len(trades))
	m.DirectionAccuracy = float64(m.CorrectDirections) / n * 100
	m.PriceAccuracy = float64(priceHits) / n * 100
	m.MeanAbsError = sumAbs / n
	m.MeanPctError = sumPct / n
	m.AvgConfidence = sumConf / n

	m.LongestWinStreak, m.LongestLossStreak, m.CurrentStreak, m.CurrentStreakWin = streaks(trades)
	m.SharpeRatio = sharpe(returns, markethours.PeriodsPerDay(cfg.Timeframe))
	return m
}

// streaks counts runs of consecutive direction hits and misses.
func streaks(trades []model.BacktestTrade) (longestWin, longestLoss, current int, currentWin bool) {
	for i, t := range trades {
		if i == 0 || t.DirectionMatch != currentWin {
			current = 0
			currentWin = t.DirectionMatch
		}
		current++
		if currentWin {
			longestWin = max(longestWin, current)
		} else {
			longestLoss = max(longestLoss, current)
		}
	}
	return longestWin, longestLoss, current, currentWin
}

// sharpe annualises mean/stdev of per-step returns. Zero variance yields 0.
func sharpe(returns []float64, periodsPerDay int) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(ss / float64(len(returns)))
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(float64(periodsPerDay*markethours.TradingDaysPerYear))
}

// maxDrawdownPct is the largest peak-to-trough fall of the curve, in %.
func maxDrawdownPct(curve []model.EquityPoint) float64 {
	var peak, worst float64
	for _, p := range curve {
		peak = math.Max(peak, p.Equity)
		if peak > 0 {
			worst = math.Max(worst, (peak-p.Equity)/peak*100)
		}
	}
	return worst
}
