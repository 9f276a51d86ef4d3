package strategy

import (
	"fmt"
	"math"

	"trading-signalcore/internal/model"
)

// Category weights.
const (
	weightEMA          = 25
	weightEMANeutral   = 10
	weightRSIExtreme   = 20
	weightRSIModerate  = 10
	weightNeutral      = 5
	weightMACDStrong   = 25
	weightMACDWeak     = 15
	weightStochExtreme = 15
	weightTrend        = 15
	patternMultiplier  = 8
)

// Thresholds.
const (
	rsiOversold      = 30
	rsiOverbought    = 70
	rsiBullMomentum  = 55
	rsiBearMomentum  = 45
	stochOversold    = 20
	stochOverbought  = 80
	trendThresholdPc = 0.5

	// flatEps treats differences below this fraction of price as zero so
	// float noise on a flat series cannot tip a category.
	flatEps = 1e-9
)

// signOf returns -1, 0 or +1 for v, with |v| <= flatEps*scale counted as 0.
func signOf(v, scale float64) int {
	tol := flatEps * math.Max(math.Abs(scale), 1)
	switch {
	case v > tol:
		return 1
	case v < -tol:
		return -1
	default:
		return 0
	}
}

// scorecard accumulates weights per side. Neutral weights are reported on
// the reason but count toward neither side.
type scorecard struct {
	bull, bear float64
	reasons    []model.SignalReason
}

func (s *scorecard) add(indicator string, bias model.Bias, weight float64, desc string) {
	switch bias {
	case model.Bullish:
		s.bull += weight
	case model.Bearish:
		s.bear += weight
	}
	s.reasons = append(s.reasons, model.SignalReason{
		Indicator:   indicator,
		Signal:      bias,
		Description: desc,
		Weight:      weight,
	})
}

func scoreEMA(s *scorecard, snap model.IndicatorSnapshot) {
	switch signOf(snap.EMAFast-snap.EMASlow, snap.EMASlow) {
	case 1:
		s.add("EMA", model.Bullish, weightEMA,
			fmt.Sprintf("EMA fast %.4f above slow %.4f", snap.EMAFast, snap.EMASlow))
	case -1:
		s.add("EMA", model.Bearish, weightEMA,
			fmt.Sprintf("EMA fast %.4f below slow %.4f", snap.EMAFast, snap.EMASlow))
	default:
		s.add("EMA", model.Neutral, weightEMANeutral, "EMA fast and slow equal")
	}
}

func scoreRSI(s *scorecard, rsi float64) {
	switch {
	case rsi < rsiOversold:
		s.add("RSI", model.Bullish, weightRSIExtreme, fmt.Sprintf("RSI %.1f oversold", rsi))
	case rsi > rsiOverbought:
		s.add("RSI", model.Bearish, weightRSIExtreme, fmt.Sprintf("RSI %.1f overbought", rsi))
	case rsi >= rsiBullMomentum:
		s.add("RSI", model.Bullish, weightRSIModerate, fmt.Sprintf("RSI %.1f bullish momentum", rsi))
	case rsi <= rsiBearMomentum:
		s.add("RSI", model.Bearish, weightRSIModerate, fmt.Sprintf("RSI %.1f bearish momentum", rsi))
	default:
		s.add("RSI", model.Neutral, weightNeutral, fmt.Sprintf("RSI %.1f neutral", rsi))
	}
}

func scoreMACD(s *scorecard, snap model.IndicatorSnapshot) {
	h, line := snap.MACDHistogram, snap.MACD
	hs, ls := signOf(h, snap.LastPrice), signOf(line, snap.LastPrice)
	switch {
	case hs > 0 && ls > 0:
		s.add("MACD", model.Bullish, weightMACDStrong, fmt.Sprintf("MACD histogram %.4f positive above zero line", h))
	case hs > 0:
		s.add("MACD", model.Bullish, weightMACDWeak, fmt.Sprintf("MACD histogram %.4f positive below zero line", h))
	case hs < 0 && ls < 0:
		s.add("MACD", model.Bearish, weightMACDStrong, fmt.Sprintf("MACD histogram %.4f negative below zero line", h))
	case hs < 0:
		s.add("MACD", model.Bearish, weightMACDWeak, fmt.Sprintf("MACD histogram %.4f negative above zero line", h))
	default:
		s.add("MACD", model.Neutral, 0, "MACD flat")
	}
}

func scoreStochastic(s *scorecard, k float64) {
	switch {
	case k < stochOversold:
		s.add("Stochastic", model.Bullish, weightStochExtreme, fmt.Sprintf("%%K %.1f oversold", k))
	case k > stochOverbought:
		s.add("Stochastic", model.Bearish, weightStochExtreme, fmt.Sprintf("%%K %.1f overbought", k))
	default:
		s.add("Stochastic", model.Neutral, weightNeutral, fmt.Sprintf("%%K %.1f mid range", k))
	}
}

func scoreTrend(s *scorecard, changePct float64, lookback int) {
	switch {
	case changePct > trendThresholdPc:
		s.add("Trend", model.Bullish, weightTrend, fmt.Sprintf("price up %.2f%% over %d bars", changePct, lookback))
	case changePct < -trendThresholdPc:
		s.add("Trend", model.Bearish, weightTrend, fmt.Sprintf("price down %.2f%% over %d bars", -changePct, lookback))
	default:
		s.add("Trend", model.Neutral, weightNeutral, fmt.Sprintf("price flat (%.2f%%) over %d bars", changePct, lookback))
	}
}

// scorePatterns adds strength×8 of every pattern to its side but surfaces
// only the most recent one (patterns are ordered newest first).
func scorePatterns(s *scorecard, patterns []model.Pattern) {
	if len(patterns) == 0 {
		return
	}
	for _, p := range patterns {
		w := float64(p.Strength * patternMultiplier)
		switch p.Type {
		case model.Bullish:
			s.bull += w
		case model.Bearish:
			s.bear += w
		}
	}
	p := patterns[0]
	s.reasons = append(s.reasons, model.SignalReason{
		Indicator:   "Pattern",
		Signal:      p.Type,
		Description: p.Name + ": " + p.Description,
		Weight:      float64(p.Strength * patternMultiplier),
	})
}
