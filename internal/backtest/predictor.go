package backtest

import (
	"math"

	"trading-signalcore/internal/indicator"
	"trading-signalcore/internal/model"
)

const (
	maFast           = 5
	maSlow           = 20
	regressionPoints = 20

	// directionStepPct is the move per bar of horizon, as a fraction of
	// price, below which a delta counts as neutral.
	directionStepPct = 0.001

	horizonDecay = 0.95
)

// Prediction is the simplified model's call for one step.
type Prediction struct {
	Price      float64
	Direction  model.Direction
	Confidence float64
}

// subPrediction is one ensemble member's output.
type subPrediction struct {
	price      float64
	confidence float64
}

// Predict forecasts the close stepsAhead bars after the last value of
// closes by averaging a moving-average crossover extrapolation and a
// linear regression over the trailing closes.
func Predict(closes []float64, stepsAhead int) Prediction {
	if len(closes) == 0 {
		return Prediction{Direction: model.DirectionNeutral}
	}
	if stepsAhead < 1 {
		stepsAhead = 1
	}
	price := closes[len(closes)-1]

	ma := crossover(closes, stepsAhead)
	lr := regression(closes, stepsAhead)

	predicted := (ma.price + lr.price) / 2
	confidence := (ma.confidence + lr.confidence) / 2 * math.Pow(horizonDecay, float64(stepsAhead-1))

	return Prediction{
		Price:      predicted,
		Direction:  direction(price, predicted, stepsAhead),
		Confidence: confidence,
	}
}

// crossover projects the gap between the fast and slow SMA forward. The
// centroids of the two windows sit (maSlow-maFast)/2 bars apart, so the gap
// over that distance is the per-bar slope.
func crossover(closes []float64, steps int) subPrediction {
	price := closes[len(closes)-1]
	fast := indicator.SMAValue(closes, maFast)
	slow := indicator.SMAValue(closes, maSlow)
	gap := fast - slow
	slope := gap / (float64(maSlow-maFast) / 2)

	confidence := 50.0
	if slow > 0 {
		confidence = math.Min(90, 50+math.Abs(gap)/slow*100*50)
	}
	return subPrediction{price: price + slope*float64(steps), confidence: confidence}
}

// regression extends a least-squares line through the trailing closes.
// Confidence grows with the fit's R².
func regression(closes []float64, steps int) subPrediction {
	tail := closes
	if len(tail) > regressionPoints {
		tail = tail[len(tail)-regressionPoints:]
	}
	fit := indicator.LinearRegression(tail)
	x := float64(len(tail) - 1 + steps)
	return subPrediction{price: fit.At(x), confidence: 40 + 50*fit.R2}
}

// direction classifies a move from price to target. Moves within
// 0.1% per bar of horizon are neutral.
func direction(price, target float64, steps int) model.Direction {
	threshold := price * directionStepPct * float64(steps)
	switch delta := target - price; {
	case delta > threshold:
		return model.DirectionUp
	case delta < -threshold:
		return model.DirectionDown
	default:
		return model.DirectionNeutral
	}
}
