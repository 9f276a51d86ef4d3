package model

import "time"

// Direction is a predicted or realised price move.
type Direction string

const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionNeutral Direction = "neutral"
)

// Sign returns +1, -1 or 0.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionUp:
		return 1
	case DirectionDown:
		return -1
	default:
		return 0
	}
}

// BacktestConfig describes one historical replay. Zero fields take the
// default tag values.
type BacktestConfig struct {
	Symbol            string    `json:"symbol" validate:"required"`
	Start             time.Time `json:"start" validate:"required"`
	End               time.Time `json:"end" validate:"required,gtfield=Start"`
	Timeframe         Timeframe `json:"timeframe" default:"1min" validate:"oneof=1min 5min 15min"`
	LookbackPeriod    int       `json:"lookback_period" default:"50" validate:"gte=20,lte=1000"` // bars in the trailing window
	StepsAhead        int       `json:"steps_ahead" default:"1" validate:"gte=1,lte=100"`        // prediction horizon in bars
	PriceThresholdPct float64   `json:"price_threshold_pct" default:"0.5" validate:"gt=0"`       // price counts as hit within this %
	InitialEquity     float64   `json:"initial_equity" default:"10000" validate:"gt=0"`
	PositionFraction  float64   `json:"position_fraction" default:"0.1" validate:"gt=0,lte=1"` // share of equity at risk per step
}

// BacktestTrade is one replayed prediction and its outcome.
type BacktestTrade struct {
	Step               int       `json:"step"`
	TS                 time.Time `json:"ts"`        // bar the prediction was made on
	TargetTS           time.Time `json:"target_ts"` // bar the prediction was scored against
	EntryPrice         float64   `json:"entry_price"`
	PredictedPrice     float64   `json:"predicted_price"`
	PredictedDirection Direction `json:"predicted_direction"`
	ActualPrice        float64   `json:"actual_price"`
	ActualDirection    Direction `json:"actual_direction"`
	Confidence         float64   `json:"confidence"`
	AbsError           float64   `json:"abs_error"`
	PctError           float64   `json:"pct_error"`
	DirectionMatch     bool      `json:"direction_match"`
	PriceMatch         bool      `json:"price_match"`
	Return             float64   `json:"return"` // equity return of this step
	Equity             float64   `json:"equity"` // equity after this step
}

// EquityPoint is one sample of the synthetic equity curve.
type EquityPoint struct {
	TS     time.Time `json:"ts"`
	Equity float64   `json:"equity"`
}

// BacktestMetrics summarises a replay.
type BacktestMetrics struct {
	TotalPredictions  int     `json:"total_predictions"`
	CorrectDirections int     `json:"correct_directions"`
	DirectionAccuracy float64 `json:"direction_accuracy"` // %
	PriceAccuracy     float64 `json:"price_accuracy"`     // %
	MeanAbsError      float64 `json:"mean_abs_error"`
	MaxAbsError       float64 `json:"max_abs_error"`
	MinAbsError       float64 `json:"min_abs_error"`
	MeanPctError      float64 `json:"mean_pct_error"`
	AvgConfidence     float64 `json:"avg_confidence"`
	LongestWinStreak  int     `json:"longest_win_streak"`
	LongestLossStreak int     `json:"longest_loss_streak"`
	CurrentStreak     int     `json:"current_streak"`
	CurrentStreakWin  bool    `json:"current_streak_win"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`
	TotalReturnPct    float64 `json:"total_return_pct"`
	FinalEquity       float64 `json:"final_equity"`
}

// BacktestResult is the full output of a replay. EquityCurve always has
// len(Trades)+1 points in strictly ascending time.
type BacktestResult struct {
	ID          string          `json:"id"`
	Config      BacktestConfig  `json:"config"`
	Metrics     BacktestMetrics `json:"metrics"`
	Trades      []BacktestTrade `json:"trades"`
	EquityCurve []EquityPoint   `json:"equity_curve"`
	BarsUsed    int             `json:"bars_used"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`
}
