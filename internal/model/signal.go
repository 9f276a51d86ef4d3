package model

import "time"

// Decision is the final call of the signal fusion engine.
type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
	DecisionHold Decision = "HOLD"
)

// Bias is the direction an indicator or pattern leans.
type Bias string

const (
	Bullish Bias = "bullish"
	Bearish Bias = "bearish"
	Neutral Bias = "neutral"
)

// IndicatorSnapshot holds indicator values at the latest bar.
// It is recomputed from scratch on every evaluation.
type IndicatorSnapshot struct {
	EMAFast       float64 `json:"ema_fast"`
	EMASlow       float64 `json:"ema_slow"`
	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
	StochK        float64 `json:"stoch_k"`
	StochD        float64 `json:"stoch_d"`
	ATR           float64 `json:"atr"`
	LastPrice     float64 `json:"last_price"`
	ChangePct     float64 `json:"change_pct"` // % change over the trend lookback
}

// Pattern is a detected candlestick pattern.
type Pattern struct {
	Name        string    `json:"name"`
	Type        Bias      `json:"type"`
	Strength    int       `json:"strength"` // 1..5
	Description string    `json:"description"`
	Index       int       `json:"index"` // index of the last bar of the pattern
	TS          time.Time `json:"ts"`
}

// SupportResistance is the pair of nearest levels around the current price.
type SupportResistance struct {
	Support            float64 `json:"support"`
	Resistance         float64 `json:"resistance"`
	SupportStrength    int     `json:"support_strength"`
	ResistanceStrength int     `json:"resistance_strength"`
}

// SignalReason explains one contribution to the fused score.
type SignalReason struct {
	Indicator   string  `json:"indicator"`
	Signal      Bias    `json:"signal"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// SignalResult is the output of one evaluation. It is never persisted by
// this module.
type SignalResult struct {
	Decision     Decision          `json:"decision"`
	Confidence   float64           `json:"confidence"` // 0-100
	BullishScore float64           `json:"bullish_score"`
	BearishScore float64           `json:"bearish_score"`
	NetScore     float64           `json:"net_score"`
	Reasons      []SignalReason    `json:"reasons"`
	Indicators   IndicatorSnapshot `json:"indicators"`
	Patterns     []Pattern         `json:"patterns,omitempty"`
	Levels       SupportResistance `json:"levels"`
	BuyTarget    float64           `json:"buy_target"`
	SellTarget   float64           `json:"sell_target"`
	TradePlan    *TradePlan        `json:"trade_plan"`
	EvaluatedAt  time.Time         `json:"evaluated_at"`
}

// SignalType tells whether a plan enters now or waits for a pullback.
type SignalType string

const (
	SignalImmediate SignalType = "immediate"
	SignalPending   SignalType = "pending"
)

// TradePlan is the execution plan attached to a BUY or SELL decision.
// BUY plans satisfy StopLoss < Entry <= TP1 < TP2 < TP3; SELL plans mirror it.
type TradePlan struct {
	Decision        Decision   `json:"decision"`
	Entry           float64    `json:"entry"`
	StopLoss        float64    `json:"stop_loss"`
	TP1             float64    `json:"tp1"`
	TP2             float64    `json:"tp2"`
	TP3             float64    `json:"tp3"`
	RiskRewardRatio float64    `json:"risk_reward_ratio"`
	Support         float64    `json:"support"`
	Resistance      float64    `json:"resistance"`
	SignalType      SignalType `json:"signal_type"`
	Confidence      float64    `json:"confidence"`
	CreatedAt       time.Time  `json:"created_at"`
	ValidUntil      time.Time  `json:"valid_until"`
	RiskAmount      float64    `json:"risk_amount"`      // per unit
	PotentialReward float64    `json:"potential_reward"` // per unit, to TP2
	Analysis        string     `json:"analysis"`
}

// Expired reports whether the plan is past its validity window at t.
func (p *TradePlan) Expired(t time.Time) bool {
	return !t.Before(p.ValidUntil)
}
