package model

import "time"

// RiskStatus is the outcome of one risk check. Violations are data:
// CanTrade=false with a Reason, never an error.
type RiskStatus struct {
	UserID                string     `json:"user_id"`
	CanTrade              bool       `json:"can_trade"`
	Reason                string     `json:"reason,omitempty"`
	DayPnL                float64    `json:"day_pnl"`
	DayLoss               float64    `json:"day_loss"`     // positive when losing
	DayLossPct            float64    `json:"day_loss_pct"` // of starting balance
	RealizedPnL           float64    `json:"realized_pnl"`
	UnrealizedPnL         float64    `json:"unrealized_pnl"`
	ConsecutiveLosses     int        `json:"consecutive_losses"`
	OpenAutoPositions     int        `json:"open_auto_positions"`
	CooldownActive        bool       `json:"cooldown_active"`
	CooldownUntil         *time.Time `json:"cooldown_until,omitempty"`
	MinutesSinceLastTrade *float64   `json:"minutes_since_last_trade,omitempty"` // nil when no auto trade yet
	CurrentBalance        float64    `json:"current_balance"`
	StartingBalance       float64    `json:"starting_balance"`
	CheckedAt             time.Time  `json:"checked_at"`
}

// ValidationResult is returned by the stateless risk validators.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}
