package model

import "time"

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Position represents a tracked trading position. ClosedAt is nil while the
// position is open.
type Position struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Symbol       string     `json:"symbol"`
	Side         Side       `json:"side"`
	EntryPrice   float64    `json:"entry_price"`
	StopLoss     float64    `json:"stop_loss"`
	TakeProfit   float64    `json:"take_profit"`
	Quantity     float64    `json:"quantity"`
	CurrentPrice float64    `json:"current_price"`
	IsAutoTrade  bool       `json:"is_auto_trade"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	RealizedPnL  float64    `json:"realized_pnl"`
}

// IsOpen reports whether the position has not been closed.
func (p *Position) IsOpen() bool { return p.ClosedAt == nil }

// UnrealizedPnL computes mark-to-market profit/loss at CurrentPrice.
func (p *Position) UnrealizedPnL() float64 {
	if !p.IsOpen() {
		return 0
	}
	diff := p.CurrentPrice - p.EntryPrice
	if p.Side == SideShort {
		diff = -diff
	}
	return diff * p.Quantity
}

// Value returns the notional value at entry.
func (p *Position) Value() float64 {
	return p.EntryPrice * p.Quantity
}
