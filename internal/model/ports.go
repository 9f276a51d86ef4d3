package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple business logic from concrete storage implementations
// (SQLite, Redis, memory). Each implementation satisfies one or more of them.

// BarProvider reads already-persisted bar history.
type BarProvider interface {
	// GetBars returns bars with start <= TS < end, ascending by TS.
	GetBars(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]Bar, error)
}

// AccountStore supplies account and position snapshots.
type AccountStore interface {
	// Balance returns the current account balance for a user.
	Balance(ctx context.Context, userID string) (float64, error)

	// OpenPositions returns every open position of a user.
	OpenPositions(ctx context.Context, userID string) ([]Position, error)

	// ClosedPositions returns positions closed at or after since,
	// newest first.
	ClosedPositions(ctx context.Context, userID string, since time.Time) ([]Position, error)
}

// RiskStateStore persists the small per-user state of the risk manager.
// Implementations must be safe for concurrent use.
type RiskStateStore interface {
	// Cooldown returns the cooldown end time, or ok=false when none is stored.
	Cooldown(ctx context.Context, userID string) (until time.Time, ok bool, err error)
	SetCooldown(ctx context.Context, userID string, until time.Time) error
	ClearCooldown(ctx context.Context, userID string) error

	// DayStartBalance returns the balance snapshot taken on the first check
	// of day (formatted YYYY-MM-DD in the risk manager's location).
	DayStartBalance(ctx context.Context, userID, day string) (balance float64, ok bool, err error)
	SetDayStartBalance(ctx context.Context, userID, day string, balance float64) error
}
