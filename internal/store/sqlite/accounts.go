package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trading-signalcore/internal/model"
)

const positionColumns = `id, user_id, symbol, side, entry_price, stop_loss, take_profit,
	quantity, current_price, is_auto_trade, opened_at, closed_at, realized_pnl`

// SetBalance records a user's balance.
func (s *Store) SetBalance(ctx context.Context, userID string, balance float64) error {
	defer s.observe(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balances (user_id, balance, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at
	`, userID, balance, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite set balance %s: %w", userID, err)
	}
	return nil
}

// Balance returns the stored balance, 0 for an unknown user.
func (s *Store) Balance(ctx context.Context, userID string) (float64, error) {
	defer s.observe(time.Now())
	var bal float64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM balances WHERE user_id = ?`, userID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite balance %s: %w", userID, err)
	}
	return bal, nil
}

// SavePosition inserts or replaces a position by ID.
func (s *Store) SavePosition(ctx context.Context, p model.Position) error {
	if p.ID == "" {
		return fmt.Errorf("sqlite save position: empty id")
	}
	defer s.observe(time.Now())
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO positions (`+positionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Symbol, string(p.Side), p.EntryPrice, p.StopLoss, p.TakeProfit,
		p.Quantity, p.CurrentPrice, p.IsAutoTrade, p.OpenedAt.UnixNano(), nullableTime(p.ClosedAt), p.RealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("sqlite save position %s: %w", p.ID, err)
	}
	return nil
}

// OpenPositions returns the user's open positions, oldest first.
func (s *Store) OpenPositions(ctx context.Context, userID string) ([]model.Position, error) {
	return s.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions
		WHERE user_id = ? AND closed_at IS NULL
		ORDER BY opened_at ASC`, userID)
}

// ClosedPositions returns positions closed at or after since, newest first.
func (s *Store) ClosedPositions(ctx context.Context, userID string, since time.Time) ([]model.Position, error) {
	return s.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions
		WHERE user_id = ? AND closed_at IS NOT NULL AND closed_at >= ?
		ORDER BY closed_at DESC`, userID, since.UnixNano())
}

func (s *Store) queryPositions(ctx context.Context, query string, args ...any) ([]model.Position, error) {
	defer s.observe(time.Now())
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query positions: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var (
			p        model.Position
			side     string
			opened   int64
			closed   sql.NullInt64
			sl, tp   sql.NullFloat64
			curPrice sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Symbol, &side, &p.EntryPrice, &sl, &tp,
			&p.Quantity, &curPrice, &p.IsAutoTrade, &opened, &closed, &p.RealizedPnL); err != nil {
			return nil, fmt.Errorf("sqlite scan position: %w", err)
		}
		p.Side = model.Side(side)
		p.StopLoss, p.TakeProfit, p.CurrentPrice = sl.Float64, tp.Float64, curPrice.Float64
		p.OpenedAt = fromNanos(opened)
		if closed.Valid {
			t := fromNanos(closed.Int64)
			p.ClosedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
