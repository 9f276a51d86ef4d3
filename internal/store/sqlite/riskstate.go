package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) Cooldown(ctx context.Context, userID string) (time.Time, bool, error) {
	defer s.observe(time.Now())
	var until int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM risk_cooldowns WHERE user_id = ?`, userID).Scan(&until)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite cooldown %s: %w", userID, err)
	}
	return fromNanos(until), true, nil
}

func (s *Store) SetCooldown(ctx context.Context, userID string, until time.Time) error {
	defer s.observe(time.Now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_cooldowns (user_id, until) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET until = excluded.until
	`, userID, until.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite set cooldown %s: %w", userID, err)
	}
	return nil
}

func (s *Store) ClearCooldown(ctx context.Context, userID string) error {
	defer s.observe(time.Now())
	if _, err := s.db.ExecContext(ctx, `DELETE FROM risk_cooldowns WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite clear cooldown %s: %w", userID, err)
	}
	return nil
}

func (s *Store) DayStartBalance(ctx context.Context, userID, day string) (float64, bool, error) {
	defer s.observe(time.Now())
	var bal float64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM risk_day_balances WHERE user_id = ? AND day = ?`, userID, day,
	).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite day balance %s: %w", userID, err)
	}
	return bal, true, nil
}

// SetDayStartBalance stores the snapshot and deletes the user's older days.
func (s *Store) SetDayStartBalance(ctx context.Context, userID, day string, balance float64) error {
	defer s.observe(time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM risk_day_balances WHERE user_id = ? AND day < ?`, userID, day); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prune day balances %s: %w", userID, err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO risk_day_balances (user_id, day, balance) VALUES (?, ?, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET balance = excluded.balance
	`, userID, day, balance); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite set day balance %s: %w", userID, err)
	}
	return tx.Commit()
}
