package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"trading-signalcore/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// SaveBars upserts bars of one series in a single transaction.
func (s *Store) SaveBars(ctx context.Context, symbol string, tf model.Timeframe, bars []model.Bar) error {
	recs := make([]model.BarRecord, len(bars))
	for i, b := range bars {
		recs[i] = model.BarRecord{Symbol: symbol, Timeframe: tf, Bar: b}
	}
	return s.insertBatch(ctx, recs)
}

// insertBatch upserts records in a single transaction.
func (s *Store) insertBatch(ctx context.Context, recs []model.BarRecord) error {
	defer s.observe(time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare bars: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		b := r.Bar
		if _, err := stmt.ExecContext(ctx, r.Symbol, string(r.Timeframe), b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar %s %s: %w", r.Symbol, b.TS.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

// Run reads records from in and inserts them in batched transactions.
// Flushes every batch of defaultBatchSize records OR every flushDelay,
// whichever first. Blocks until ctx is cancelled or in is closed and
// returns how many records were committed.
func (s *Store) Run(ctx context.Context, in <-chan model.BarRecord) int {
	batch := make([]model.BarRecord, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	committed := 0
	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		// A cancelled ctx must not lose the final batch.
		if err := s.insertBatch(context.WithoutCancel(ctx), batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			committed += len(batch)
			log.Printf("[sqlite] committed %d bars in %v", len(batch), time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return committed

		case rec, ok := <-in:
			if !ok {
				flush()
				return committed
			}
			batch = append(batch, rec)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// GetBars implements model.BarProvider: bars with start <= TS < end,
// ascending.
func (s *Store) GetBars(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) ([]model.Bar, error) {
	defer s.observe(time.Now())
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND tf = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, symbol, string(tf), start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var ts int64
		var vol sql.NullFloat64
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(ts, 0).UTC()
		b.Volume = vol.Float64
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// BarRange returns the first and last stored timestamps of a series.
// ok is false when the series is empty.
func (s *Store) BarRange(ctx context.Context, symbol string, tf model.Timeframe) (first, last time.Time, ok bool, err error) {
	defer s.observe(time.Now())
	var lo, hi sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT MIN(ts), MAX(ts) FROM bars WHERE symbol = ? AND tf = ?`,
		symbol, string(tf),
	).Scan(&lo, &hi)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("sqlite bar range: %w", err)
	}
	if !lo.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return time.Unix(lo.Int64, 0).UTC(), time.Unix(hi.Int64, 0).UTC(), true, nil
}

// Symbols lists the symbols that have bars in tf.
func (s *Store) Symbols(ctx context.Context, tf model.Timeframe) ([]string, error) {
	defer s.observe(time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars WHERE tf = ? ORDER BY symbol`, string(tf))
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}
