package sqlite

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"trading-signalcore/internal/model"
)

// ImportCSV loads bars from r into the store through the batched writer.
// Rows are ts,open,high,low,close[,volume] where ts is RFC 3339 or unix
// seconds. A header row is skipped. Returns the number of committed bars.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader, symbol string, tf model.Timeframe) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	in := make(chan model.BarRecord, defaultBatchSize)
	done := make(chan int, 1)
	go func() { done <- s.Run(ctx, in) }()

	var parseErr error
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			parseErr = fmt.Errorf("csv line %d: %w", line, err)
			break
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		b, err := parseBarRow(rec)
		if err != nil {
			parseErr = fmt.Errorf("csv line %d: %w", line, err)
			break
		}
		select {
		case in <- model.BarRecord{Symbol: symbol, Timeframe: tf, Bar: b}:
		case <-ctx.Done():
			parseErr = ctx.Err()
		}
		if parseErr != nil {
			break
		}
	}
	close(in)
	return <-done, parseErr
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := parseTS(rec[0])
	return err != nil
}

func parseBarRow(rec []string) (model.Bar, error) {
	if len(rec) < 5 {
		return model.Bar{}, fmt.Errorf("want at least 5 fields, got %d", len(rec))
	}
	ts, err := parseTS(rec[0])
	if err != nil {
		return model.Bar{}, err
	}
	var vals [5]float64
	n := min(len(rec)-1, 5)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("field %d: %w", i+2, err)
		}
		vals[i] = v
	}
	return model.Bar{TS: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, nil
}

func parseTS(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
