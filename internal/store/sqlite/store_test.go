package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trading-signalcore/internal/model"
	"trading-signalcore/internal/portfolio"
)

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "core.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func minuteBars(n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = model.Bar{TS: t0.Add(time.Duration(i) * time.Minute), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 10}
	}
	return bars
}

func TestStore_BarsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	if err := s.SaveBars(ctx, "AAPL", model.TF1Min, minuteBars(10)); err != nil {
		t.Fatal(err)
	}
	// Re-saving the same timestamps replaces rather than duplicates.
	if err := s.SaveBars(ctx, "AAPL", model.TF1Min, minuteBars(10)[5:]); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetBars(ctx, "AAPL", model.TF1Min, t0.Add(2*time.Minute), t0.Add(7*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("bars = %d, want 5 (end exclusive)", len(got))
	}
	if !got[0].TS.Equal(t0.Add(2*time.Minute)) || got[0].Close != 102 || got[0].Volume != 10 {
		t.Errorf("first = %+v", got[0])
	}
	for i := 1; i < len(got); i++ {
		if !got[i].TS.After(got[i-1].TS) {
			t.Fatalf("not ascending at %d", i)
		}
	}

	other, _ := s.GetBars(ctx, "AAPL", model.TF5Min, t0, t0.Add(time.Hour))
	if len(other) != 0 {
		t.Errorf("timeframes leak: %d bars", len(other))
	}

	first, last, ok, err := s.BarRange(ctx, "AAPL", model.TF1Min)
	if err != nil || !ok || !first.Equal(t0) || !last.Equal(t0.Add(9*time.Minute)) {
		t.Errorf("range = %v %v %v %v", first, last, ok, err)
	}
	if _, _, ok, _ := s.BarRange(ctx, "MSFT", model.TF1Min); ok {
		t.Error("empty series reported a range")
	}
}

func TestStore_RunBatchesUntilClosed(t *testing.T) {
	s := openTest(t)
	in := make(chan model.BarRecord)
	done := make(chan int)
	go func() { done <- s.Run(context.Background(), in) }()

	for _, b := range minuteBars(250) {
		in <- model.BarRecord{Symbol: "SPY", Timeframe: model.TF1Min, Bar: b}
	}
	close(in)

	if n := <-done; n != 250 {
		t.Errorf("committed = %d, want 250", n)
	}
	syms, err := s.Symbols(context.Background(), model.TF1Min)
	if err != nil || len(syms) != 1 || syms[0] != "SPY" {
		t.Errorf("symbols = %v %v", syms, err)
	}
}

func TestStore_Positions(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	if bal, err := s.Balance(ctx, "u1"); err != nil || bal != 0 {
		t.Errorf("unknown balance = %v %v", bal, err)
	}
	if err := s.SetBalance(ctx, "u1", 5000); err != nil {
		t.Fatal(err)
	}
	if bal, _ := s.Balance(ctx, "u1"); bal != 5000 {
		t.Errorf("balance = %v", bal)
	}

	closedAt := t0.Add(time.Hour)
	positions := []model.Position{
		{ID: "p1", UserID: "u1", Symbol: "X", Side: model.SideLong, EntryPrice: 10, Quantity: 1, IsAutoTrade: true, OpenedAt: t0},
		{ID: "p2", UserID: "u1", Symbol: "Y", Side: model.SideShort, EntryPrice: 20, Quantity: 2, OpenedAt: t0.Add(time.Minute), ClosedAt: &closedAt, RealizedPnL: -4},
		{ID: "p3", UserID: "u2", Symbol: "Z", Side: model.SideLong, EntryPrice: 5, Quantity: 1, OpenedAt: t0},
	}
	for _, p := range positions {
		if err := s.SavePosition(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	open, err := s.OpenPositions(ctx, "u1")
	if err != nil || len(open) != 1 || open[0].ID != "p1" || !open[0].IsAutoTrade || !open[0].OpenedAt.Equal(t0) {
		t.Fatalf("open = %+v %v", open, err)
	}

	closed, _ := s.ClosedPositions(ctx, "u1", t0)
	if len(closed) != 1 || closed[0].Side != model.SideShort || closed[0].RealizedPnL != -4 || !closed[0].ClosedAt.Equal(closedAt) {
		t.Errorf("closed = %+v", closed)
	}
	if later, _ := s.ClosedPositions(ctx, "u1", closedAt.Add(time.Second)); len(later) != 0 {
		t.Errorf("since filter ignored: %+v", later)
	}

	// Closing an open position moves it between the two views.
	p := open[0]
	at := t0.Add(2 * time.Hour)
	p.ClosedAt = &at
	if err := s.SavePosition(ctx, p); err != nil {
		t.Fatal(err)
	}
	if open, _ := s.OpenPositions(ctx, "u1"); len(open) != 0 {
		t.Errorf("still open: %+v", open)
	}
	if closed, _ := s.ClosedPositions(ctx, "u1", t0); len(closed) != 2 || closed[0].ID != "p1" {
		t.Errorf("newest first violated: %+v", closed)
	}
}

func TestStore_RiskState(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	if _, ok, err := s.Cooldown(ctx, "u1"); ok || err != nil {
		t.Errorf("empty cooldown = %v %v", ok, err)
	}
	until := t0.Add(time.Hour)
	if err := s.SetCooldown(ctx, "u1", until); err != nil {
		t.Fatal(err)
	}
	if got, ok, _ := s.Cooldown(ctx, "u1"); !ok || !got.Equal(until) {
		t.Errorf("cooldown = %v %v", got, ok)
	}
	if err := s.ClearCooldown(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Cooldown(ctx, "u1"); ok {
		t.Error("cooldown not cleared")
	}

	_ = s.SetDayStartBalance(ctx, "u1", "2026-03-01", 900)
	_ = s.SetDayStartBalance(ctx, "u1", "2026-03-02", 1000)
	if _, ok, _ := s.DayStartBalance(ctx, "u1", "2026-03-01"); ok {
		t.Error("older day kept")
	}
	if b, ok, _ := s.DayStartBalance(ctx, "u1", "2026-03-02"); !ok || b != 1000 {
		t.Errorf("day balance = %v %v", b, ok)
	}
}

func TestStore_BacksRiskManager(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	_ = s.SetBalance(ctx, "u1", 10000)
	for i := 0; i < 3; i++ {
		opened := now.Add(-time.Duration(60-i*10) * time.Minute)
		closed := opened.Add(5 * time.Minute)
		_ = s.SavePosition(ctx, model.Position{
			ID: string(rune('a' + i)), UserID: "u1", Symbol: "X", Side: model.SideLong,
			EntryPrice: 10, Quantity: 1, IsAutoTrade: true,
			OpenedAt: opened, ClosedAt: &closed, RealizedPnL: -1,
		})
	}

	rm := portfolio.NewRiskManager(portfolio.DefaultRiskLimits(), s, s,
		portfolio.WithClock(func() time.Time { return now }),
		portfolio.WithLocation(time.UTC))

	st, err := rm.CheckRiskStatus(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if st.CanTrade || st.ConsecutiveLosses != 3 {
		t.Errorf("status = %+v", st)
	}
	if _, ok, _ := s.Cooldown(ctx, "u1"); !ok {
		t.Error("cooldown not persisted")
	}
	if b, ok, _ := s.DayStartBalance(ctx, "u1", "2026-03-02"); !ok || b != 10000 {
		t.Errorf("day start = %v %v", b, ok)
	}
}

func TestStore_ImportCSV(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	data := `ts,open,high,low,close,volume
2026-03-02T14:30:00Z,100,101,99,100.5,1200
1772461860,100.5,102,100,101.5
`
	n, err := s.ImportCSV(ctx, strings.NewReader(data), "SPY", model.TF1Min)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("imported = %d, want 2", n)
	}
	bars, _ := s.GetBars(ctx, "SPY", model.TF1Min, t0, t0.Add(time.Hour))
	if len(bars) != 2 || bars[0].Volume != 1200 || bars[1].Close != 101.5 || !bars[1].TS.Equal(t0.Add(time.Minute)) {
		t.Errorf("bars = %+v", bars)
	}

	if _, err := s.ImportCSV(ctx, strings.NewReader("2026-03-02T14:30:00Z,1,2\n"), "SPY", model.TF1Min); err == nil {
		t.Error("short row accepted")
	}
}
