package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"trading-signalcore/internal/model"
)

func TestPortfolio_CloseBooksPnL(t *testing.T) {
	ctx := context.Background()
	pf := New()
	pf.Deposit("a", 1000)

	long := pf.Open(model.Position{UserID: "a", Symbol: "X", Side: model.SideLong, EntryPrice: 10.1, Quantity: 3, OpenedAt: now})
	short := pf.Open(model.Position{UserID: "a", Symbol: "Y", Side: model.SideShort, EntryPrice: 20, Quantity: 2, OpenedAt: now.Add(time.Minute)})
	if long.ID == "" || long.CurrentPrice != 10.1 {
		t.Fatalf("opened = %+v", long)
	}

	closed, err := pf.Close("a", long.ID, 10.2, now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	// 0.1 * 3 without float drift.
	if closed.RealizedPnL != 0.3 {
		t.Errorf("realized = %v, want 0.3", closed.RealizedPnL)
	}
	if bal, _ := pf.Balance(ctx, "a"); bal != 1000.3 {
		t.Errorf("balance = %v, want 1000.3", bal)
	}

	pf.UpdatePrice("Y", 18.5)
	open, _ := pf.OpenPositions(ctx, "a")
	if len(open) != 1 || open[0].ID != short.ID || open[0].UnrealizedPnL() != 3 {
		t.Errorf("open = %+v", open)
	}

	if _, err := pf.Close("a", long.ID, 11, now); !errors.Is(err, ErrPositionClosed) {
		t.Errorf("double close err = %v", err)
	}
	if _, err := pf.Close("a", "nope", 11, now); !errors.Is(err, ErrUnknownPosition) {
		t.Errorf("unknown close err = %v", err)
	}

	sum := pf.Summary(ctx, "a")
	if sum.RealizedPnL != 0.3 || sum.UnrealizedPnL != 3 || sum.TotalPnL != 3.3 || sum.Exposure != 40 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestPortfolio_ClosedPositionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	pf := New()
	for i := 0; i < 3; i++ {
		p := pf.Open(model.Position{UserID: "a", Symbol: "X", Side: model.SideLong, EntryPrice: 1, Quantity: 1})
		if _, err := pf.Close("a", p.ID, 1, now.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := pf.ClosedPositions(ctx, "a", now.Add(30*time.Minute))
	if len(got) != 2 || !got[0].ClosedAt.After(*got[1].ClosedAt) {
		t.Errorf("closed = %+v", got)
	}
	if bal, _ := pf.Balance(ctx, "nobody"); bal != 0 {
		t.Errorf("unknown user balance = %v", bal)
	}
}

func TestRealizedPnL_NoFloatDrift(t *testing.T) {
	ps := make([]model.Position, 10)
	for i := range ps {
		ps[i].RealizedPnL = 0.1
	}
	if got := RealizedPnL(ps); got != 1 {
		t.Errorf("sum = %v, want exactly 1", got)
	}
}

func TestMemoryStateStore_DropsOlderDays(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStateStore()
	_ = s.SetDayStartBalance(ctx, "a", "2026-03-01", 100)
	_ = s.SetDayStartBalance(ctx, "b", "2026-03-01", 50)
	_ = s.SetDayStartBalance(ctx, "a", "2026-03-02", 200)

	if _, ok, _ := s.DayStartBalance(ctx, "a", "2026-03-01"); ok {
		t.Error("old day kept")
	}
	if b, ok, _ := s.DayStartBalance(ctx, "a", "2026-03-02"); !ok || b != 200 {
		t.Errorf("today = %v %v", b, ok)
	}
	if b, ok, _ := s.DayStartBalance(ctx, "b", "2026-03-01"); !ok || b != 50 {
		t.Errorf("other user pruned: %v %v", b, ok)
	}
}
