package portfolio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"trading-signalcore/internal/markethours"
	"trading-signalcore/internal/metrics"
	"trading-signalcore/internal/model"
)

const user = "u1"

// now is mid-session on a Monday in New York.
var now = time.Date(2026, 3, 2, 14, 0, 0, 0, markethours.NewYork)

type fixture struct {
	pf    *Portfolio
	state *MemoryStateStore
	rm    *RiskManager
	clock time.Time
	m     *metrics.Metrics
}

func newFixture(balance float64) *fixture {
	f := &fixture{pf: New(), state: NewMemoryStateStore(), clock: now}
	f.m = metrics.New(prometheus.NewRegistry())
	f.pf.Deposit(user, balance)
	f.rm = NewRiskManager(DefaultRiskLimits(), f.pf, f.state,
		WithClock(func() time.Time { return f.clock }),
		WithLocation(markethours.NewYork),
		WithMetrics(f.m))
	return f
}

// trade opens an auto trade at openedAt and closes it at closedAt with the
// given P&L on one share.
func (f *fixture) trade(t *testing.T, pnl float64, openedAt, closedAt time.Time) {
	t.Helper()
	p := f.pf.Open(model.Position{
		UserID: user, Symbol: "AAPL", Side: model.SideLong,
		EntryPrice: 100, Quantity: 1, IsAutoTrade: true, OpenedAt: openedAt,
	})
	if _, err := f.pf.Close(user, p.ID, 100+pnl, closedAt); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) check(t *testing.T) model.RiskStatus {
	t.Helper()
	st, err := f.rm.CheckRiskStatus(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

func TestCheckRiskStatus_CleanAccountAllowed(t *testing.T) {
	f := newFixture(10000)
	st := f.check(t)
	if !st.CanTrade || st.Reason != "" {
		t.Fatalf("status = %+v", st)
	}
	if st.StartingBalance != 10000 || st.CurrentBalance != 10000 {
		t.Errorf("balances = %v/%v", st.StartingBalance, st.CurrentBalance)
	}
	if st.MinutesSinceLastTrade != nil {
		t.Errorf("minutes since last trade = %v, want nil", *st.MinutesSinceLastTrade)
	}
	if !st.CheckedAt.Equal(now) {
		t.Errorf("checked at %v", st.CheckedAt)
	}
}

func TestCheckRiskStatus_DailyLossPctStartsCooldown(t *testing.T) {
	f := newFixture(10000)
	f.trade(t, -600, now.Add(-3*time.Hour), now.Add(-2*time.Hour))

	st := f.check(t)
	if st.CanTrade || !strings.Contains(st.Reason, "of starting balance") {
		t.Fatalf("status = %+v", st)
	}
	if st.DayLoss != 600 || st.RealizedPnL != -600 {
		t.Errorf("day loss = %v realized = %v", st.DayLoss, st.RealizedPnL)
	}
	if !st.CooldownActive || st.CooldownUntil == nil || !st.CooldownUntil.Equal(now.Add(time.Hour)) {
		t.Errorf("cooldown = %v until %v", st.CooldownActive, st.CooldownUntil)
	}
	if got := testutil.ToFloat64(f.m.RiskCooldownsStarted.WithLabelValues(ReasonDailyLossPct)); got != 1 {
		t.Errorf("cooldowns started = %v", got)
	}

	// Inside the cooldown the cooldown itself is the reason.
	f.clock = now.Add(30 * time.Minute)
	st = f.check(t)
	if st.CanTrade || st.Reason != "cooldown active for 30 more minutes" {
		t.Errorf("status = %+v", st)
	}
	if got := testutil.ToFloat64(f.m.RiskChecksTotal.WithLabelValues("blocked")); got != 2 {
		t.Errorf("blocked checks = %v", got)
	}
}

func TestCheckRiskStatus_DailyLossAbs(t *testing.T) {
	f := newFixture(100000)
	f.trade(t, -520, now.Add(-3*time.Hour), now.Add(-2*time.Hour))

	st := f.check(t)
	if st.CanTrade || !strings.HasPrefix(st.Reason, "daily loss 520.00") || !st.CooldownActive {
		t.Errorf("status = %+v", st)
	}
}

func TestCheckRiskStatus_UnrealizedCountsTowardDailyLoss(t *testing.T) {
	f := newFixture(10000)
	p := f.pf.Open(model.Position{
		UserID: user, Symbol: "AAPL", Side: model.SideShort,
		EntryPrice: 100, Quantity: 10, OpenedAt: now.Add(-time.Hour),
	})
	f.pf.UpdatePrice(p.Symbol, 160) // short loses 600

	st := f.check(t)
	if st.UnrealizedPnL != -600 || st.CanTrade {
		t.Errorf("status = %+v", st)
	}
}

func TestCheckRiskStatus_ConsecutiveLosses(t *testing.T) {
	tests := []struct {
		name    string
		pnls    []float64 // oldest first
		streak  int
		blocked bool
	}{
		{"three losses", []float64{-10, -10, -10}, 3, true},
		{"win breaks streak", []float64{-10, 5, -10, -10}, 2, false},
		{"breakeven breaks streak", []float64{-10, -10, 0}, 0, false},
		{"only newest losses count", []float64{-10, -10, -10, 20}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(100000)
			for i, pnl := range tt.pnls {
				at := now.Add(-time.Duration(len(tt.pnls)-i) * 20 * time.Minute)
				f.trade(t, pnl, at.Add(-5*time.Minute), at)
			}
			st := f.check(t)
			if st.ConsecutiveLosses != tt.streak || st.CanTrade == tt.blocked {
				t.Errorf("streak=%d canTrade=%v reason=%q", st.ConsecutiveLosses, st.CanTrade, st.Reason)
			}
		})
	}
}

func TestCheckRiskStatus_YesterdaysLossesIgnored(t *testing.T) {
	f := newFixture(100000)
	yesterday := now.Add(-24 * time.Hour)
	for i := 0; i < 3; i++ {
		f.trade(t, -100, yesterday.Add(time.Duration(i)*time.Minute), yesterday.Add(time.Duration(i+1)*time.Minute))
	}
	st := f.check(t)
	if !st.CanTrade || st.ConsecutiveLosses != 0 || st.RealizedPnL != 0 {
		t.Errorf("status = %+v", st)
	}
	if st.MinutesSinceLastTrade == nil || *st.MinutesSinceLastTrade < 24*60-5 {
		t.Errorf("minutes since last trade = %v", st.MinutesSinceLastTrade)
	}
}

func TestCheckRiskStatus_MaxOpenPositionsNoCooldown(t *testing.T) {
	f := newFixture(100000)
	for i := 0; i < 3; i++ {
		f.pf.Open(model.Position{
			UserID: user, Symbol: fmt.Sprintf("S%d", i), Side: model.SideLong,
			EntryPrice: 10, Quantity: 1, IsAutoTrade: true, OpenedAt: now.Add(-time.Hour),
		})
	}
	// Manual positions do not count.
	f.pf.Open(model.Position{UserID: user, Symbol: "M", Side: model.SideLong, EntryPrice: 10, Quantity: 1, OpenedAt: now})

	st := f.check(t)
	if st.CanTrade || st.OpenAutoPositions != 3 || st.CooldownActive {
		t.Errorf("status = %+v", st)
	}
	if _, ok, _ := f.state.Cooldown(context.Background(), user); ok {
		t.Error("open position limit must not start a cooldown")
	}
}

func TestCheckRiskStatus_TradeSpacing(t *testing.T) {
	f := newFixture(100000)
	f.trade(t, 5, now.Add(-2*time.Minute), now.Add(-time.Minute))

	st := f.check(t)
	if st.CanTrade || !strings.Contains(st.Reason, "minimum spacing") {
		t.Fatalf("status = %+v", st)
	}
	if st.MinutesSinceLastTrade == nil || *st.MinutesSinceLastTrade != 2 {
		t.Errorf("minutes since last trade = %v", st.MinutesSinceLastTrade)
	}

	f.clock = now.Add(4 * time.Minute)
	if st := f.check(t); !st.CanTrade {
		t.Errorf("after spacing: %+v", st)
	}
}

func TestCheckRiskStatus_ExpiredCooldownCleared(t *testing.T) {
	f := newFixture(10000)
	ctx := context.Background()
	_ = f.state.SetCooldown(ctx, user, now.Add(-time.Minute))

	st := f.check(t)
	if !st.CanTrade || st.CooldownActive {
		t.Errorf("status = %+v", st)
	}
	if _, ok, _ := f.state.Cooldown(ctx, user); ok {
		t.Error("expired cooldown not cleared")
	}
}

func TestCheckRiskStatus_DayStartBalanceSnapshot(t *testing.T) {
	f := newFixture(10000)
	f.check(t)

	f.pf.Deposit(user, 5000)
	f.clock = now.Add(time.Hour)
	if st := f.check(t); st.StartingBalance != 10000 || st.CurrentBalance != 15000 {
		t.Errorf("same day: start=%v current=%v", st.StartingBalance, st.CurrentBalance)
	}

	f.clock = now.Add(24 * time.Hour)
	if st := f.check(t); st.StartingBalance != 15000 {
		t.Errorf("next day: start=%v, want 15000", st.StartingBalance)
	}
}

func TestManualCooldown(t *testing.T) {
	f := newFixture(10000)
	ctx := context.Background()

	until, err := f.rm.StartCooldown(ctx, user, 15*time.Minute)
	if err != nil || !until.Equal(now.Add(15*time.Minute)) {
		t.Fatalf("until=%v err=%v", until, err)
	}
	if st := f.check(t); st.CanTrade || !st.CooldownActive {
		t.Errorf("status = %+v", st)
	}
	if err := f.rm.ClearCooldown(ctx, user); err != nil {
		t.Fatal(err)
	}
	if st := f.check(t); !st.CanTrade {
		t.Errorf("after clear: %+v", st)
	}
}

type failingAccounts struct{ model.AccountStore }

func (failingAccounts) Balance(context.Context, string) (float64, error) {
	return 0, errors.New("db down")
}

func TestCheckRiskStatus_StoreErrorPropagates(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	rm := NewRiskManager(DefaultRiskLimits(), failingAccounts{}, nil, WithMetrics(m))
	if _, err := rm.CheckRiskStatus(context.Background(), user); err == nil {
		t.Fatal("expected error")
	}
	if got := testutil.ToFloat64(m.RiskChecksTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error checks = %v", got)
	}
}

func TestCheckRiskStatus_ConcurrentUsers(t *testing.T) {
	pf := New()
	rm := NewRiskManager(DefaultRiskLimits(), pf, nil, WithClock(func() time.Time { return now }))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		uid := fmt.Sprintf("user-%d", i%3)
		pf.Deposit(uid, 1000)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rm.CheckRiskStatus(context.Background(), uid); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	n := 0
	rm.locks.Range(func(_, _ any) bool { n++; return true })
	if n != 3 {
		t.Errorf("locks = %d, want one per user (3)", n)
	}
}

func TestValidatePositionSize(t *testing.T) {
	tests := []struct {
		balance, value float64
		valid          bool
	}{
		{10000, 1000, true},
		{10000, 1000.01, false},
		{10000, 0, false},
		{0, 100, false},
	}
	for _, tt := range tests {
		got := ValidatePositionSize(tt.balance, tt.value, 10)
		if got.Valid != tt.valid || (!got.Valid && got.Reason == "") {
			t.Errorf("ValidatePositionSize(%v, %v) = %+v", tt.balance, tt.value, got)
		}
	}
}

func TestValidateConfidence(t *testing.T) {
	rm := NewRiskManager(DefaultRiskLimits(), New(), nil)
	tests := []struct {
		ai, tech float64
		valid    bool
		reason   string
	}{
		{70, 60, true, ""},
		{69.9, 90, false, "AI confidence"},
		{90, 59, false, "technical confidence"},
	}
	for _, tt := range tests {
		got := rm.ValidateConfidence(tt.ai, tt.tech)
		if got.Valid != tt.valid || !strings.Contains(got.Reason, tt.reason) {
			t.Errorf("ValidateConfidence(%v, %v) = %+v", tt.ai, tt.tech, got)
		}
	}
}
