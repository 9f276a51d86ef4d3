package backtest

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"trading-signalcore/internal/metrics"
	"trading-signalcore/internal/model"
)

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (diff %.2e)", label, got, want, math.Abs(got-want))
	}
}

// line builds n one-minute bars whose closes run start, start+step, ...
func line(n int, start, step float64) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		c := start + float64(i)*step
		bars[i] = model.Bar{TS: t0.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func testConfig() model.BacktestConfig {
	return model.BacktestConfig{
		Symbol:         "TEST",
		Start:          t0,
		End:            t0.Add(24 * time.Hour),
		LookbackPeriod: 20,
	}
}

type stubProvider struct {
	bars []model.Bar
	err  error
	tf   model.Timeframe
}

func (s *stubProvider) GetBars(_ context.Context, _ string, tf model.Timeframe, _, _ time.Time) ([]model.Bar, error) {
	s.tf = tf
	return s.bars, s.err
}

func TestNormalize_AppliesDefaults(t *testing.T) {
	cfg, err := Normalize(model.BacktestConfig{Symbol: "X", Start: t0, End: t0.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timeframe != model.TF1Min || cfg.LookbackPeriod != 50 || cfg.StepsAhead != 1 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.InitialEquity != 10000 || cfg.PositionFraction != 0.1 || cfg.PriceThresholdPct != 0.5 {
		t.Errorf("money defaults = %+v", cfg)
	}
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.BacktestConfig)
	}{
		{"no symbol", func(c *model.BacktestConfig) { c.Symbol = "" }},
		{"end before start", func(c *model.BacktestConfig) { c.End = c.Start.Add(-time.Minute) }},
		{"bad timeframe", func(c *model.BacktestConfig) { c.Timeframe = "1h" }},
		{"short lookback", func(c *model.BacktestConfig) { c.LookbackPeriod = 10 }},
		{"fraction above one", func(c *model.BacktestConfig) { c.PositionFraction = 1.5 }},
	}
	for _, tt := range tests {
		cfg := testConfig()
		tt.mutate(&cfg)
		if _, err := Normalize(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: err = %v, want ErrInvalidConfig", tt.name, err)
		}
	}
}

func TestReplay_InsufficientData(t *testing.T) {
	_, err := Replay(context.Background(), testConfig(), line(29, 100, 1))
	if !errors.Is(err, ErrInsufficientData) || !strings.Contains(err.Error(), "need at least 30") {
		t.Errorf("29 bars: err = %v", err)
	}

	cfg := testConfig()
	cfg.LookbackPeriod = 50
	_, err = Replay(context.Background(), cfg, line(40, 100, 1))
	if !errors.Is(err, ErrInsufficientData) || !strings.Contains(err.Error(), "lookback 50 + steps 1 needs 52") {
		t.Errorf("lookback 50 over 40 bars: err = %v", err)
	}
}

func TestReplay_LinearUptrend(t *testing.T) {
	bars := line(60, 100, 1)
	res, err := Replay(context.Background(), testConfig(), bars)
	if err != nil {
		t.Fatal(err)
	}

	m := res.Metrics
	if m.TotalPredictions != 39 || len(res.Trades) != 39 {
		t.Fatalf("predictions = %d, want 39", m.TotalPredictions)
	}
	if len(res.EquityCurve) != len(res.Trades)+1 {
		t.Errorf("curve = %d points", len(res.EquityCurve))
	}
	for i := 1; i < len(res.EquityCurve); i++ {
		if !res.EquityCurve[i].TS.After(res.EquityCurve[i-1].TS) {
			t.Fatalf("curve not ascending at %d", i)
		}
	}

	first := res.Trades[0]
	if first.PredictedDirection != model.DirectionUp || first.ActualDirection != model.DirectionUp {
		t.Errorf("first trade directions %s/%s", first.PredictedDirection, first.ActualDirection)
	}
	assertClose(t, "first prediction", first.PredictedPrice, 121, 1e-9)
	assertClose(t, "first confidence", first.Confidence, 90, 1e-9)

	assertClose(t, "direction accuracy", m.DirectionAccuracy, 100, 1e-9)
	assertClose(t, "price accuracy", m.PriceAccuracy, 100, 1e-9)
	assertClose(t, "max abs error", m.MaxAbsError, 0, 1e-9)
	if m.LongestWinStreak != 39 || m.LongestLossStreak != 0 || m.CurrentStreak != 39 || !m.CurrentStreakWin {
		t.Errorf("streaks = %+v", m)
	}
	if m.MaxDrawdownPct != 0 {
		t.Errorf("drawdown = %v, want 0", m.MaxDrawdownPct)
	}
	if m.TotalReturnPct <= 0 || m.FinalEquity <= 10000 || m.SharpeRatio <= 0 {
		t.Errorf("return=%v equity=%v sharpe=%v", m.TotalReturnPct, m.FinalEquity, m.SharpeRatio)
	}

	// Each step earns 10% of the bar's relative move.
	want := 10000.0
	for i := 20; i < 59; i++ {
		want *= 1 + 0.1/bars[i].Close
	}
	assertClose(t, "final equity", m.FinalEquity, want, 1e-6)
}

func TestReplay_LinearDowntrendShortsProfit(t *testing.T) {
	res, err := Replay(context.Background(), testConfig(), line(60, 200, -1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Trades[0].PredictedDirection != model.DirectionDown {
		t.Errorf("direction = %s", res.Trades[0].PredictedDirection)
	}
	if res.Metrics.FinalEquity <= 10000 {
		t.Errorf("short side lost money: %v", res.Metrics.FinalEquity)
	}
}

func TestReplay_StepsAheadDecaysConfidence(t *testing.T) {
	cfg := testConfig()
	cfg.StepsAhead = 3
	res, err := Replay(context.Background(), cfg, line(60, 100, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 37 {
		t.Fatalf("trades = %d, want 37", len(res.Trades))
	}
	first := res.Trades[0]
	assertClose(t, "prediction", first.PredictedPrice, 123, 1e-9)
	assertClose(t, "actual", first.ActualPrice, 123, 0)
	assertClose(t, "confidence", first.Confidence, 90*0.95*0.95, 1e-9)
	if !first.TargetTS.Equal(first.TS.Add(3 * time.Minute)) {
		t.Errorf("target %v, entry %v", first.TargetTS, first.TS)
	}
}

func TestReplay_FlatSeriesIsNeutral(t *testing.T) {
	res, err := Replay(context.Background(), testConfig(), line(40, 100, 0))
	if err != nil {
		t.Fatal(err)
	}
	m := res.Metrics
	for _, tr := range res.Trades {
		if tr.PredictedDirection != model.DirectionNeutral || tr.ActualDirection != model.DirectionNeutral {
			t.Fatalf("trade %+v not neutral", tr)
		}
	}
	assertClose(t, "confidence", m.AvgConfidence, 45, 1e-9)
	if m.FinalEquity != 10000 || m.SharpeRatio != 0 || m.MaxDrawdownPct != 0 || m.TotalReturnPct != 0 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestReplay_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Replay(ctx, testConfig(), line(60, 100, 1))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestReplay_Progress(t *testing.T) {
	var calls, lastDone, lastTotal int
	_, err := Replay(context.Background(), testConfig(), line(60, 100, 1), WithProgress(func(done, total int) {
		calls++
		lastDone, lastTotal = done, total
	}))
	if err != nil {
		t.Fatal(err)
	}
	if calls != 39 || lastDone != 39 || lastTotal != 39 {
		t.Errorf("progress calls=%d last=%d/%d", calls, lastDone, lastTotal)
	}
}

func TestRun_FetchesAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := &stubProvider{bars: line(60, 100, 1)}
	started := t0.Add(48 * time.Hour)

	res, err := Run(context.Background(), testConfig(), p, WithMetrics(m), WithClock(func() time.Time { return started }))
	if err != nil {
		t.Fatal(err)
	}
	if p.tf != model.TF1Min {
		t.Errorf("provider timeframe = %q, want default 1min", p.tf)
	}
	if res.ID == "" || !res.StartedAt.Equal(started) || res.BarsUsed != 60 {
		t.Errorf("result header = id %q started %v bars %d", res.ID, res.StartedAt, res.BarsUsed)
	}
	if got := testutil.ToFloat64(m.BacktestRunsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok runs = %v", got)
	}
	if got := testutil.ToFloat64(m.BacktestPredictions); got != 39 {
		t.Errorf("predictions = %v", got)
	}

	p.err = errors.New("disk gone")
	if _, err := Run(context.Background(), testConfig(), p, WithMetrics(m)); err == nil || !errors.Is(err, p.err) {
		t.Errorf("err = %v, want wrapped provider error", err)
	}
	if got := testutil.ToFloat64(m.BacktestRunsTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error runs = %v", got)
	}
}

func TestReplay_UniqueIDs(t *testing.T) {
	a, _ := Replay(context.Background(), testConfig(), line(40, 100, 1))
	b, _ := Replay(context.Background(), testConfig(), line(40, 100, 1))
	if a.ID == b.ID {
		t.Errorf("ids collide: %s", a.ID)
	}
}
