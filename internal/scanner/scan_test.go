package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"trading-signalcore/config"
	"trading-signalcore/internal/logger"
	"trading-signalcore/internal/metrics"
	"trading-signalcore/internal/model"
	"trading-signalcore/internal/notification"
	"trading-signalcore/internal/portfolio"
)

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

type mapProvider map[string][]model.Bar

func (p mapProvider) GetBars(_ context.Context, symbol string, _ model.Timeframe, _, _ time.Time) ([]model.Bar, error) {
	b, ok := p[symbol]
	if !ok {
		return nil, errors.New("no data")
	}
	return b, nil
}

func trending(n int, r float64) []model.Bar {
	bars := make([]model.Bar, n)
	prev := 100.0
	for i := range bars {
		o, c := prev, prev*r
		bars[i] = model.Bar{
			TS:     t0.Add(time.Duration(i) * time.Minute),
			Open:   o,
			High:   math.Max(o, c) * 1.0005,
			Low:    math.Min(o, c) * 0.9995,
			Close:  c,
			Volume: 1000,
		}
		prev = c
	}
	return bars
}

type recorder struct {
	alerts []notification.Alert
	traces []string
}

func (r *recorder) Send(ctx context.Context, a notification.Alert) error {
	r.alerts = append(r.alerts, a)
	r.traces = append(r.traces, logger.TraceID(ctx))
	return nil
}

type fixture struct {
	svc    *Service
	alerts *recorder
	pf     *portfolio.Portfolio
	state  *portfolio.MemoryStateStore
	prom   *metrics.Metrics
}

func newFixture(t *testing.T, symbols ...string) *fixture {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Scanner.Symbols = symbols
	cfg.Scanner.UserID = "u1"

	f := &fixture{
		pf:    portfolio.New(),
		state: portfolio.NewMemoryStateStore(),
		prom:  metrics.New(prometheus.NewRegistry()),
	}
	f.pf.Deposit("u1", 10000)
	bars := mapProvider{"UP": trending(60, 1.002), "DOWN": trending(60, 0.998)}
	f.svc = NewWithDeps(cfg, Deps{Bars: bars, Accounts: f.pf, State: f.state}, nil, f.prom)
	f.svc.clock = func() time.Time { return t0.Add(time.Hour) }
	f.alerts = &recorder{}
	f.svc.notifier = f.alerts
	return f
}

func TestScanOnce_EvaluatesWatchList(t *testing.T) {
	f := newFixture(t, "UP", "DOWN", "GONE")

	rep, err := f.svc.ScanOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Results) != 3 || rep.Results[0].Symbol != "DOWN" || rep.Results[2].Symbol != "UP" {
		t.Fatalf("results = %+v", rep.Results)
	}
	if rep.Results[0].Result.Decision != model.DecisionSell || rep.Results[2].Result.Decision != model.DecisionBuy {
		t.Errorf("decisions = %s / %s", rep.Results[0].Result.Decision, rep.Results[2].Result.Decision)
	}
	if rep.Failed != 1 || rep.Results[1].Err == nil {
		t.Errorf("failed = %d, GONE = %+v", rep.Failed, rep.Results[1])
	}
	if got := testutil.ToFloat64(f.prom.ScanErrorsTotal.WithLabelValues("bars")); got != 1 {
		t.Errorf("scan errors = %v", got)
	}
	if !rep.Risk.CanTrade || len(rep.Actionable) != 2 {
		t.Errorf("risk = %+v actionable = %v", rep.Risk, rep.Actionable)
	}
	if len(f.alerts.alerts) != 2 || f.alerts.alerts[0].Symbol != "DOWN" {
		t.Errorf("alerts = %+v", f.alerts.alerts)
	}
}

func TestScanOnce_TagsCycleWithTraceID(t *testing.T) {
	f := newFixture(t, "UP")
	var buf bytes.Buffer
	f.svc.logger = slog.New(slog.NewJSONHandler(&buf, nil))

	rep, err := f.svc.ScanOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("scan-%d", t0.Add(time.Hour).UnixNano())
	if rep.TraceID != want {
		t.Errorf("trace id = %q, want %q", rep.TraceID, want)
	}
	if !strings.Contains(buf.String(), `"trace_id":"`+want+`"`) {
		t.Errorf("log lines lack the trace id:\n%s", buf.String())
	}
	if len(f.alerts.traces) != 1 || f.alerts.traces[0] != want {
		t.Errorf("alert traces = %v", f.alerts.traces)
	}
}

func TestScanOnce_RiskBlocksActions(t *testing.T) {
	f := newFixture(t, "UP")
	_ = f.state.SetCooldown(context.Background(), "u1", t0.Add(24*time.Hour))

	rep, err := f.svc.ScanOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Risk.CanTrade || !rep.Risk.CooldownActive {
		t.Errorf("risk = %+v", rep.Risk)
	}
	if len(rep.Actionable) != 0 {
		t.Errorf("actionable while blocked: %v", rep.Actionable)
	}
	if rep.Results[0].Result.Decision != model.DecisionBuy {
		t.Errorf("signal suppressed: %s", rep.Results[0].Result.Decision)
	}

	// One risk alert per blocked stretch.
	f.svc.ScanOnce(context.Background())
	if len(f.alerts.alerts) != 1 || f.alerts.alerts[0].Level != notification.AlertCritical {
		t.Errorf("alerts = %+v", f.alerts.alerts)
	}
}

func TestScanOnce_Cancelled(t *testing.T) {
	f := newFixture(t, "UP", "DOWN")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.svc.ScanOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestTick_SkipsClosedMarket(t *testing.T) {
	f := newFixture(t, "UP")
	// Saturday.
	f.svc.clock = func() time.Time { return time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC) }
	f.svc.tick(context.Background())

	if got := testutil.ToFloat64(f.prom.MarketState); got != 0 {
		t.Errorf("market open gauge = %v", got)
	}
	if got := testutil.CollectAndCount(f.prom.EvaluationsTotal); got != 0 {
		t.Errorf("evaluated %d series while closed", got)
	}

	f.svc.cfg.Scanner.AllHours = true
	f.svc.tick(context.Background())
	if got := testutil.CollectAndCount(f.prom.EvaluationsTotal); got == 0 {
		t.Error("AllHours scan did not evaluate")
	}
}
