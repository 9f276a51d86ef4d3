package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"trading-signalcore/internal/logger"
	"trading-signalcore/internal/model"
	"trading-signalcore/internal/notification"
	"trading-signalcore/internal/strategy"
)

// Report is the outcome of one scan cycle.
type Report struct {
	TraceID string
	At      time.Time
	Results []strategy.Response // sorted by symbol
	Risk    model.RiskStatus
	// Actionable lists symbols whose BUY/SELL decision carries a trade
	// plan and passed the risk gate.
	Actionable []string
	Failed     int
}

// ScanOnce evaluates every configured symbol and checks the configured
// user's risk status. Per-symbol fetch failures are counted, not returned.
func (svc *Service) ScanOnce(ctx context.Context) (Report, error) {
	rep := Report{At: svc.clock()}
	rep.TraceID = logger.GenerateTraceID("scan", rep.At)
	ctx = logger.WithTraceID(ctx, rep.TraceID)
	l := svc.logger.With(logger.LogWithTrace(ctx)...)
	symbols := svc.cfg.Scanner.Symbols

	in := make(chan strategy.Request, len(symbols))
	for _, sym := range symbols {
		in <- strategy.Request{Symbol: sym, Timeframe: svc.tf}
	}
	close(in)

	for resp := range svc.runner.Run(ctx, in) {
		if resp.Err != nil {
			rep.Failed++
			svc.prom.ScanError("bars")
		}
		rep.Results = append(rep.Results, resp)
	}
	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("scanner: %w", err)
	}
	sort.Slice(rep.Results, func(i, j int) bool { return rep.Results[i].Symbol < rep.Results[j].Symbol })

	status, err := svc.risk.CheckRiskStatus(ctx, svc.cfg.Scanner.UserID)
	if err != nil {
		svc.prom.ScanError("risk")
		return rep, fmt.Errorf("scanner: risk check: %w", err)
	}
	rep.Risk = status

	for _, resp := range rep.Results {
		if resp.Err != nil {
			continue
		}
		res := resp.Result
		actionable := res.Decision != model.DecisionHold && res.TradePlan != nil && status.CanTrade
		if actionable {
			rep.Actionable = append(rep.Actionable, resp.Symbol)
			svc.notify(ctx, notification.SignalAlert(resp.Symbol, resp.Timeframe, res))
		}
		l.Info("signal",
			slog.String("symbol", resp.Symbol),
			slog.String("decision", string(res.Decision)),
			slog.Float64("confidence", res.Confidence),
			slog.Float64("net_score", res.NetScore),
			slog.Int("bars", resp.BarCount),
			slog.Bool("actionable", actionable))
	}
	if !status.CanTrade {
		l.Warn("trading blocked",
			slog.String("user", status.UserID),
			slog.String("reason", status.Reason))
		// Alert once per blocked stretch.
		if !svc.blocked {
			svc.notify(ctx, notification.RiskAlert(status))
		}
	}
	svc.blocked = !status.CanTrade

	svc.health.RecordScan(rep.At, len(rep.Results))
	return rep, nil
}

func (svc *Service) notify(ctx context.Context, alert notification.Alert) {
	if svc.notifier == nil {
		return
	}
	if err := svc.notifier.Send(ctx, alert); err != nil {
		svc.prom.ScanError("notify")
		svc.logger.Warn("alert delivery failed",
			slog.String("trace_id", logger.TraceID(ctx)),
			slog.String("title", alert.Title),
			slog.String("error", err.Error()))
	}
}
