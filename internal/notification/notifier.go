// Package notification delivers scanner alerts (actionable signals, risk
// blocks) to external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"trading-signalcore/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Symbol  string     `json:"symbol,omitempty"`
	At      time.Time  `json:"ts"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses slog.Default.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	lvl := slog.LevelInfo
	if alert.Level != AlertInfo {
		lvl = slog.LevelWarn
	}
	n.logger.Log(ctx, lvl, "alert",
		slog.String("level", string(alert.Level)),
		slog.String("title", alert.Title),
		slog.String("symbol", alert.Symbol),
		slog.String("message", alert.Message))
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalAlert describes an actionable BUY/SELL decision.
func SignalAlert(symbol string, tf model.Timeframe, res model.SignalResult) Alert {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s on %s, confidence %.0f%%, net score %+.0f", res.Decision, symbol, tf, res.Confidence, res.NetScore)
	if p := res.TradePlan; p != nil {
		fmt.Fprintf(&b, "\nentry %.2f  stop %.2f  targets %.2f / %.2f / %.2f  R:R %.2f",
			p.Entry, p.StopLoss, p.TP1, p.TP2, p.TP3, p.RiskRewardRatio)
	}
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s %s", res.Decision, symbol),
		Message: b.String(),
		Symbol:  symbol,
		At:      res.EvaluatedAt,
	}
}

// RiskAlert describes a user being blocked from trading.
func RiskAlert(st model.RiskStatus) Alert {
	level := AlertWarning
	if st.CooldownActive {
		level = AlertCritical
	}
	return Alert{
		Level:   level,
		Title:   "Trading blocked for " + st.UserID,
		Message: fmt.Sprintf("%s (day P&L %.2f, %d consecutive losses)", st.Reason, st.DayPnL, st.ConsecutiveLosses),
		At:      st.CheckedAt,
	}
}
