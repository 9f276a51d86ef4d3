package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"trading-signalcore/internal/markethours"
	"trading-signalcore/internal/metrics"
	"trading-signalcore/internal/model"
)

// RiskLimits defines configurable risk management thresholds.
type RiskLimits struct {
	MaxDailyLossPct         float64 `yaml:"max_daily_loss_pct" json:"max_daily_loss_pct" default:"5" validate:"gt=0,lte=100"`
	MaxDailyLossAbs         float64 `yaml:"max_daily_loss_abs" json:"max_daily_loss_abs" default:"500" validate:"gt=0"`
	MaxConsecutiveLosses    int     `yaml:"max_consecutive_losses" json:"max_consecutive_losses" default:"3" validate:"gte=1"`
	MaxOpenPositions        int     `yaml:"max_open_positions" json:"max_open_positions" default:"3" validate:"gte=1"`
	MinMinutesBetweenTrades float64 `yaml:"min_minutes_between_trades" json:"min_minutes_between_trades" default:"5" validate:"gte=0"`
	CooldownMinutes         int     `yaml:"cooldown_minutes" json:"cooldown_minutes" default:"60" validate:"gte=1"`
	MaxPositionPct          float64 `yaml:"max_position_pct" json:"max_position_pct" default:"10" validate:"gt=0,lte=100"`
	MinAIConfidence         float64 `yaml:"min_ai_confidence" json:"min_ai_confidence" default:"70" validate:"gte=0,lte=100"`
	MinTechConfidence       float64 `yaml:"min_tech_confidence" json:"min_tech_confidence" default:"60" validate:"gte=0,lte=100"`
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxDailyLossPct:         5,
		MaxDailyLossAbs:         500,
		MaxConsecutiveLosses:    3,
		MaxOpenPositions:        3,
		MinMinutesBetweenTrades: 5,
		CooldownMinutes:         60,
		MaxPositionPct:          10,
		MinAIConfidence:         70,
		MinTechConfidence:       60,
	}
}

// Cooldown returns CooldownMinutes as a duration.
func (l RiskLimits) Cooldown() time.Duration {
	return time.Duration(l.CooldownMinutes) * time.Minute
}

// historyWindow bounds how far back closed trades are read when looking
// for the last auto trade.
const historyWindow = 7 * 24 * time.Hour

// Reason codes used for the cooldown metric.
const (
	ReasonDailyLossPct      = "daily_loss_pct"
	ReasonDailyLossAbs      = "daily_loss_abs"
	ReasonConsecutiveLosses = "consecutive_losses"
	ReasonManual            = "manual"
)

// RiskManager gates automated execution per user. State (cooldowns and
// day-start balances) lives in a RiskStateStore; checks for the same user
// are serialised, different users run in parallel.
//
// One mutex is kept per user ID seen and never evicted, so memory grows
// with the number of distinct users. That suits a fixed set of accounts.
type RiskManager struct {
	limits   RiskLimits
	accounts model.AccountStore
	state    model.RiskStateStore
	clock    func() time.Time
	loc      *time.Location
	logger   *slog.Logger
	metrics  *metrics.Metrics

	locks sync.Map // userID -> *sync.Mutex
}

// RiskOption customises a RiskManager.
type RiskOption func(*RiskManager)

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) RiskOption {
	return func(rm *RiskManager) { rm.clock = fn }
}

// WithLocation sets where the trading day starts. Defaults to time.Local.
func WithLocation(loc *time.Location) RiskOption {
	return func(rm *RiskManager) { rm.loc = loc }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) RiskOption {
	return func(rm *RiskManager) { rm.logger = l }
}

// WithMetrics records checks and cooldowns.
func WithMetrics(m *metrics.Metrics) RiskOption {
	return func(rm *RiskManager) { rm.metrics = m }
}

// NewRiskManager creates a RiskManager. A nil state store keeps state in
// process memory.
func NewRiskManager(limits RiskLimits, accounts model.AccountStore, state model.RiskStateStore, opts ...RiskOption) *RiskManager {
	if state == nil {
		state = NewMemoryStateStore()
	}
	rm := &RiskManager{
		limits:   limits,
		accounts: accounts,
		state:    state,
		clock:    time.Now,
		loc:      time.Local,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(rm)
	}
	return rm
}

// Limits returns the configured limits.
func (rm *RiskManager) Limits() RiskLimits { return rm.limits }

func (rm *RiskManager) lock(userID string) func() {
	v, _ := rm.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CheckRiskStatus evaluates whether userID may open a new automated trade.
// An active cooldown overrides every other check; otherwise the first
// violated limit in the order daily loss %, daily loss amount, loss
// streak, open auto positions, trade spacing decides the reason. Loss and
// streak violations start a cooldown. P&L and the loss streak cover the
// current local day. Errors are store failures only.
func (rm *RiskManager) CheckRiskStatus(ctx context.Context, userID string) (model.RiskStatus, error) {
	defer rm.lock(userID)()

	status, err := rm.check(ctx, userID)
	switch {
	case err != nil:
		rm.metrics.ObserveRiskCheck("error")
	case status.CanTrade:
		rm.metrics.ObserveRiskCheck("allowed")
	default:
		rm.metrics.ObserveRiskCheck("blocked")
	}
	return status, err
}

func (rm *RiskManager) check(ctx context.Context, userID string) (model.RiskStatus, error) {
	now := rm.clock()
	status := model.RiskStatus{UserID: userID, CanTrade: true, CheckedAt: now}

	balance, err := rm.accounts.Balance(ctx, userID)
	if err != nil {
		return status, fmt.Errorf("risk: balance %s: %w", userID, err)
	}
	open, err := rm.accounts.OpenPositions(ctx, userID)
	if err != nil {
		return status, fmt.Errorf("risk: open positions %s: %w", userID, err)
	}
	closed, err := rm.accounts.ClosedPositions(ctx, userID, now.Add(-historyWindow))
	if err != nil {
		return status, fmt.Errorf("risk: closed positions %s: %w", userID, err)
	}

	startBal, err := rm.dayStartBalance(ctx, userID, now, balance)
	if err != nil {
		return status, err
	}

	dayStart := markethours.StartOfDay(now, rm.loc)
	closedAuto := closedSince(autoTrades(closed), time.Time{})
	sort.Slice(closedAuto, func(i, j int) bool { return closedAuto[i].ClosedAt.After(*closedAuto[j].ClosedAt) })

	today := closedSince(closedAuto, dayStart)
	realized := RealizedPnL(today)
	unrealized := UnrealizedPnL(open)
	dayPnL := realized + unrealized

	status.CurrentBalance = balance
	status.StartingBalance = startBal
	status.RealizedPnL = realized
	status.UnrealizedPnL = unrealized
	status.DayPnL = dayPnL
	status.DayLoss = math.Max(0, -dayPnL)
	if startBal > 0 {
		status.DayLossPct = status.DayLoss / startBal * 100
	}
	status.ConsecutiveLosses = lossStreak(today)
	status.OpenAutoPositions = len(autoTrades(open))
	if last, ok := lastAutoTrade(open, closedAuto); ok {
		mins := now.Sub(last).Minutes()
		status.MinutesSinceLastTrade = &mins
	}

	until, active, err := rm.activeCooldown(ctx, userID, now)
	if err != nil {
		return status, err
	}
	if active {
		status.CanTrade = false
		status.CooldownActive = true
		status.CooldownUntil = &until
		status.Reason = fmt.Sprintf("cooldown active for %d more minutes", int(math.Ceil(until.Sub(now).Minutes())))
		return status, nil
	}

	l := rm.limits
	switch {
	case status.DayLossPct >= l.MaxDailyLossPct:
		status.Reason = fmt.Sprintf("daily loss %.2f%% of starting balance reached limit %.2f%%", status.DayLossPct, l.MaxDailyLossPct)
		return rm.block(ctx, status, ReasonDailyLossPct)
	case status.DayLoss >= l.MaxDailyLossAbs:
		status.Reason = fmt.Sprintf("daily loss %.2f reached limit %.2f", status.DayLoss, l.MaxDailyLossAbs)
		return rm.block(ctx, status, ReasonDailyLossAbs)
	case status.ConsecutiveLosses >= l.MaxConsecutiveLosses:
		status.Reason = fmt.Sprintf("%d consecutive losses reached limit %d", status.ConsecutiveLosses, l.MaxConsecutiveLosses)
		return rm.block(ctx, status, ReasonConsecutiveLosses)
	case status.OpenAutoPositions >= l.MaxOpenPositions:
		status.CanTrade = false
		status.Reason = fmt.Sprintf("%d open auto positions reached limit %d", status.OpenAutoPositions, l.MaxOpenPositions)
	case status.MinutesSinceLastTrade != nil && *status.MinutesSinceLastTrade < l.MinMinutesBetweenTrades:
		status.CanTrade = false
		status.Reason = fmt.Sprintf("last auto trade %.1f minutes ago, minimum spacing is %.0f minutes", *status.MinutesSinceLastTrade, l.MinMinutesBetweenTrades)
	}
	return status, nil
}

// block refuses trading and starts a cooldown.
func (rm *RiskManager) block(ctx context.Context, status model.RiskStatus, reason string) (model.RiskStatus, error) {
	until := status.CheckedAt.Add(rm.limits.Cooldown())
	if err := rm.state.SetCooldown(ctx, status.UserID, until); err != nil {
		return status, fmt.Errorf("risk: set cooldown %s: %w", status.UserID, err)
	}
	rm.metrics.CooldownStarted(reason)
	rm.logger.Warn("risk cooldown started",
		slog.String("user_id", status.UserID),
		slog.String("reason", reason),
		slog.Time("until", until),
		slog.Float64("day_pnl", status.DayPnL))

	status.CanTrade = false
	status.CooldownActive = true
	status.CooldownUntil = &until
	return status, nil
}

// activeCooldown reports an unexpired cooldown and drops an expired one.
func (rm *RiskManager) activeCooldown(ctx context.Context, userID string, now time.Time) (time.Time, bool, error) {
	until, ok, err := rm.state.Cooldown(ctx, userID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("risk: read cooldown %s: %w", userID, err)
	}
	if !ok {
		return time.Time{}, false, nil
	}
	if now.Before(until) {
		return until, true, nil
	}
	if err := rm.state.ClearCooldown(ctx, userID); err != nil {
		return time.Time{}, false, fmt.Errorf("risk: clear cooldown %s: %w", userID, err)
	}
	return time.Time{}, false, nil
}

// dayStartBalance returns today's snapshot, taking it from balance on the
// first check of the local day.
func (rm *RiskManager) dayStartBalance(ctx context.Context, userID string, now time.Time, balance float64) (float64, error) {
	day := markethours.DayKey(now, rm.loc)
	start, ok, err := rm.state.DayStartBalance(ctx, userID, day)
	if err != nil {
		return 0, fmt.Errorf("risk: read day balance %s: %w", userID, err)
	}
	if ok {
		return start, nil
	}
	if err := rm.state.SetDayStartBalance(ctx, userID, day, balance); err != nil {
		return 0, fmt.Errorf("risk: store day balance %s: %w", userID, err)
	}
	return balance, nil
}

// StartCooldown blocks userID for d regardless of account state.
func (rm *RiskManager) StartCooldown(ctx context.Context, userID string, d time.Duration) (time.Time, error) {
	defer rm.lock(userID)()
	until := rm.clock().Add(d)
	if err := rm.state.SetCooldown(ctx, userID, until); err != nil {
		return time.Time{}, fmt.Errorf("risk: set cooldown %s: %w", userID, err)
	}
	rm.metrics.CooldownStarted(ReasonManual)
	rm.logger.Info("risk cooldown set manually", slog.String("user_id", userID), slog.Time("until", until))
	return until, nil
}

// ClearCooldown lifts any cooldown on userID.
func (rm *RiskManager) ClearCooldown(ctx context.Context, userID string) error {
	defer rm.lock(userID)()
	if err := rm.state.ClearCooldown(ctx, userID); err != nil {
		return fmt.Errorf("risk: clear cooldown %s: %w", userID, err)
	}
	rm.logger.Info("risk cooldown cleared", slog.String("user_id", userID))
	return nil
}

// ValidatePositionSize checks positionValue against the manager's limit.
func (rm *RiskManager) ValidatePositionSize(balance, positionValue float64) model.ValidationResult {
	return ValidatePositionSize(balance, positionValue, rm.limits.MaxPositionPct)
}

// ValidateConfidence checks both scores against the manager's minimums.
func (rm *RiskManager) ValidateConfidence(aiConfidence, techConfidence float64) model.ValidationResult {
	return ValidateConfidence(aiConfidence, techConfidence, rm.limits.MinAIConfidence, rm.limits.MinTechConfidence)
}

// ValidatePositionSize rejects positions worth more than maxPct of balance.
func ValidatePositionSize(balance, positionValue, maxPct float64) model.ValidationResult {
	switch {
	case balance <= 0:
		return model.ValidationResult{Reason: "account balance is not positive"}
	case positionValue <= 0:
		return model.ValidationResult{Reason: "position value is not positive"}
	}
	pct := positionValue / balance * 100
	if pct > maxPct {
		return model.ValidationResult{Reason: fmt.Sprintf("position is %.2f%% of account, limit %.2f%%", pct, maxPct)}
	}
	return model.ValidationResult{Valid: true}
}

// ValidateConfidence requires both the AI and the technical confidence to
// meet their minimums.
func ValidateConfidence(aiConfidence, techConfidence, minAI, minTech float64) model.ValidationResult {
	if aiConfidence < minAI {
		return model.ValidationResult{Reason: fmt.Sprintf("AI confidence %.1f below minimum %.1f", aiConfidence, minAI)}
	}
	if techConfidence < minTech {
		return model.ValidationResult{Reason: fmt.Sprintf("technical confidence %.1f below minimum %.1f", techConfidence, minTech)}
	}
	return model.ValidationResult{Valid: true}
}

func autoTrades(positions []model.Position) []model.Position {
	out := make([]model.Position, 0, len(positions))
	for _, p := range positions {
		if p.IsAutoTrade {
			out = append(out, p)
		}
	}
	return out
}

func closedSince(positions []model.Position, since time.Time) []model.Position {
	out := make([]model.Position, 0, len(positions))
	for _, p := range positions {
		if p.ClosedAt != nil && !p.ClosedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out
}

// lossStreak counts losing trades from the newest back; any trade that
// did not lose ends the streak. positions must be newest first.
func lossStreak(positions []model.Position) int {
	n := 0
	for _, p := range positions {
		if p.RealizedPnL >= 0 {
			break
		}
		n++
	}
	return n
}

func lastAutoTrade(open, closedAuto []model.Position) (time.Time, bool) {
	var last time.Time
	found := false
	for _, set := range [][]model.Position{open, closedAuto} {
		for _, p := range set {
			if p.IsAutoTrade && (!found || p.OpenedAt.After(last)) {
				last, found = p.OpenedAt, true
			}
		}
	}
	return last, found
}
